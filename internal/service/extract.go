package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/valyala/fastjson"
	"golang.org/x/text/unicode/norm"

	"logqueue/internal/model"
)

const maxLoggedBody = 512

var parsers fastjson.ParserPool

// ParseBody decodes a queue message body into a Candidate without an ID.
// The body must be a JSON object with string "message" and "level" fields and
// may carry an RFC 3339 "timestamp". All failures wrap model.ErrMalformed.
func ParseBody(body string) (model.Candidate, error) {
	p := parsers.Get()
	defer parsers.Put(p)

	v, err := p.Parse(body)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("%w: %v", model.ErrMalformed, err)
	}
	if v.Type() != fastjson.TypeObject {
		return model.Candidate{}, fmt.Errorf("%w: body is a JSON %s, not an object", model.ErrMalformed, v.Type())
	}

	msg, err := stringField(v, "message")
	if err != nil {
		return model.Candidate{}, err
	}
	rawLevel, err := stringField(v, "level")
	if err != nil {
		return model.Candidate{}, err
	}
	level, err := model.ParseLevel(rawLevel)
	if err != nil {
		return model.Candidate{}, err
	}

	var ts time.Time
	if tv := v.Get("timestamp"); tv != nil && tv.Type() != fastjson.TypeNull {
		b, err := tv.StringBytes()
		if err == nil {
			err = checkText(b)
		}
		if err != nil {
			return model.Candidate{}, fmt.Errorf("%w: field \"timestamp\": %v", model.ErrMalformed, err)
		}
		ts, err = time.Parse(time.RFC3339Nano, string(b))
		if err != nil {
			return model.Candidate{}, fmt.Errorf("%w: field \"timestamp\": %v", model.ErrMalformed, err)
		}
	}

	return model.Candidate{
		Message:   norm.NFC.String(msg),
		Level:     level,
		Timestamp: ts,
	}, nil
}

// checkText rejects strings a TEXT column refuses: fastjson passes invalid
// UTF-8 through untouched and decodes \u0000 to a NUL byte.
func checkText(b []byte) error {
	if !utf8.Valid(b) {
		return errors.New("invalid UTF-8")
	}
	if bytes.IndexByte(b, 0) >= 0 {
		return errors.New("contains NUL byte")
	}
	return nil
}

func stringField(v *fastjson.Value, key string) (string, error) {
	f := v.Get(key)
	if f == nil {
		return "", fmt.Errorf("%w: missing field %q", model.ErrMalformed, key)
	}
	b, err := f.StringBytes()
	if err == nil {
		err = checkText(b)
	}
	if err != nil {
		return "", fmt.Errorf("%w: field %q: %v", model.ErrMalformed, key, err)
	}
	// b points into the parser's buffer, which is reused after Put.
	return string(b), nil
}

// extract turns raw messages into candidates keyed by their queue message id.
// Rejected messages are logged and skipped; a message id seen twice keeps its
// first occurrence. ids lists every candidate id once, in input order.
func (p *Processor) extract(ctx context.Context, msgs []model.RawMessage) (candidates []model.Candidate, ids []string, malformed int) {
	seen := make(map[string]struct{}, len(msgs))
	candidates = make([]model.Candidate, 0, len(msgs))
	ids = make([]string, 0, len(msgs))
	for _, m := range msgs {
		c, err := ParseBody(m.Body)
		if err == nil && m.MessageID == "" {
			err = fmt.Errorf("%w: empty message id", model.ErrMalformed)
		}
		if err != nil {
			malformed++
			p.logger.ErrorContext(ctx, "invalid message format",
				"message_id", m.MessageID,
				"body", truncate(m.Body, maxLoggedBody),
				"error", err)
			continue
		}
		if _, dup := seen[m.MessageID]; dup {
			p.logger.WarnContext(ctx, "message id repeated within delivery", "message_id", m.MessageID)
			continue
		}
		seen[m.MessageID] = struct{}{}
		c.ID = m.MessageID
		candidates = append(candidates, c)
		ids = append(ids, c.ID)
	}
	return candidates, ids, malformed
}

// truncate cuts s to at most n bytes on a rune boundary. Bodies that are not
// valid UTF-8 have their bad bytes replaced so the log line stays readable.
func truncate(s string, n int) string {
	if len(s) <= n {
		return strings.ToValidUTF8(s, "\uFFFD")
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return strings.ToValidUTF8(s[:n], "\uFFFD") + "..."
}
