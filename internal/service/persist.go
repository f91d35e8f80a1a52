package service

import (
	"context"

	"logqueue/internal/model"
)

// persist writes fresh to the store in one transaction. It does not touch the
// store at all when there is nothing to write.
func (p *Processor) persist(ctx context.Context, fresh []model.Candidate) (int64, error) {
	if len(fresh) == 0 {
		return 0, nil
	}
	now := p.now()
	entries := make([]model.LogEntry, len(fresh))
	for i, c := range fresh {
		entries[i] = c.Entry(now)
	}
	return p.store.InsertEntries(ctx, entries)
}
