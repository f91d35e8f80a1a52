package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWithoutMetrics(t *testing.T) {
	p, err := Setup(Options{})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer)
	require.NotNil(t, p.Meter)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestSetupExportsMetricsOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	p, err := Setup(Options{Metrics: true, Interval: time.Hour, Writer: &buf})
	require.NoError(t, err)

	c, err := p.Meter.Int64Counter("logqueue.test.counter")
	require.NoError(t, err)
	c.Add(context.Background(), 3)

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "logqueue.test.counter")
}
