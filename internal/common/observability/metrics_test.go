package observability

import (
	"context"
	"strings"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ihydro/internal/common/config"
	"ihydro/internal/common/logger"
)

func TestObservability_RecordsToRegistry(t *testing.T) {
	reg := promclient.NewRegistry()
	o := newWithRegisterer("monitor-test", config.TracingConfig{}, reg, logger.NewTestLogger(t))
	defer o.Shutdown()

	ctx := context.Background()
	o.RecordPollCycle(ctx, "ok", 120*time.Millisecond)
	o.RecordPollCycle(ctx, "failed", 30*time.Millisecond)
	o.RecordStreamEvent(ctx, "sse", "accepted")

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")
	assert.Contains(t, joined, "poll_cycles")
	assert.Contains(t, joined, "stream_events")
}

func TestObservability_NilSafe(t *testing.T) {
	var o *Observability
	ctx, span := o.StartSpan(context.Background(), "fetch")
	span.End()
	assert.NotNil(t, ctx)

	o.RecordPollCycle(ctx, "ok", time.Second)
	o.RecordStreamEvent(ctx, "kafka", "rejected")
	o.Shutdown()
}
