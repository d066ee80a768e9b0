package observability

import (
	"context"

	servertiming "github.com/mitchellh/go-server-timing"
)

// ServerTimingMetric wraps a Server-Timing metric. The zero value and nil
// are no-ops.
type ServerTimingMetric struct {
	metric *servertiming.Metric
}

// StartServerTiming starts a metric on the Server-Timing header stored in
// ctx by servertiming.Middleware. Without a header the metric is a no-op.
func StartServerTiming(ctx context.Context, name string) *ServerTimingMetric {
	return StartServerTimingWithDesc(ctx, name, "")
}

// StartServerTimingWithDesc is StartServerTiming with a description.
func StartServerTimingWithDesc(ctx context.Context, name, description string) *ServerTimingMetric {
	header := servertiming.FromContext(ctx)
	if header == nil {
		return &ServerTimingMetric{}
	}
	m := header.NewMetric(name)
	if description != "" {
		m = m.WithDesc(description)
	}
	return &ServerTimingMetric{metric: m.Start()}
}

// Stop ends the metric.
func (m *ServerTimingMetric) Stop() {
	if m == nil || m.metric == nil {
		return
	}
	m.metric.Stop()
}
