package services

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Telemetry captures best-effort product analytics events. It is distinct
// from the domain outbox: nothing depends on delivery.
type Telemetry interface {
	Capture(ctx context.Context, event string, props map[string]any)
}

// LogTelemetry writes each event as a debug log line and counts it.
type LogTelemetry struct{}

// Capture implements Telemetry.
func (LogTelemetry) Capture(ctx context.Context, event string, props map[string]any) {
	telemetryEvents.WithLabelValues(event).Inc()
	log.Ctx(ctx).Debug().Str("event", event).Fields(props).Msg("telemetry")
}

// capture forwards to t, swallowing panics so a faulty sink can never fail
// the operation that emitted the event.
func capture(ctx context.Context, t Telemetry, event string, props map[string]any) {
	if t == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("event", event).Interface("panic", r).Msg("telemetry capture failed")
		}
	}()
	t.Capture(ctx, event, props)
}
