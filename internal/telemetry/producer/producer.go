// Package producer publishes telemetry events to Kafka for the worker to
// ship into Loki.
package producer

import (
	"context"

	"foxtrail/handoff/internal/telemetry/domain"
)

// Producer writes telemetry events to a durable stream.
type Producer interface {
	Emit(ctx context.Context, event *domain.TelemetryEvent) error
	Close() error
}
