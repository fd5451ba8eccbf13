package telemetry

import (
	"context"

	"foxtrail/handoff/internal/telemetry/domain"
)

// EventEmitter delivers telemetry events to a backend (Kafka, OTel, or a
// test fake). Emit is best-effort from the caller's point of view; failures
// are returned so the async wrapper can log them, but must never affect the
// operation that produced the event.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.TelemetryEvent) error
}
