package telemetry

import (
	"context"
	"log"
	"time"

	"foxtrail/handoff/internal/telemetry/domain"
)

// emitTimeout bounds a single background emit so a stuck broker cannot
// leak goroutines forever.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long main waits before closing emitters so
// in-flight EmitAsync goroutines can finish.
const ShutdownDrainDuration = 2 * time.Second

// EmitAsync emits the event on a background goroutine and never blocks the
// caller. Errors are logged and dropped; telemetry must not fail the
// operation that produced it. A nil emitter is a no-op.
func EmitAsync(emitter EventEmitter, event *domain.TelemetryEvent) {
	if emitter == nil || event == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, event); err != nil {
			log.Printf("telemetry: emit %s failed: %v", event.EventType, err)
		}
	}()
}
