package otel

import (
	"context"

	otellog "go.opentelemetry.io/otel/log"

	"foxtrail/handoff/internal/telemetry"
	"foxtrail/handoff/internal/telemetry/domain"
)

// NewEmitter returns an EventEmitter that writes telemetry events as OTel
// log records. If providers is nil or logging is disabled, a no-op emitter
// is returned.
func NewEmitter(providers *Providers) telemetry.EventEmitter {
	if providers == nil || providers.LoggerProvider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: providers.LoggerProvider.Logger("foxtrail-handoff")}
}

type otelEmitter struct {
	logger otellog.Logger
}

func (e *otelEmitter) Emit(ctx context.Context, event *domain.TelemetryEvent) error {
	var rec otellog.Record
	rec.SetTimestamp(event.CreatedAt)
	rec.SetBody(otellog.StringValue(event.EventType))
	rec.AddAttributes(
		otellog.String("event.id", event.ID),
		otellog.String("event.type", event.EventType),
		otellog.String("owner.id", event.OwnerID),
		otellog.String("session.token", event.SessionToken),
		otellog.String("source", event.Source),
	)
	for k, v := range event.Metadata {
		rec.AddAttributes(otellog.String("meta."+k, v))
	}
	e.logger.Emit(ctx, rec)
	return nil
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.TelemetryEvent) error { return nil }
