package domain

import "time"

// Event types emitted by the transfer session lifecycle.
const (
	EventSessionCreated     = "transfer_session.created"
	EventSessionRefreshed   = "transfer_session.refreshed"
	EventSessionConsumed    = "transfer_session.consumed"
	EventSessionInvalidated = "transfer_session.invalidated"
	EventSessionExpired     = "transfer_session.expired"
	EventClaimRejected      = "transfer_claim.rejected"
)

// TelemetryEvent is a single lifecycle event destined for the telemetry
// pipeline. Credential material never appears here; callers put only the
// SHA-256 credential hash in Metadata when one is relevant.
type TelemetryEvent struct {
	ID           string            `json:"id"`
	EventType    string            `json:"eventType"`
	OwnerID      string            `json:"ownerId"`
	SessionToken string            `json:"sessionToken,omitempty"`
	Source       string            `json:"source"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}
