package domain

import "time"

// AuditLog is one recorded transfer protocol event: a session was created,
// refreshed, consumed, invalidated, or swept.
type AuditLog struct {
	ID        string
	OwnerID   string
	Action    string
	Resource  string
	// Metadata is free-form context. Credential values appear here only as
	// SHA-256 hashes.
	Metadata  string
	CreatedAt time.Time
}
