// Package identity integrates three-device identity: verifying renewable
// credentials and redeeming them for brand-new, independent sessions. The
// transfer protocol treats this as an external collaborator; the JWT provider
// here is the in-repo implementation of that contract.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEstablishFailed is returned when a credential is rejected by the
	// provider. The attempt is fatal; the user must restart from a fresh code.
	ErrEstablishFailed = errors.New("identity: credential rejected")
	// ErrNoCredential is returned by a CredentialSource that has no active session.
	ErrNoCredential = errors.New("identity: no active session")
)

// SessionHandle is a fully established identity session on a device. The
// consuming device receives one of these after redeeming a transferred
// credential; it is independent of the producer's session.
type SessionHandle struct {
	SessionID   string
	UserID      string
	AccessToken string
	// Credential is a fresh renewable credential bound to this new session.
	Credential string
	ExpiresAt  time.Time
}

// Provider issues and verifies identity sessions.
type Provider interface {
	// VerifyCredential checks that credential is valid and returns the user it
	// belongs to. Used when a transfer session is created, so an owner cannot
	// embed someone else's credential.
	VerifyCredential(ctx context.Context, credential string) (userID string, err error)
	// IssueIndependentSession redeems credential for a new session with its own
	// access token and renewable credential. The session the credential came
	// from is left untouched. Returns ErrEstablishFailed when the credential is
	// invalid or expired.
	IssueIndependentSession(ctx context.Context, credential string) (*SessionHandle, error)
}

// CredentialSource yields the renewable credential of the device's current
// session. The producer coordinator reads it to know what to embed in a
// transfer session.
type CredentialSource interface {
	CurrentCredential(ctx context.Context) (string, error)
}

// StaticCredentialSource is a CredentialSource holding a fixed credential
// (the device's stored session credential).
type StaticCredentialSource struct {
	Credential string
}

// CurrentCredential returns the stored credential, or ErrNoCredential when empty.
func (s *StaticCredentialSource) CurrentCredential(ctx context.Context) (string, error) {
	if s == nil || s.Credential == "" {
		return "", ErrNoCredential
	}
	return s.Credential, nil
}
