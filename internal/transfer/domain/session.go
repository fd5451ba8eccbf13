package domain

import "time"

// TransferSession correlates a scannable sign-in code with a renewable
// credential for one owner. At most one row exists per owner; issuing a new
// code replaces the row, so the previous token is superseded.
type TransferSession struct {
	OwnerID      string
	SessionToken string // opaque uuid embedded in the QR payload; never reused
	Credential   string // renewable identity credential; never placed in the payload
	ExpiresAt    time.Time
	Consumed     bool
	ConsumedAt   *time.Time // nil until consumed
	CreatedAt    time.Time
}

// Expired reports whether the session's TTL has elapsed at the given time.
func (s *TransferSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Active reports whether the session can still be consumed: not consumed and
// not expired.
func (s *TransferSession) Active(now time.Time) bool {
	return !s.Consumed && !s.Expired(now)
}
