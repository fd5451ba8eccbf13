// Package qr encodes transfer session tokens into the scannable payload and
// renders them as QR images. The payload is the wire contract between the two
// devices; it carries the session token only, never the credential.
package qr

import (
	"encoding/json"
	"errors"
	"time"
)

// Version is the payload format version. Consumers tolerate other versions;
// only the token is load-bearing.
const Version = "1.0"

// ErrMalformedPayload is returned when a scanned payload is not valid JSON or
// lacks a usable token. The decoder fails loudly instead of passing a null
// payload downstream.
var ErrMalformedPayload = errors.New("qr: malformed payload")

// Payload is the scannable wire format: {"token": ..., "version": "1.0",
// "timestamp": <epoch-ms>}. Unknown extra fields are ignored on decode.
type Payload struct {
	Token     string `json:"token"`
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
}

// Encode builds the payload JSON for a session token at the given time.
func Encode(token string, now time.Time) ([]byte, error) {
	if token == "" {
		return nil, ErrMalformedPayload
	}
	return json.Marshal(Payload{
		Token:     token,
		Version:   Version,
		Timestamp: now.UnixMilli(),
	})
}

// Decode parses a scanned payload. Returns ErrMalformedPayload for non-JSON
// input and for a missing or non-string token.
func Decode(raw string) (*Payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, ErrMalformedPayload
	}

	tokenRaw, ok := fields["token"]
	if !ok {
		return nil, ErrMalformedPayload
	}
	var token string
	if err := json.Unmarshal(tokenRaw, &token); err != nil || token == "" {
		return nil, ErrMalformedPayload
	}

	p := &Payload{Token: token}
	if v, ok := fields["version"]; ok {
		_ = json.Unmarshal(v, &p.Version)
	}
	if ts, ok := fields["timestamp"]; ok {
		_ = json.Unmarshal(ts, &p.Timestamp)
	}
	return p, nil
}
