package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"foxtrail/handoff/internal/security"
)

// JWTProvider implements Provider with asymmetric JWTs: credentials are
// refresh-class tokens, sessions are (access token, fresh credential) pairs
// bound to a new session id.
type JWTProvider struct {
	tokens *security.TokenProvider
}

// NewJWTProvider returns a Provider backed by the given token provider.
func NewJWTProvider(tokens *security.TokenProvider) *JWTProvider {
	return &JWTProvider{tokens: tokens}
}

// VerifyCredential validates the credential's signature and claims and returns
// the user it was issued to.
func (p *JWTProvider) VerifyCredential(ctx context.Context, credential string) (string, error) {
	_, _, userID, err := p.tokens.ValidateCredential(credential)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEstablishFailed, err)
	}
	return userID, nil
}

// IssueIndependentSession validates credential and mints a brand-new session:
// new session id, new access token, new renewable credential. The original
// session (and its credential) remain valid; the two sessions run concurrently.
func (p *JWTProvider) IssueIndependentSession(ctx context.Context, credential string) (*SessionHandle, error) {
	_, _, userID, err := p.tokens.ValidateCredential(credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEstablishFailed, err)
	}

	sessionID := uuid.NewString()
	accessToken, _, expiresAt, err := p.tokens.IssueAccess(sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("issue access: %w", err)
	}
	newCredential, _, _, err := p.tokens.IssueCredential(sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("issue credential: %w", err)
	}

	return &SessionHandle{
		SessionID:   sessionID,
		UserID:      userID,
		AccessToken: accessToken,
		Credential:  newCredential,
		ExpiresAt:   expiresAt,
	}, nil
}
