// Package handler exposes the transfer protocol over HTTP for the producer
// (signed-in) and consumer (signing-in) devices.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"foxtrail/handoff/internal/identity"
	"foxtrail/handoff/internal/transfer/consumer"
	transferdomain "foxtrail/handoff/internal/transfer/domain"
	"foxtrail/handoff/internal/transfer/qr"
	"foxtrail/handoff/internal/transfer/service"
)

// Handler serves the transfer session endpoints.
type Handler struct {
	sessions *service.Manager
	claims   *consumer.Coordinator
	renderer qr.Renderer
	ident    identity.Provider
	nowF     func() time.Time
}

// New returns a Handler over the given session manager and identity provider.
func New(sessions *service.Manager, renderer qr.Renderer, ident identity.Provider) *Handler {
	return &Handler{
		sessions: sessions,
		claims:   consumer.NewCoordinator(nil, sessions, ident),
		renderer: renderer,
		ident:    ident,
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

type createSessionRequest struct {
	Credential string `json:"credential" binding:"required"`
}

type sessionResponse struct {
	SessionToken string    `json:"session_token"`
	QRPayload    string    `json:"qr_payload"`
	QRDataURL    string    `json:"qr_data_url"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type claimRequest struct {
	Payload string `json:"payload" binding:"required"`
}

type claimResponse struct {
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	Credential  string    `json:"credential"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// CreateSession issues (or supersedes) the caller's transfer session. The
// caller proves ownership of the credential it wants to transfer; embedding
// someone else's credential is refused.
func (h *Handler) CreateSession(c *gin.Context) {
	ownerID := c.GetString("userID")
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "credential is required"})
		return
	}
	credOwner, err := h.ident.VerifyCredential(c.Request.Context(), req.Credential)
	if err != nil || credOwner != ownerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "credential does not belong to caller"})
		return
	}

	active, err := h.sessions.HasActive(c.Request.Context(), ownerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var s *transferdomain.TransferSession
	if active {
		s, err = h.sessions.Refresh(c.Request.Context(), ownerID, req.Credential)
	} else {
		s, err = h.sessions.Create(c.Request.Context(), ownerID, req.Credential)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp, err := h.sessionResponse(s)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render code"})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// CurrentSession returns the caller's active session with a freshly rendered
// code.
func (h *Handler) CurrentSession(c *gin.Context) {
	ownerID := c.GetString("userID")
	s, err := h.sessions.Current(c.Request.Context(), ownerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp, err := h.sessionResponse(s)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render code"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteSession invalidates the caller's session and sweeps lapsed rows.
func (h *Handler) DeleteSession(c *gin.Context) {
	ownerID := c.GetString("userID")
	err := h.sessions.Invalidate(c.Request.Context(), ownerID)
	h.sessions.CleanupExpired(c.Request.Context(), ownerID)
	if err != nil && !errors.Is(err, service.ErrNotFound) {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Claim consumes a scanned payload and establishes an independent session
// for the calling device. Unauthenticated: the caller is signing in.
func (h *Handler) Claim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload is required"})
		return
	}
	handle, err := h.claims.ClaimPayload(c.Request.Context(), req.Payload)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, claimResponse{
		SessionID:   handle.SessionID,
		UserID:      handle.UserID,
		AccessToken: handle.AccessToken,
		Credential:  handle.Credential,
		ExpiresAt:   handle.ExpiresAt,
	})
}

func (h *Handler) sessionResponse(s *transferdomain.TransferSession) (*sessionResponse, error) {
	payload, err := qr.Encode(s.SessionToken, h.nowF())
	if err != nil {
		return nil, err
	}
	png, err := h.renderer.Render(payload)
	if err != nil {
		return nil, err
	}
	return &sessionResponse{
		SessionToken: s.SessionToken,
		QRPayload:    string(payload),
		QRDataURL:    qr.DataURL(png),
		ExpiresAt:    s.ExpiresAt,
	}, nil
}

// writeError maps protocol errors to HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, qr.ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrAlreadyConsumed):
		// A consumed token is indistinguishable from an unknown one.
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, service.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": "session expired"})
	case errors.Is(err, service.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
	case errors.Is(err, identity.ErrEstablishFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to establish session"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
