package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"foxtrail/handoff/internal/transfer/domain"
)

type sessionRow struct {
	OwnerID      string       `db:"owner_id"`
	SessionToken string       `db:"session_token"`
	Credential   string       `db:"credential"`
	ExpiresAt    time.Time    `db:"expires_at"`
	Consumed     bool         `db:"consumed"`
	ConsumedAt   sql.NullTime `db:"consumed_at"`
	CreatedAt    time.Time    `db:"created_at"`
}

// PostgresRepository persists transfer sessions in the transfer_sessions table.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a transfer session repository that uses the given db for persistence.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// UpsertByOwner inserts the session or replaces the owner's existing row in a
// single statement. The ON CONFLICT clause on owner_id is the transactional
// boundary: token, credential, expiry, and consumed state move together, so a
// partial write cannot be observed.
func (r *PostgresRepository) UpsertByOwner(ctx context.Context, s *domain.TransferSession) error {
	const q = `
		INSERT INTO transfer_sessions
			(owner_id, session_token, credential, expires_at, consumed, consumed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id) DO UPDATE SET
			session_token = EXCLUDED.session_token,
			credential    = EXCLUDED.credential,
			expires_at    = EXCLUDED.expires_at,
			consumed      = EXCLUDED.consumed,
			consumed_at   = EXCLUDED.consumed_at,
			created_at    = EXCLUDED.created_at`
	_, err := r.db.ExecContext(ctx, q,
		s.OwnerID, s.SessionToken, s.Credential, s.ExpiresAt,
		s.Consumed, timeToNullTime(s.ConsumedAt), s.CreatedAt)
	return err
}

// GetByToken returns the session for token, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*domain.TransferSession, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row,
		`SELECT owner_id, session_token, credential, expires_at, consumed, consumed_at, created_at
		 FROM transfer_sessions WHERE session_token = $1`, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rowToDomain(&row), nil
}

// GetByOwner returns the owner's session row, or nil if not found.
func (r *PostgresRepository) GetByOwner(ctx context.Context, ownerID string) (*domain.TransferSession, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row,
		`SELECT owner_id, session_token, credential, expires_at, consumed, consumed_at, created_at
		 FROM transfer_sessions WHERE owner_id = $1`, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rowToDomain(&row), nil
}

// ConsumeByToken marks the unconsumed session with the given token as consumed
// and returns it. The conditional UPDATE is atomic: of two racing callers,
// exactly one gets the row and the other gets (nil, nil).
func (r *PostgresRepository) ConsumeByToken(ctx context.Context, token string, at time.Time) (*domain.TransferSession, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row,
		`UPDATE transfer_sessions
		 SET consumed = TRUE, consumed_at = $2
		 WHERE session_token = $1 AND consumed = FALSE
		 RETURNING owner_id, session_token, credential, expires_at, consumed, consumed_at, created_at`,
		token, at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rowToDomain(&row), nil
}

// DeleteByOwner removes the owner's session row. Deleting a missing row is not an error.
func (r *PostgresRepository) DeleteByOwner(ctx context.Context, ownerID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM transfer_sessions WHERE owner_id = $1`, ownerID)
	return err
}

// DeleteExpiredByOwner removes the owner's rows whose expiry precedes before.
func (r *PostgresRepository) DeleteExpiredByOwner(ctx context.Context, ownerID string, before time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM transfer_sessions WHERE owner_id = $1 AND expires_at < $2`, ownerID, before)
	return err
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}

func rowToDomain(row *sessionRow) *domain.TransferSession {
	if row == nil {
		return nil
	}
	return &domain.TransferSession{
		OwnerID:      row.OwnerID,
		SessionToken: row.SessionToken,
		Credential:   row.Credential,
		ExpiresAt:    row.ExpiresAt,
		Consumed:     row.Consumed,
		ConsumedAt:   nullTimeToPtr(row.ConsumedAt),
		CreatedAt:    row.CreatedAt,
	}
}
