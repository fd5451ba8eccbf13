package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"foxtrail/handoff/internal/audit/domain"
)

type auditRow struct {
	ID        string    `db:"id"`
	OwnerID   string    `db:"owner_id"`
	Action    string    `db:"action"`
	Resource  string    `db:"resource"`
	Metadata  string    `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
}

// PostgresRepository persists audit logs in the audit_logs table.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists one audit log entry.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, owner_id, action, resource, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.OwnerID, a.Action, a.Resource, a.Metadata, a.CreatedAt)
	return err
}

// ListByOwner returns the owner's audit logs, newest first, paginated by limit and offset.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int32) ([]*domain.AuditLog, error) {
	var rows []auditRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, owner_id, action, resource, metadata, created_at
		 FROM audit_logs WHERE owner_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.AuditLog, len(rows))
	for i := range rows {
		out[i] = &domain.AuditLog{
			ID:        rows[i].ID,
			OwnerID:   rows[i].OwnerID,
			Action:    rows[i].Action,
			Resource:  rows[i].Resource,
			Metadata:  rows[i].Metadata,
			CreatedAt: rows[i].CreatedAt,
		}
	}
	return out, nil
}
