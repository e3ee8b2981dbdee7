package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/member-signups/internal/models"
)

// SnapshotRepository persists computed signup lists in the signup_snapshots table.
type SnapshotRepository struct {
	db *sqlx.DB
}

// NewSnapshotRepository constructs the repository.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create stores a snapshot, filling id and timestamp when unset.
func (r *SnapshotRepository) Create(ctx context.Context, snapshot *models.SignupSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO signup_snapshots (id, event_code, main_event_id, member_count, payload, created_at)
	VALUES (:id, :event_code, :main_event_id, :member_count, :payload, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, snapshot); err != nil {
		return fmt.Errorf("create signup snapshot: %w", err)
	}
	return nil
}

// GetByID loads one snapshot including its payload.
func (r *SnapshotRepository) GetByID(ctx context.Context, id string) (*models.SignupSnapshot, error) {
	const query = `SELECT id, event_code, main_event_id, member_count, payload, created_at
	FROM signup_snapshots WHERE id = $1`
	var snapshot models.SignupSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, id); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// List returns snapshot headers newest first. Payloads are not loaded.
func (r *SnapshotRepository) List(ctx context.Context, filter models.SnapshotFilter) ([]models.SignupSnapshot, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT id, event_code, main_event_id, member_count, created_at FROM signup_snapshots`)
	args := make([]interface{}, 0, 1)
	if filter.EventCode != "" {
		args = append(args, filter.EventCode)
		builder.WriteString(fmt.Sprintf(" WHERE event_code = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var snapshots []models.SignupSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list signup snapshots: %w", err)
	}
	return snapshots, nil
}
