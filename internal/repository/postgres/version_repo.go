package postgres

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/cems/internal/model"
)

// VersionRepo implements the append-only version ledger using PostgreSQL.
type VersionRepo struct{ q querier }

// NewVersionRepo constructs a version ledger.
func NewVersionRepo(db *DB) *VersionRepo { return &VersionRepo{q: db.Pool} }

const versionColumns = `version_id, event_id, owner_id, title, description, start_time, end_time, location, is_recurring, recurrence_pattern, edited_by, edited_at`

// Append stores the snapshot under a fresh random version id.
// Rows are never updated or deleted afterwards.
func (r *VersionRepo) Append(ctx context.Context, snap model.Event, editedBy int64, at time.Time) (model.EventVersion, error) {
	vid, err := uuid.NewV4()
	if err != nil {
		return model.EventVersion{}, err
	}
	const q = `
INSERT INTO event_versions (version_id, event_id, owner_id, title, description, start_time, end_time, location, is_recurring, recurrence_pattern, edited_by, edited_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = r.q.Exec(ctx, q,
		vid, snap.ID, snap.OwnerID, snap.Title, snap.Description, snap.StartTime, snap.EndTime,
		snap.Location, snap.IsRecurring, recurrenceArg(snap.RecurrencePattern), editedBy, at,
	)
	if err != nil {
		return model.EventVersion{}, wrap("append version", err)
	}
	return model.EventVersion{
		VersionID:   vid,
		EventID:     snap.ID,
		OwnerID:     snap.OwnerID,
		EventFields: snap.EventFields,
		EditedBy:    editedBy,
		EditedAt:    at,
	}, nil
}

// Get loads a version by (event, version) key.
func (r *VersionRepo) Get(ctx context.Context, eventID int64, versionID uuid.UUID) (*model.EventVersion, error) {
	q := `SELECT ` + versionColumns + ` FROM event_versions WHERE version_id=$1 AND event_id=$2`
	v, err := scanVersion(r.q.QueryRow(ctx, q, versionID, eventID))
	if err != nil {
		return nil, wrap("get version", err)
	}
	return v, nil
}

// ListByEvent returns the change log of an event, newest first.
func (r *VersionRepo) ListByEvent(ctx context.Context, eventID int64) ([]model.EventVersion, error) {
	q := `SELECT ` + versionColumns + ` FROM event_versions WHERE event_id=$1 ORDER BY edited_at DESC, seq DESC`
	rows, err := r.q.Query(ctx, q, eventID)
	if err != nil {
		return nil, wrap("list versions", err)
	}
	defer rows.Close()

	var out []model.EventVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, wrap("list versions", err)
		}
		out = append(out, *v)
	}
	return out, wrap("list versions", rows.Err())
}

func scanVersion(row pgx.Row) (*model.EventVersion, error) {
	var (
		v       model.EventVersion
		loc     *string
		pattern *string
	)
	err := row.Scan(&v.VersionID, &v.EventID, &v.OwnerID, &v.Title, &v.Description, &v.StartTime, &v.EndTime,
		&loc, &v.IsRecurring, &pattern, &v.EditedBy, &v.EditedAt)
	if err != nil {
		return nil, err
	}
	v.Location = loc
	v.RecurrencePattern = recurrenceOf(pattern)
	return &v, nil
}
