package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/cems/internal/errs"
	"github.com/and161185/cems/internal/model"
)

// EventRepo implements EventRepository using PostgreSQL.
type EventRepo struct{ q querier }

// NewEventRepo constructs an event repository.
func NewEventRepo(db *DB) *EventRepo { return &EventRepo{q: db.Pool} }

const eventColumns = `id, owner_id, title, description, start_time, end_time, location, is_recurring, recurrence_pattern, created_at`

// Create inserts a new event and fills in ID and CreatedAt.
func (r *EventRepo) Create(ctx context.Context, ev *model.Event) error {
	const q = `
INSERT INTO events (owner_id, title, description, start_time, end_time, location, is_recurring, recurrence_pattern)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at`
	err := r.q.QueryRow(ctx, q,
		ev.OwnerID, ev.Title, ev.Description, ev.StartTime, ev.EndTime,
		ev.Location, ev.IsRecurring, recurrenceArg(ev.RecurrencePattern),
	).Scan(&ev.ID, &ev.CreatedAt)
	return wrap("create event", err)
}

// Get loads a single event.
func (r *EventRepo) Get(ctx context.Context, id int64) (*model.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events WHERE id=$1`
	ev, err := scanEvent(r.q.QueryRow(ctx, q, id))
	if err != nil {
		return nil, wrap("get event", err)
	}
	return ev, nil
}

// ListAccessible pages events on which the user holds any grant.
// Search is a literal case-insensitive title substring; an empty search matches all.
func (r *EventRepo) ListAccessible(ctx context.Context, userID int64, f model.ListFilter) ([]model.Event, error) {
	const q = `
SELECT e.id, e.owner_id, e.title, e.description, e.start_time, e.end_time, e.location, e.is_recurring, e.recurrence_pattern, e.created_at
FROM events e
JOIN event_permissions p ON p.event_id = e.id
WHERE p.user_id = $1 AND strpos(lower(e.title), lower($2)) > 0
ORDER BY e.id ASC
LIMIT $3 OFFSET $4`
	rows, err := r.q.Query(ctx, q, userID, f.Search, f.Limit, f.Offset)
	if err != nil {
		return nil, wrap("list events", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, wrap("list events", err)
		}
		out = append(out, *ev)
	}
	return out, wrap("list events", rows.Err())
}

// Update overwrites mutable fields; id and owner_id are untouched.
func (r *EventRepo) Update(ctx context.Context, id int64, f model.EventFields) (*model.Event, error) {
	q := `
UPDATE events
SET title=$2, description=$3, start_time=$4, end_time=$5, location=$6, is_recurring=$7, recurrence_pattern=$8
WHERE id=$1
RETURNING ` + eventColumns
	ev, err := scanEvent(r.q.QueryRow(ctx, q,
		id, f.Title, f.Description, f.StartTime, f.EndTime, f.Location, f.IsRecurring, recurrenceArg(f.RecurrencePattern),
	))
	if err != nil {
		return nil, wrap("update event", err)
	}
	return ev, nil
}

// Delete removes an event row.
func (r *EventRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM events WHERE id=$1`, id)
	if err != nil {
		return wrap("delete event", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete event: %w", errs.ErrNotFound)
	}
	return nil
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var (
		ev      model.Event
		loc     *string
		pattern *string
	)
	err := row.Scan(&ev.ID, &ev.OwnerID, &ev.Title, &ev.Description, &ev.StartTime, &ev.EndTime,
		&loc, &ev.IsRecurring, &pattern, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	ev.Location = loc
	ev.RecurrencePattern = recurrenceOf(pattern)
	return &ev, nil
}

func recurrenceArg(r *model.Recurrence) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}

func recurrenceOf(s *string) *model.Recurrence {
	if s == nil {
		return nil
	}
	r := model.Recurrence(*s)
	return &r
}
