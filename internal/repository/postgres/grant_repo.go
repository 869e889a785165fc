package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/cems/internal/errs"
	"github.com/and161185/cems/internal/model"
)

// GrantRepo implements the permission store using PostgreSQL.
// (event_id, user_id) is the primary key, so a user holds at most one role per event.
type GrantRepo struct{ q querier }

// NewGrantRepo constructs a permission store.
func NewGrantRepo(db *DB) *GrantRepo { return &GrantRepo{q: db.Pool} }

// HasRole reports whether the exact grant exists.
func (r *GrantRepo) HasRole(ctx context.Context, eventID, userID int64, role model.Role) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM event_permissions WHERE event_id=$1 AND user_id=$2 AND role=$3)`
	var ok bool
	if err := r.q.QueryRow(ctx, q, eventID, userID, string(role)).Scan(&ok); err != nil {
		return false, wrap("has role", err)
	}
	return ok, nil
}

// List returns all grants of an event.
func (r *GrantRepo) List(ctx context.Context, eventID int64) ([]model.Grant, error) {
	const q = `SELECT user_id, role FROM event_permissions WHERE event_id=$1 ORDER BY user_id ASC`
	rows, err := r.q.Query(ctx, q, eventID)
	if err != nil {
		return nil, wrap("list grants", err)
	}
	defer rows.Close()

	var out []model.Grant
	for rows.Next() {
		var (
			uid  int64
			role string
		)
		if err = rows.Scan(&uid, &role); err != nil {
			return nil, wrap("list grants", err)
		}
		out = append(out, model.Grant{EventID: eventID, UserID: uid, Role: model.Role(role)})
	}
	if err = rows.Err(); err != nil {
		return nil, wrap("list grants", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("list grants: %w", errs.ErrNotFound)
	}
	return out, nil
}

// RolesOf returns current roles for the listed users.
func (r *GrantRepo) RolesOf(ctx context.Context, eventID int64, userIDs []int64) (map[int64]model.Role, error) {
	out := make(map[int64]model.Role, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	const q = `SELECT user_id, role FROM event_permissions WHERE event_id=$1 AND user_id = ANY($2)`
	rows, err := r.q.Query(ctx, q, eventID, userIDs)
	if err != nil {
		return nil, wrap("roles of", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			uid  int64
			role string
		)
		if err = rows.Scan(&uid, &role); err != nil {
			return nil, wrap("roles of", err)
		}
		out[uid] = model.Role(role)
	}
	return out, wrap("roles of", rows.Err())
}

// Upsert inserts the grant or replaces the role of the existing one.
func (r *GrantRepo) Upsert(ctx context.Context, g model.Grant) error {
	const q = `
INSERT INTO event_permissions (event_id, user_id, role)
VALUES ($1, $2, $3)
ON CONFLICT (event_id, user_id) DO UPDATE SET role = EXCLUDED.role`
	_, err := r.q.Exec(ctx, q, g.EventID, g.UserID, string(g.Role))
	return wrap("upsert grant", err)
}

// Update changes the role in place.
func (r *GrantRepo) Update(ctx context.Context, g model.Grant) (model.Grant, error) {
	const q = `UPDATE event_permissions SET role=$3 WHERE event_id=$1 AND user_id=$2`
	tag, err := r.q.Exec(ctx, q, g.EventID, g.UserID, string(g.Role))
	if err != nil {
		return model.Grant{}, wrap("update grant", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Grant{}, fmt.Errorf("update grant: %w", errs.ErrNotFound)
	}
	return g, nil
}

// Delete removes one grant and returns what was removed.
func (r *GrantRepo) Delete(ctx context.Context, eventID, userID int64) (model.Grant, error) {
	const q = `DELETE FROM event_permissions WHERE event_id=$1 AND user_id=$2 RETURNING role`
	var role string
	if err := r.q.QueryRow(ctx, q, eventID, userID).Scan(&role); err != nil {
		return model.Grant{}, wrap("delete grant", err)
	}
	return model.Grant{EventID: eventID, UserID: userID, Role: model.Role(role)}, nil
}

// DeleteByEvent drops all grants of an event.
func (r *GrantRepo) DeleteByEvent(ctx context.Context, eventID int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM event_permissions WHERE event_id=$1`, eventID)
	return wrap("delete grants", err)
}
