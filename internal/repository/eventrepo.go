package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/cems/internal/model"
)

// EventRepository stores the live state of events.
type EventRepository interface {
	// Create persists ev and assigns its ID and CreatedAt.
	Create(ctx context.Context, ev *model.Event) error
	// Get loads a single event by ID.
	Get(ctx context.Context, id int64) (*model.Event, error)
	// ListAccessible pages events on which userID holds any grant, ordered by ID.
	ListAccessible(ctx context.Context, userID int64, f model.ListFilter) ([]model.Event, error)
	// Update overwrites the mutable fields, keeping ID and OwnerID.
	Update(ctx context.Context, id int64, f model.EventFields) (*model.Event, error)
	// Delete removes the event row.
	Delete(ctx context.Context, id int64) error
}

// VersionRepository is the append-only version ledger.
type VersionRepository interface {
	// Append records the given (pre-mutation) event state and returns the new version.
	Append(ctx context.Context, snapshot model.Event, editedBy int64, at time.Time) (model.EventVersion, error)
	// Get loads a version; eventID is part of the key.
	Get(ctx context.Context, eventID int64, versionID uuid.UUID) (*model.EventVersion, error)
	// ListByEvent returns versions newest first (ties: latest insert first). Empty is not an error.
	ListByEvent(ctx context.Context, eventID int64) ([]model.EventVersion, error)
}

// GrantRepository is the per-event permission store.
type GrantRepository interface {
	// HasRole reports whether an exact (event, user, role) grant exists.
	HasRole(ctx context.Context, eventID, userID int64, role model.Role) (bool, error)
	// List returns all grants of an event ordered by user; ErrNotFound if none.
	List(ctx context.Context, eventID int64) ([]model.Grant, error)
	// RolesOf returns the current role of each listed user that has a grant.
	RolesOf(ctx context.Context, eventID int64, userIDs []int64) (map[int64]model.Role, error)
	// Upsert inserts or replaces the grant keyed by (event, user).
	Upsert(ctx context.Context, g model.Grant) error
	// Update changes the role of an existing grant; ErrNotFound if absent.
	Update(ctx context.Context, g model.Grant) (model.Grant, error)
	// Delete removes a grant and returns it; ErrNotFound if absent.
	Delete(ctx context.Context, eventID, userID int64) (model.Grant, error)
	// DeleteByEvent removes every grant of an event.
	DeleteByEvent(ctx context.Context, eventID int64) error
}
