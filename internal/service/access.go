package service

import (
	"context"
	"fmt"

	"github.com/and161185/cems/internal/errs"
	"github.com/and161185/cems/internal/model"
	"github.com/and161185/cems/internal/repository"
)

// Collaborator roles sufficient for each class of operation. The owner is
// always accepted and is recognised from Event.OwnerID, not from a grant.
var (
	readRoles  = []model.Role{model.RoleEditor, model.RoleViewer}
	writeRoles = []model.Role{model.RoleEditor}
)

// authorize checks owner, then each collaborator role in order, one exact-match lookup per role.
func authorize(ctx context.Context, grants repository.GrantRepository, ev *model.Event, userID int64, roles []model.Role) error {
	if ev.OwnerID == userID {
		return nil
	}
	for _, role := range roles {
		ok, err := grants.HasRole(ctx, ev.ID, userID, role)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("event %d: user %d: %w", ev.ID, userID, errs.ErrForbidden)
}

// loadEvent fetches the event and authorizes userID on it.
// A missing event is NotFound even for users without access.
func loadEvent(ctx context.Context, r repository.Repos, eventID, userID int64, roles []model.Role) (*model.Event, error) {
	ev, err := r.Events().Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, r.Grants(), ev, userID, roles); err != nil {
		return nil, err
	}
	return ev, nil
}
