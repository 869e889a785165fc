package service

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/and161185/cems/internal/errs"
	"github.com/and161185/cems/internal/metrics"
	"github.com/and161185/cems/internal/model"
	"github.com/and161185/cems/internal/repository"
)

// SharingService manages collaborator grants on events.
type SharingService interface {
	// Share grants the requested roles and returns only the grants that were written.
	Share(ctx context.Context, eventID int64, req []model.GrantRequest, userID int64) ([]model.Grant, error)
	// ListPermissions returns every grant of the event ordered by user.
	ListPermissions(ctx context.Context, eventID, userID int64) ([]model.Grant, error)
	// UpdatePermission changes the role of an existing collaborator.
	UpdatePermission(ctx context.Context, eventID, targetID int64, role model.Role, userID int64) (model.Grant, error)
	// DeletePermission revokes a collaborator's grant and returns it.
	DeletePermission(ctx context.Context, eventID, targetID, userID int64) (model.Grant, error)
}

type SharingServiceImpl struct {
	store repository.Store
	log   *zap.Logger
}

// NewSharingService constructs SharingService.
func NewSharingService(store repository.Store, log *zap.Logger) *SharingServiceImpl {
	return &SharingServiceImpl{store: store, log: log}
}

// Reconcile returns the grants that must be written to move current towards requested.
// A request matching the current role is dropped; for repeated users the last request wins.
// The result keeps the order in which users first appear.
func Reconcile(eventID int64, current map[int64]model.Role, requested []model.GrantRequest) []model.Grant {
	want := make(map[int64]model.Role, len(requested))
	order := make([]int64, 0, len(requested))
	for _, r := range requested {
		if _, seen := want[r.UserID]; !seen {
			order = append(order, r.UserID)
		}
		want[r.UserID] = r.Role
	}
	delta := make([]model.Grant, 0, len(order))
	for _, uid := range order {
		role := want[uid]
		if cur, ok := current[uid]; ok && cur == role {
			continue
		}
		delta = append(delta, model.Grant{EventID: eventID, UserID: uid, Role: role})
	}
	return delta
}

// Share checks every target user exists before writing anything.
func (s *SharingServiceImpl) Share(ctx context.Context, eventID int64, req []model.GrantRequest, userID int64) ([]model.Grant, error) {
	for i, r := range req {
		if err := checkCollaboratorRole(r.Role); err != nil {
			return nil, fmt.Errorf("grant[%d]: %w", i, err)
		}
	}

	var delta []model.Grant
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		ev, err := loadEvent(ctx, r, eventID, userID, writeRoles)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(req))
		for _, g := range req {
			if g.UserID == ev.OwnerID {
				return errs.Invalid("user %d owns event %d", g.UserID, eventID)
			}
			if !slices.Contains(ids, g.UserID) {
				ids = append(ids, g.UserID)
			}
		}
		if len(ids) == 0 {
			delta = []model.Grant{}
			return nil
		}
		found, err := r.Users().Existing(ctx, ids)
		if err != nil {
			return err
		}
		if missing := subtract(ids, found); len(missing) > 0 {
			return fmt.Errorf("users %v: %w", missing, errs.ErrNotFound)
		}
		current, err := r.Grants().RolesOf(ctx, eventID, ids)
		if err != nil {
			return err
		}
		delta = Reconcile(eventID, current, req)
		for _, g := range delta {
			if err := r.Grants().Upsert(ctx, g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(delta) > 0 {
		metrics.GrantsWritten.Add(float64(len(delta)))
	}
	s.log.Info("event shared",
		zap.Int64("event_id", eventID),
		zap.Int64("user_id", userID),
		zap.Int("requested", len(req)),
		zap.Int("written", len(delta)),
	)
	return delta, nil
}

// ListPermissions requires owner or editor access.
func (s *SharingServiceImpl) ListPermissions(ctx context.Context, eventID, userID int64) ([]model.Grant, error) {
	if _, err := loadEvent(ctx, s.store, eventID, userID, writeRoles); err != nil {
		return nil, err
	}
	return s.store.Grants().List(ctx, eventID)
}

// UpdatePermission modifies the grant in place; the owner's grant is immutable.
func (s *SharingServiceImpl) UpdatePermission(ctx context.Context, eventID, targetID int64, role model.Role, userID int64) (model.Grant, error) {
	if err := checkCollaboratorRole(role); err != nil {
		return model.Grant{}, err
	}
	var out model.Grant
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		ev, err := loadEvent(ctx, r, eventID, userID, writeRoles)
		if err != nil {
			return err
		}
		if targetID == ev.OwnerID {
			return errs.Invalid("cannot change the owner's role")
		}
		out, err = r.Grants().Update(ctx, model.Grant{EventID: eventID, UserID: targetID, Role: role})
		return err
	})
	if err != nil {
		return model.Grant{}, err
	}
	metrics.GrantsWritten.Inc()
	s.log.Info("permission updated",
		zap.Int64("event_id", eventID),
		zap.Int64("user_id", userID),
		zap.Int64("target_id", targetID),
		zap.String("role", string(role)),
	)
	return out, nil
}

// DeletePermission removes a collaborator grant; the owner's grant cannot be removed.
func (s *SharingServiceImpl) DeletePermission(ctx context.Context, eventID, targetID, userID int64) (model.Grant, error) {
	var out model.Grant
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		ev, err := loadEvent(ctx, r, eventID, userID, writeRoles)
		if err != nil {
			return err
		}
		if targetID == ev.OwnerID {
			return errs.Invalid("cannot revoke the owner's grant")
		}
		out, err = r.Grants().Delete(ctx, eventID, targetID)
		return err
	})
	if err != nil {
		return model.Grant{}, err
	}
	s.log.Info("permission deleted",
		zap.Int64("event_id", eventID),
		zap.Int64("user_id", userID),
		zap.Int64("target_id", targetID),
	)
	return out, nil
}

func subtract(all, have []int64) []int64 {
	var out []int64
	for _, id := range all {
		if !slices.Contains(have, id) {
			out = append(out, id)
		}
	}
	return out
}
