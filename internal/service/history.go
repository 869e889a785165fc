package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/cems/internal/cache"
	"github.com/and161185/cems/internal/diff"
	"github.com/and161185/cems/internal/errs"
	"github.com/and161185/cems/internal/model"
	"github.com/and161185/cems/internal/repository"
)

// HistoryService reads the version ledger. Results may be served from a TTL cache
// and can be up to one TTL stale.
type HistoryService interface {
	// Changelog lists versions newest first; NotFound if the event has none.
	Changelog(ctx context.Context, eventID, userID int64) ([]model.EventVersion, error)
	// GetVersion returns one version of the event.
	GetVersion(ctx context.Context, eventID int64, versionID uuid.UUID, userID int64) (*model.EventVersion, error)
	// Diff compares two versions of the same event, old from v1 and new from v2.
	Diff(ctx context.Context, eventID int64, v1, v2 uuid.UUID, userID int64) (model.Changes, error)
	// DiffCurrent compares a version (old) with the live event (new).
	DiffCurrent(ctx context.Context, eventID int64, versionID uuid.UUID, userID int64) (model.Changes, error)
}

type HistoryServiceImpl struct {
	store repository.Store
	cache *cache.Cache
}

// NewHistoryService constructs HistoryService; c may be nil.
func NewHistoryService(store repository.Store, c *cache.Cache) *HistoryServiceImpl {
	return &HistoryServiceImpl{store: store, cache: c}
}

// Changelog requires read access.
func (s *HistoryServiceImpl) Changelog(ctx context.Context, eventID, userID int64) ([]model.EventVersion, error) {
	key := cache.Key("changelog", eventID, userID)
	return cache.Through(ctx, s.cache, key, func(ctx context.Context) ([]model.EventVersion, error) {
		if _, err := loadEvent(ctx, s.store, eventID, userID, readRoles); err != nil {
			return nil, err
		}
		vs, err := s.store.Versions().ListByEvent(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if len(vs) == 0 {
			return nil, fmt.Errorf("event %d has no history: %w", eventID, errs.ErrNotFound)
		}
		return vs, nil
	})
}

// GetVersion requires read access.
func (s *HistoryServiceImpl) GetVersion(ctx context.Context, eventID int64, versionID uuid.UUID, userID int64) (*model.EventVersion, error) {
	key := cache.Key("version", eventID, versionID, userID)
	return cache.Through(ctx, s.cache, key, func(ctx context.Context) (*model.EventVersion, error) {
		if _, err := loadEvent(ctx, s.store, eventID, userID, readRoles); err != nil {
			return nil, err
		}
		return s.store.Versions().Get(ctx, eventID, versionID)
	})
}

// Diff requires read access; both versions must belong to the event.
func (s *HistoryServiceImpl) Diff(ctx context.Context, eventID int64, v1, v2 uuid.UUID, userID int64) (model.Changes, error) {
	key := cache.Key("diff", eventID, v1, v2, userID)
	return cache.Through(ctx, s.cache, key, func(ctx context.Context) (model.Changes, error) {
		if _, err := loadEvent(ctx, s.store, eventID, userID, readRoles); err != nil {
			return nil, err
		}
		a, err := s.store.Versions().Get(ctx, eventID, v1)
		if err != nil {
			return nil, err
		}
		b, err := s.store.Versions().Get(ctx, eventID, v2)
		if err != nil {
			return nil, err
		}
		return diff.Versions(*a, *b), nil
	})
}

// DiffCurrent requires read access.
func (s *HistoryServiceImpl) DiffCurrent(ctx context.Context, eventID int64, versionID uuid.UUID, userID int64) (model.Changes, error) {
	key := cache.Key("diff-current", eventID, versionID, userID)
	return cache.Through(ctx, s.cache, key, func(ctx context.Context) (model.Changes, error) {
		ev, err := loadEvent(ctx, s.store, eventID, userID, readRoles)
		if err != nil {
			return nil, err
		}
		v, err := s.store.Versions().Get(ctx, eventID, versionID)
		if err != nil {
			return nil, err
		}
		return diff.Fields(v.Fields(), ev.EventFields), nil
	})
}
