package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/cems/internal/calendar"
	"github.com/and161185/cems/internal/errs"
	"github.com/and161185/cems/internal/metrics"
	"github.com/and161185/cems/internal/model"
	"github.com/and161185/cems/internal/repository"
)

// EventService creates, mutates and reads events. Every mutation of an existing
// event first appends a snapshot of its current state to the version ledger.
type EventService interface {
	// Create persists an event and grants its owner the owner role.
	Create(ctx context.Context, ownerID int64, f model.EventFields) (*model.Event, error)
	// CreateBatch persists all events and their owner grants in one transaction.
	CreateBatch(ctx context.Context, ownerID int64, fs []model.EventFields) ([]model.Event, error)
	// Get returns an event readable by userID.
	Get(ctx context.Context, id, userID int64) (*model.Event, error)
	// List pages events on which userID holds any grant.
	List(ctx context.Context, userID int64, f model.ListFilter) ([]model.Event, error)
	// Update snapshots the current state and overwrites the mutable fields.
	Update(ctx context.Context, id int64, f model.EventFields, userID int64) (*model.Event, error)
	// Delete removes the event and its grants and returns the removed event.
	Delete(ctx context.Context, id, userID int64) (*model.Event, error)
	// Rollback restores the fields of a historical version as a regular update.
	Rollback(ctx context.Context, id int64, versionID uuid.UUID, userID int64) (model.RollbackResult, error)
	// Export renders the event as an iCalendar document.
	Export(ctx context.Context, id, userID int64) (string, error)
	// Occurrences expands the event inside [from, to].
	Occurrences(ctx context.Context, id, userID int64, from, to time.Time, max int) ([]model.Occurrence, error)
}

// ListLimits bounds listEvents paging.
type ListLimits struct {
	Default int
	Max     int
}

type EventServiceImpl struct {
	store    repository.Store
	validate *validator.Validate
	maxBatch int
	limits   ListLimits
	log      *zap.Logger
	now      func() time.Time
}

// NewEventService constructs EventService with batch and paging limits.
func NewEventService(store repository.Store, maxBatch int, limits ListLimits, log *zap.Logger) *EventServiceImpl {
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	if limits.Max <= 0 {
		limits.Max = 100
	}
	if limits.Default <= 0 || limits.Default > limits.Max {
		limits.Default = min(10, limits.Max)
	}
	return &EventServiceImpl{
		store:    store,
		validate: newValidator(),
		maxBatch: maxBatch,
		limits:   limits,
		log:      log,
		now:      time.Now,
	}
}

// Create validates fields and writes the event together with its owner grant.
func (s *EventServiceImpl) Create(ctx context.Context, ownerID int64, f model.EventFields) (*model.Event, error) {
	if err := checkFields(s.validate, f); err != nil {
		return nil, err
	}
	ev := &model.Event{OwnerID: ownerID, EventFields: f}
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Events().Create(ctx, ev); err != nil {
			return err
		}
		return r.Grants().Upsert(ctx, model.Grant{EventID: ev.ID, UserID: ownerID, Role: model.RoleOwner})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("event created", zap.Int64("event_id", ev.ID), zap.Int64("user_id", ownerID))
	return ev, nil
}

// CreateBatch rejects the whole batch if any element is invalid.
// Grants are written after all events, inside the same transaction.
func (s *EventServiceImpl) CreateBatch(ctx context.Context, ownerID int64, fs []model.EventFields) ([]model.Event, error) {
	if len(fs) == 0 {
		return nil, errs.Invalid("empty batch")
	}
	if len(fs) > s.maxBatch {
		return nil, errs.Invalid("batch too large (%d > %d)", len(fs), s.maxBatch)
	}
	for i := range fs {
		if err := checkFields(s.validate, fs[i]); err != nil {
			return nil, fmt.Errorf("event[%d]: %w", i, err)
		}
	}

	out := make([]model.Event, len(fs))
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		for i := range fs {
			out[i] = model.Event{OwnerID: ownerID, EventFields: fs[i]}
			if err := r.Events().Create(ctx, &out[i]); err != nil {
				return err
			}
		}
		for i := range out {
			g := model.Grant{EventID: out[i].ID, UserID: ownerID, Role: model.RoleOwner}
			if err := r.Grants().Upsert(ctx, g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("events created", zap.Int("count", len(out)), zap.Int64("user_id", ownerID))
	return out, nil
}

// Get returns the event if userID is its owner, editor or viewer.
func (s *EventServiceImpl) Get(ctx context.Context, id, userID int64) (*model.Event, error) {
	return loadEvent(ctx, s.store, id, userID, readRoles)
}

// List applies default and maximum page sizes; an empty page is NotFound.
func (s *EventServiceImpl) List(ctx context.Context, userID int64, f model.ListFilter) ([]model.Event, error) {
	if f.Offset < 0 {
		return nil, errs.Invalid("negative offset")
	}
	if f.Limit < 0 {
		return nil, errs.Invalid("negative limit")
	}
	if f.Limit == 0 {
		f.Limit = s.limits.Default
	}
	if f.Limit > s.limits.Max {
		f.Limit = s.limits.Max
	}
	evs, err := s.store.Events().ListAccessible(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return nil, fmt.Errorf("list events: %w", errs.ErrNotFound)
	}
	return evs, nil
}

// Update requires owner or editor access.
func (s *EventServiceImpl) Update(ctx context.Context, id int64, f model.EventFields, userID int64) (*model.Event, error) {
	if err := checkFields(s.validate, f); err != nil {
		return nil, err
	}
	var (
		updated *model.Event
		ver     model.EventVersion
	)
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		cur, err := loadEvent(ctx, r, id, userID, writeRoles)
		if err != nil {
			return err
		}
		updated, ver, err = s.overwrite(ctx, r, cur, f, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.VersionsAppended.Inc()
	s.log.Info("event updated",
		zap.Int64("event_id", id),
		zap.Int64("user_id", userID),
		zap.String("version_id", ver.VersionID.String()),
	)
	return updated, nil
}

// overwrite appends the pre-mutation snapshot of cur and then replaces its fields.
func (s *EventServiceImpl) overwrite(ctx context.Context, r repository.Repos, cur *model.Event, f model.EventFields, userID int64) (*model.Event, model.EventVersion, error) {
	ver, err := r.Versions().Append(ctx, *cur, userID, s.now().UTC())
	if err != nil {
		return nil, model.EventVersion{}, err
	}
	updated, err := r.Events().Update(ctx, cur.ID, f)
	if err != nil {
		return nil, model.EventVersion{}, err
	}
	return updated, ver, nil
}

// Delete is not versioned; the ledger keeps earlier snapshots of the event.
func (s *EventServiceImpl) Delete(ctx context.Context, id, userID int64) (*model.Event, error) {
	var pre *model.Event
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		ev, err := loadEvent(ctx, r, id, userID, writeRoles)
		if err != nil {
			return err
		}
		if err := r.Grants().DeleteByEvent(ctx, id); err != nil {
			return err
		}
		if err := r.Events().Delete(ctx, id); err != nil {
			return err
		}
		pre = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("event deleted", zap.Int64("event_id", id), zap.Int64("user_id", userID))
	return pre, nil
}

// Rollback loads the version keyed by (id, versionID) and applies its fields as an update,
// so the pre-rollback state becomes a new version.
func (s *EventServiceImpl) Rollback(ctx context.Context, id int64, versionID uuid.UUID, userID int64) (model.RollbackResult, error) {
	var (
		updated *model.Event
		ver     model.EventVersion
	)
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		cur, err := loadEvent(ctx, r, id, userID, writeRoles)
		if err != nil {
			return err
		}
		target, err := r.Versions().Get(ctx, id, versionID)
		if err != nil {
			return err
		}
		updated, ver, err = s.overwrite(ctx, r, cur, target.Fields(), userID)
		return err
	})
	if err != nil {
		return model.RollbackResult{}, err
	}
	metrics.VersionsAppended.Inc()
	metrics.Rollbacks.Inc()
	s.log.Info("event rolled back",
		zap.Int64("event_id", id),
		zap.Int64("user_id", userID),
		zap.String("target_version_id", versionID.String()),
		zap.String("version_id", ver.VersionID.String()),
	)
	return model.RollbackResult{
		Message: "event rolled back to version " + versionID.String(),
		Event:   *updated,
	}, nil
}

// Export requires read access.
func (s *EventServiceImpl) Export(ctx context.Context, id, userID int64) (string, error) {
	ev, err := loadEvent(ctx, s.store, id, userID, readRoles)
	if err != nil {
		return "", err
	}
	return calendar.Encode(*ev, s.now()), nil
}

// Occurrences requires read access.
func (s *EventServiceImpl) Occurrences(ctx context.Context, id, userID int64, from, to time.Time, max int) ([]model.Occurrence, error) {
	ev, err := loadEvent(ctx, s.store, id, userID, readRoles)
	if err != nil {
		return nil, err
	}
	return calendar.Occurrences(ev.EventFields, from, to, max)
}
