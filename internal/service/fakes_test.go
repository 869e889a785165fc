package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/cems/internal/errs"
	"github.com/and161185/cems/internal/model"
	"github.com/and161185/cems/internal/repository"
)

type grantKey struct{ event, user int64 }

// memStore is an in-memory repository.Store. WithTx restores the previous
// state when fn fails. fail injects an error into the named operation.
type memStore struct {
	users    map[int64]model.User
	events   map[int64]model.Event
	versions []model.EventVersion
	grants   map[grantKey]model.Role

	nextUser, nextEvent int64

	fail         map[string]error
	hasRoleCalls int
	txCount      int
}

var _ repository.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		users:  map[int64]model.User{},
		events: map[int64]model.Event{},
		grants: map[grantKey]model.Role{},
		fail:   map[string]error{},
	}
}

func (m *memStore) addUser(name string) int64 {
	m.nextUser++
	m.users[m.nextUser] = model.User{ID: m.nextUser, Username: name, Email: name + "@example.com"}
	return m.nextUser
}

func (m *memStore) injected(op string) error { return m.fail[op] }

func (m *memStore) Users() repository.UserRepository       { return memUsers{m} }
func (m *memStore) Events() repository.EventRepository     { return memEvents{m} }
func (m *memStore) Versions() repository.VersionRepository { return memVersions{m} }
func (m *memStore) Grants() repository.GrantRepository     { return memGrants{m} }

func (m *memStore) WithTx(_ context.Context, fn func(r repository.Repos) error) error {
	m.txCount++
	users, events, grants := maps.Clone(m.users), maps.Clone(m.events), maps.Clone(m.grants)
	versions := slices.Clone(m.versions)
	nextUser, nextEvent := m.nextUser, m.nextEvent
	if err := fn(m); err != nil {
		m.users, m.events, m.grants, m.versions = users, events, grants, versions
		m.nextUser, m.nextEvent = nextUser, nextEvent
		return err
	}
	return nil
}

type memUsers struct{ m *memStore }

func (r memUsers) Create(_ context.Context, u *model.User) error {
	if err := r.m.injected("users.create"); err != nil {
		return err
	}
	for _, x := range r.m.users {
		if x.Email == u.Email {
			return fmt.Errorf("create user: %w", errs.ErrAlreadyExists)
		}
	}
	r.m.nextUser++
	u.ID, u.CreatedAt = r.m.nextUser, time.Now()
	r.m.users[u.ID] = *u
	return nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range r.m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("get user: %w", errs.ErrNotFound)
}

func (r memUsers) Existing(_ context.Context, ids []int64) ([]int64, error) {
	var out []int64
	for _, id := range ids {
		if _, ok := r.m.users[id]; ok {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

type memEvents struct{ m *memStore }

func (r memEvents) Create(_ context.Context, ev *model.Event) error {
	if err := r.m.injected("events.create"); err != nil {
		return err
	}
	r.m.nextEvent++
	ev.ID, ev.CreatedAt = r.m.nextEvent, time.Now()
	r.m.events[ev.ID] = *ev
	return nil
}

func (r memEvents) Get(_ context.Context, id int64) (*model.Event, error) {
	ev, ok := r.m.events[id]
	if !ok {
		return nil, fmt.Errorf("get event: %w", errs.ErrNotFound)
	}
	return &ev, nil
}

func (r memEvents) ListAccessible(_ context.Context, userID int64, f model.ListFilter) ([]model.Event, error) {
	var all []model.Event
	for _, ev := range r.m.events {
		if _, ok := r.m.grants[grantKey{ev.ID, userID}]; !ok {
			continue
		}
		if !strings.Contains(strings.ToLower(ev.Title), strings.ToLower(f.Search)) {
			continue
		}
		all = append(all, ev)
	}
	slices.SortFunc(all, func(a, b model.Event) int { return int(a.ID - b.ID) })
	if f.Offset >= len(all) {
		return nil, nil
	}
	all = all[f.Offset:]
	if len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, nil
}

func (r memEvents) Update(_ context.Context, id int64, f model.EventFields) (*model.Event, error) {
	if err := r.m.injected("events.update"); err != nil {
		return nil, err
	}
	ev, ok := r.m.events[id]
	if !ok {
		return nil, fmt.Errorf("update event: %w", errs.ErrNotFound)
	}
	ev.EventFields = f
	r.m.events[id] = ev
	return &ev, nil
}

func (r memEvents) Delete(_ context.Context, id int64) error {
	if _, ok := r.m.events[id]; !ok {
		return fmt.Errorf("delete event: %w", errs.ErrNotFound)
	}
	delete(r.m.events, id)
	for k := range r.m.grants {
		if k.event == id {
			delete(r.m.grants, k)
		}
	}
	return nil
}

type memVersions struct{ m *memStore }

func (r memVersions) Append(_ context.Context, snap model.Event, editedBy int64, at time.Time) (model.EventVersion, error) {
	if err := r.m.injected("versions.append"); err != nil {
		return model.EventVersion{}, err
	}
	v := model.EventVersion{
		VersionID:   uuid.Must(uuid.NewV4()),
		EventID:     snap.ID,
		OwnerID:     snap.OwnerID,
		EventFields: snap.EventFields,
		EditedBy:    editedBy,
		EditedAt:    at,
	}
	r.m.versions = append(r.m.versions, v)
	return v, nil
}

func (r memVersions) Get(_ context.Context, eventID int64, versionID uuid.UUID) (*model.EventVersion, error) {
	for _, v := range r.m.versions {
		if v.VersionID == versionID && v.EventID == eventID {
			return &v, nil
		}
	}
	return nil, fmt.Errorf("get version: %w", errs.ErrNotFound)
}

// ListByEvent walks the ledger backwards: newest first, ties by insertion order.
func (r memVersions) ListByEvent(_ context.Context, eventID int64) ([]model.EventVersion, error) {
	var out []model.EventVersion
	for i := len(r.m.versions) - 1; i >= 0; i-- {
		if r.m.versions[i].EventID == eventID {
			out = append(out, r.m.versions[i])
		}
	}
	return out, nil
}

type memGrants struct{ m *memStore }

func (r memGrants) HasRole(_ context.Context, eventID, userID int64, role model.Role) (bool, error) {
	r.m.hasRoleCalls++
	if err := r.m.injected("grants.hasrole"); err != nil {
		return false, err
	}
	got, ok := r.m.grants[grantKey{eventID, userID}]
	return ok && got == role, nil
}

func (r memGrants) List(_ context.Context, eventID int64) ([]model.Grant, error) {
	var out []model.Grant
	for k, role := range r.m.grants {
		if k.event == eventID {
			out = append(out, model.Grant{EventID: k.event, UserID: k.user, Role: role})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("list grants: %w", errs.ErrNotFound)
	}
	slices.SortFunc(out, func(a, b model.Grant) int { return int(a.UserID - b.UserID) })
	return out, nil
}

func (r memGrants) RolesOf(_ context.Context, eventID int64, userIDs []int64) (map[int64]model.Role, error) {
	out := map[int64]model.Role{}
	for _, id := range userIDs {
		if role, ok := r.m.grants[grantKey{eventID, id}]; ok {
			out[id] = role
		}
	}
	return out, nil
}

func (r memGrants) Upsert(_ context.Context, g model.Grant) error {
	if err := r.m.injected("grants.upsert"); err != nil {
		return err
	}
	r.m.grants[grantKey{g.EventID, g.UserID}] = g.Role
	return nil
}

func (r memGrants) Update(_ context.Context, g model.Grant) (model.Grant, error) {
	k := grantKey{g.EventID, g.UserID}
	if _, ok := r.m.grants[k]; !ok {
		return model.Grant{}, fmt.Errorf("update grant: %w", errs.ErrNotFound)
	}
	r.m.grants[k] = g.Role
	return g, nil
}

func (r memGrants) Delete(_ context.Context, eventID, userID int64) (model.Grant, error) {
	k := grantKey{eventID, userID}
	role, ok := r.m.grants[k]
	if !ok {
		return model.Grant{}, fmt.Errorf("delete grant: %w", errs.ErrNotFound)
	}
	delete(r.m.grants, k)
	return model.Grant{EventID: eventID, UserID: userID, Role: role}, nil
}

func (r memGrants) DeleteByEvent(_ context.Context, eventID int64) error {
	for k := range r.m.grants {
		if k.event == eventID {
			delete(r.m.grants, k)
		}
	}
	return nil
}
