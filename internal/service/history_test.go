package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/cems/internal/cache"
	"github.com/and161185/cems/internal/diff"
	"github.com/and161185/cems/internal/errs"
	"github.com/and161185/cems/internal/kv"
	"github.com/and161185/cems/internal/model"
)

func TestHistory_StandupScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newMemStore()
	u1, u2 := st.addUser("u1"), st.addUser("u2")
	events := newEvents(st)
	sharing := NewSharingService(st, zap.NewNop())
	history := NewHistoryService(st, nil)

	ev, err := events.Create(ctx, u1, fields("Standup"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := sharing.Share(ctx, ev.ID, []model.GrantRequest{{UserID: u2, Role: model.RoleEditor}}, u1); err != nil {
		t.Fatalf("Share: %v", err)
	}
	if _, err := history.Changelog(ctx, ev.ID, u1); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("no history yet: want not found, got %v", err)
	}
	if _, err := events.Update(ctx, ev.ID, fields("Standup (moved)"), u2); err != nil {
		t.Fatalf("Update: %v", err)
	}

	log, err := history.Changelog(ctx, ev.ID, u1)
	if err != nil {
		t.Fatalf("Changelog: %v", err)
	}
	if len(log) != 1 || log[0].Title != "Standup" || log[0].EditedBy != u2 {
		t.Fatalf("changelog = %+v", log)
	}

	got, err := history.DiffCurrent(ctx, ev.ID, log[0].VersionID, u2)
	if err != nil {
		t.Fatalf("DiffCurrent: %v", err)
	}
	want := model.Changes{diff.FieldTitle: {Old: "Standup", New: "Standup (moved)"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DiffCurrent = %+v", got)
	}
}

func TestHistory_StrangerIsForbidden(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newMemStore()
	u1, u3 := st.addUser("u1"), st.addUser("u3")
	events := newEvents(st)
	history := NewHistoryService(st, nil)
	ev, _ := events.Create(ctx, u1, fields("Standup"))
	_, _ = events.Update(ctx, ev.ID, fields("x"), u1)
	vid := st.versions[0].VersionID

	if _, err := events.Get(ctx, ev.ID, u3); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("getEvent: want forbidden, got %v", err)
	}
	if _, err := history.Changelog(ctx, ev.ID, u3); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("changelog: want forbidden, got %v", err)
	}
	if _, err := history.GetVersion(ctx, ev.ID, vid, u3); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("getVersion: want forbidden, got %v", err)
	}
	if _, err := history.Diff(ctx, ev.ID, vid, vid, u3); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("diff: want forbidden, got %v", err)
	}
}

func TestHistory_DiffVersions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newMemStore()
	u1 := st.addUser("u1")
	events := newEvents(st)
	history := NewHistoryService(st, nil)
	ev, _ := events.Create(ctx, u1, fields("a"))
	_, _ = events.Update(ctx, ev.ID, fields("b"), u1)
	_, _ = events.Update(ctx, ev.ID, fields("c"), u1)
	va, vb := st.versions[0].VersionID, st.versions[1].VersionID

	ab, err := history.Diff(ctx, ev.ID, va, vb, u1)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	ba, err := history.Diff(ctx, ev.ID, vb, va, u1)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if !reflect.DeepEqual(ab, diff.Swap(ba)) {
		t.Fatalf("diff(a,b) != swap(diff(b,a)): %+v vs %+v", ab, ba)
	}
	if ab[diff.FieldTitle] != (model.FieldChange{Old: "a", New: "b"}) {
		t.Fatalf("title change = %+v", ab[diff.FieldTitle])
	}

	same, err := history.Diff(ctx, ev.ID, va, va, u1)
	if err != nil || len(same) != 0 {
		t.Fatalf("diff(a,a): %v %+v", err, same)
	}
	if _, err := history.Diff(ctx, ev.ID, va, uuid.Must(uuid.NewV4()), u1); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("unknown version: want not found, got %v", err)
	}

	v, err := history.GetVersion(ctx, ev.ID, vb, u1)
	if err != nil || v.Title != "b" {
		t.Fatalf("GetVersion: %v %+v", err, v)
	}
}

func TestHistory_CacheServesStaleChangelog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := kv.Open(kv.Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	st := newMemStore()
	u1 := st.addUser("u1")
	events := newEvents(st)
	history := NewHistoryService(st, cache.New(store, time.Minute, zap.NewNop()))
	ev, _ := events.Create(ctx, u1, fields("a"))

	if _, err := history.Changelog(ctx, ev.ID, u1); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
	_, _ = events.Update(ctx, ev.ID, fields("b"), u1)

	first, err := history.Changelog(ctx, ev.ID, u1)
	if err != nil || len(first) != 1 {
		t.Fatalf("errors must not be cached: %v %d", err, len(first))
	}
	_, _ = events.Update(ctx, ev.ID, fields("c"), u1)

	second, err := history.Changelog(ctx, ev.ID, u1)
	if err != nil {
		t.Fatalf("Changelog: %v", err)
	}
	if len(second) != 1 || second[0].VersionID != first[0].VersionID {
		t.Fatalf("want cached changelog within TTL, got %d entries", len(second))
	}
}
