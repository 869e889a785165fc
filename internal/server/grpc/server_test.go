package grpcserver

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/and161185/cems/internal/api"
	"github.com/and161185/cems/internal/errs"
	"github.com/and161185/cems/internal/model"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const goodToken = "good"

type fakeAuth struct {
	lastEmail string
	lastIP    string
	loggedOut string
}

func (f *fakeAuth) Register(_ context.Context, username, email, password string) (int64, error) {
	if username == "" || password == "" {
		return 0, errs.Invalid("username, email and password are required")
	}
	return 7, nil
}
func (f *fakeAuth) LoginWithIP(_ context.Context, email, password, ip string) (model.Tokens, model.User, error) {
	f.lastEmail, f.lastIP = email, ip
	if password != "p" {
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}
	return model.Tokens{AccessToken: goodToken, ExpiresAt: time.Now().Add(time.Minute)},
		model.User{ID: 7, Username: "alice", Email: email}, nil
}
func (f *fakeAuth) Logout(_ context.Context, token string) error {
	f.loggedOut = token
	return nil
}
func (f *fakeAuth) Authenticate(_ context.Context, token string) (int64, error) {
	if token != goodToken {
		return 0, fmt.Errorf("%w: bad token", errs.ErrUnauthorized)
	}
	return 7, nil
}

type fakeEvents struct{ lastFilter model.ListFilter }

func (f *fakeEvents) Create(_ context.Context, ownerID int64, fl model.EventFields) (*model.Event, error) {
	return &model.Event{ID: 1, OwnerID: ownerID, EventFields: fl}, nil
}
func (f *fakeEvents) CreateBatch(_ context.Context, ownerID int64, fs []model.EventFields) ([]model.Event, error) {
	out := make([]model.Event, 0, len(fs))
	for i, fl := range fs {
		out = append(out, model.Event{ID: int64(i + 1), OwnerID: ownerID, EventFields: fl})
	}
	return out, nil
}
func (f *fakeEvents) Get(_ context.Context, id, _ int64) (*model.Event, error) {
	if id == 404 {
		return nil, fmt.Errorf("event %d: %w", id, errs.ErrNotFound)
	}
	if id == 403 {
		return nil, fmt.Errorf("%w: event %d", errs.ErrForbidden, id)
	}
	return &model.Event{ID: id, OwnerID: 1, EventFields: model.EventFields{Title: "x"}}, nil
}
func (f *fakeEvents) List(_ context.Context, _ int64, fl model.ListFilter) ([]model.Event, error) {
	f.lastFilter = fl
	return []model.Event{}, nil
}
func (f *fakeEvents) Update(_ context.Context, id int64, fl model.EventFields, _ int64) (*model.Event, error) {
	return &model.Event{ID: id, OwnerID: 1, EventFields: fl}, nil
}
func (f *fakeEvents) Delete(_ context.Context, id, _ int64) (*model.Event, error) {
	return &model.Event{ID: id, OwnerID: 1, EventFields: model.EventFields{Title: "gone"}}, nil
}
func (f *fakeEvents) Rollback(_ context.Context, id int64, versionID uuid.UUID, _ int64) (model.RollbackResult, error) {
	return model.RollbackResult{
		Message: "event rolled back to version " + versionID.String(),
		Event:   model.Event{ID: id, OwnerID: 1},
	}, nil
}
func (f *fakeEvents) Export(context.Context, int64, int64) (string, error) {
	return "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n", nil
}
func (f *fakeEvents) Occurrences(_ context.Context, _, _ int64, from, to time.Time, _ int) ([]model.Occurrence, error) {
	return []model.Occurrence{{Start: from, End: to}}, nil
}

type fakeSharing struct{}

func (fakeSharing) Share(_ context.Context, eventID int64, req []model.GrantRequest, _ int64) ([]model.Grant, error) {
	out := make([]model.Grant, 0, len(req))
	for _, r := range req {
		if !r.Role.Valid() {
			return nil, errs.Invalid("unknown role %q", r.Role)
		}
		out = append(out, model.Grant{EventID: eventID, UserID: r.UserID, Role: r.Role})
	}
	return out, nil
}
func (fakeSharing) ListPermissions(_ context.Context, eventID, _ int64) ([]model.Grant, error) {
	return []model.Grant{{EventID: eventID, UserID: 2, Role: model.RoleViewer}}, nil
}
func (fakeSharing) UpdatePermission(_ context.Context, eventID, targetID int64, role model.Role, _ int64) (model.Grant, error) {
	return model.Grant{EventID: eventID, UserID: targetID, Role: role}, nil
}
func (fakeSharing) DeletePermission(_ context.Context, eventID, targetID, _ int64) (model.Grant, error) {
	return model.Grant{EventID: eventID, UserID: targetID, Role: model.RoleEditor}, nil
}

type fakeHistory struct{}

func (fakeHistory) Changelog(_ context.Context, eventID, _ int64) ([]model.EventVersion, error) {
	return []model.EventVersion{{VersionID: uuid.Must(uuid.NewV4()), EventID: eventID}}, nil
}
func (fakeHistory) GetVersion(_ context.Context, eventID int64, versionID uuid.UUID, _ int64) (*model.EventVersion, error) {
	return &model.EventVersion{VersionID: versionID, EventID: eventID}, nil
}
func (fakeHistory) Diff(context.Context, int64, uuid.UUID, uuid.UUID, int64) (model.Changes, error) {
	return model.Changes{"title": {Old: "a", New: "b"}}, nil
}
func (fakeHistory) DiffCurrent(context.Context, int64, uuid.UUID, int64) (model.Changes, error) {
	return model.Changes{}, nil
}

const bufSize = 1 << 20

func startBufGRPC(t *testing.T, srv *Server, auth Authenticator) *api.Client {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	log := zaptest.NewLogger(t)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoverUnary(log),
		MetricsUnary(),
		LoggingUnary(log),
		AuthUnary(auth),
	))
	RegisterCalendarServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })
	return api.NewClient(cc)
}

func newTestServer(t *testing.T) (*api.Client, *fakeAuth, *fakeEvents) {
	t.Helper()
	a := &fakeAuth{}
	ev := &fakeEvents{}
	srv := New(a, ev, fakeSharing{}, fakeHistory{})
	return startBufGRPC(t, srv, a), a, ev
}

func authed(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if st, ok := status.FromError(err); !ok || st.Code() != code {
		t.Fatalf("want %v, got %v", code, err)
	}
}

func TestServer_E2E_BasicFlow(t *testing.T) {
	t.Parallel()

	cl, a, _ := newTestServer(t)
	ctx := context.Background()

	rr, err := cl.Register(ctx, &api.RegisterRequest{Username: "alice", Email: "a@x.io", Password: "p"})
	if err != nil || rr.UserID != 7 {
		t.Fatalf("register: %v, resp=%+v", err, rr)
	}

	lr, err := cl.Login(ctx, &api.LoginRequest{Email: "a@x.io", Password: "p"})
	if err != nil || lr.AccessToken != goodToken || lr.UserID != 7 || lr.Username != "alice" {
		t.Fatalf("login: %v, resp=%+v", err, lr)
	}
	if a.lastEmail != "a@x.io" {
		t.Fatalf("login email not forwarded: %q", a.lastEmail)
	}

	actx := authed(lr.AccessToken)
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	pattern := "weekly"
	cr, err := cl.CreateEvent(actx, &api.CreateEventRequest{Event: api.EventFields{
		Title:             "Standup",
		StartTime:         start,
		EndTime:           start.Add(15 * time.Minute),
		IsRecurring:       true,
		RecurrencePattern: &pattern,
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if cr.Event.OwnerID != 7 || cr.Event.Title != "Standup" || !cr.Event.StartTime.Equal(start) {
		t.Fatalf("create resp: %+v", cr.Event)
	}
	if cr.Event.RecurrencePattern == nil || *cr.Event.RecurrencePattern != "weekly" {
		t.Fatalf("pattern lost: %+v", cr.Event)
	}

	br, err := cl.CreateEventsBatch(actx, &api.CreateEventsBatchRequest{Events: []api.EventFields{{Title: "a"}, {Title: "b"}}})
	if err != nil || len(br.Events) != 2 || br.Events[1].Title != "b" {
		t.Fatalf("batch: %v, resp=%+v", err, br)
	}

	gr, err := cl.GetEvent(actx, &api.GetEventRequest{EventID: 5})
	if err != nil || gr.Event.ID != 5 {
		t.Fatalf("get: %v, resp=%+v", err, gr)
	}

	dr, err := cl.DeleteEvent(actx, &api.DeleteEventRequest{EventID: 5})
	if err != nil || dr.Event.Title != "gone" {
		t.Fatalf("delete: %v, resp=%+v", err, dr)
	}

	if err := cl.Logout(actx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if a.loggedOut != goodToken {
		t.Fatalf("logout token not forwarded: %q", a.loggedOut)
	}
}

func TestServer_E2E_SharingAndHistory(t *testing.T) {
	t.Parallel()

	cl, _, _ := newTestServer(t)
	actx := authed(goodToken)

	sr, err := cl.ShareEvent(actx, &api.ShareEventRequest{EventID: 1, Grants: []api.Grant{{UserID: 2, Role: "editor"}}})
	if err != nil || len(sr.Grants) != 1 || sr.Grants[0].Role != "editor" {
		t.Fatalf("share: %v, resp=%+v", err, sr)
	}
	_, err = cl.ShareEvent(actx, &api.ShareEventRequest{EventID: 1, Grants: []api.Grant{{UserID: 2, Role: "admin"}}})
	wantCode(t, err, codes.InvalidArgument)

	lp, err := cl.ListPermissions(actx, &api.ListPermissionsRequest{EventID: 1})
	if err != nil || len(lp.Grants) != 1 || lp.Grants[0].UserID != 2 {
		t.Fatalf("list permissions: %v, resp=%+v", err, lp)
	}

	up, err := cl.UpdatePermission(actx, &api.UpdatePermissionRequest{EventID: 1, UserID: 2, Role: "viewer"})
	if err != nil || up.Grant.Role != "viewer" {
		t.Fatalf("update permission: %v, resp=%+v", err, up)
	}

	dp, err := cl.DeletePermission(actx, &api.DeletePermissionRequest{EventID: 1, UserID: 2})
	if err != nil || dp.Grant.UserID != 2 {
		t.Fatalf("delete permission: %v, resp=%+v", err, dp)
	}

	cr, err := cl.GetChangelog(actx, &api.GetChangelogRequest{EventID: 1})
	if err != nil || len(cr.Versions) != 1 {
		t.Fatalf("changelog: %v, resp=%+v", err, cr)
	}
	vid := cr.Versions[0].VersionID

	vr, err := cl.GetVersion(actx, &api.GetVersionRequest{EventID: 1, VersionID: vid})
	if err != nil || vr.Version.VersionID != vid {
		t.Fatalf("get version: %v, resp=%+v", err, vr)
	}

	diff, err := cl.DiffVersions(actx, &api.DiffVersionsRequest{EventID: 1, VersionID1: vid, VersionID2: vid})
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if ch := diff.Changes["title"]; ch.Old != "a" || ch.New != "b" {
		t.Fatalf("diff resp: %+v", diff.Changes)
	}

	dc, err := cl.DiffCurrent(actx, &api.DiffCurrentRequest{EventID: 1, VersionID: vid})
	if err != nil || len(dc.Changes) != 0 {
		t.Fatalf("diff current: %v, resp=%+v", err, dc)
	}

	rb, err := cl.Rollback(actx, &api.RollbackRequest{EventID: 1, VersionID: vid})
	if err != nil || rb.Message != "event rolled back to version "+vid {
		t.Fatalf("rollback: %v, resp=%+v", err, rb)
	}

	_, err = cl.GetVersion(actx, &api.GetVersionRequest{EventID: 1, VersionID: "nope"})
	wantCode(t, err, codes.InvalidArgument)
}

func TestServer_E2E_ListExportOccurrences(t *testing.T) {
	t.Parallel()

	cl, _, ev := newTestServer(t)
	actx := authed(goodToken)

	if _, err := cl.ListEvents(actx, &api.ListEventsRequest{Limit: 3, Offset: 6, Search: "stand"}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if ev.lastFilter != (model.ListFilter{Limit: 3, Offset: 6, Search: "stand"}) {
		t.Fatalf("filter not forwarded: %+v", ev.lastFilter)
	}

	er, err := cl.ExportEvent(actx, &api.ExportEventRequest{EventID: 1})
	if err != nil || er.ICS == "" {
		t.Fatalf("export: %v, resp=%+v", err, er)
	}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	or, err := cl.Occurrences(actx, &api.OccurrencesRequest{EventID: 1, From: from, To: from.Add(time.Hour)})
	if err != nil || len(or.Occurrences) != 1 || !or.Occurrences[0].Start.Equal(from) {
		t.Fatalf("occurrences: %v, resp=%+v", err, or)
	}
}

func TestServer_E2E_ErrorCodes(t *testing.T) {
	t.Parallel()

	cl, _, _ := newTestServer(t)

	_, err := cl.GetEvent(context.Background(), &api.GetEventRequest{EventID: 1})
	wantCode(t, err, codes.Unauthenticated)

	_, err = cl.GetEvent(authed("forged"), &api.GetEventRequest{EventID: 1})
	wantCode(t, err, codes.Unauthenticated)

	_, err = cl.GetEvent(authed(goodToken), &api.GetEventRequest{EventID: 404})
	wantCode(t, err, codes.NotFound)

	_, err = cl.GetEvent(authed(goodToken), &api.GetEventRequest{EventID: 403})
	wantCode(t, err, codes.PermissionDenied)

	_, err = cl.Login(context.Background(), &api.LoginRequest{Email: "a@x.io", Password: "wrong"})
	wantCode(t, err, codes.Unauthenticated)

	_, err = cl.Register(context.Background(), &api.RegisterRequest{Email: "a@x.io"})
	wantCode(t, err, codes.InvalidArgument)
}

func Test_Handlers_Unauthenticated(t *testing.T) {
	t.Parallel()

	s := New(&fakeAuth{}, &fakeEvents{}, fakeSharing{}, fakeHistory{})
	ctx := context.Background()

	_, err := s.CreateEvent(ctx, &api.CreateEventRequest{})
	wantCode(t, err, codes.Unauthenticated)
	_, err = s.ShareEvent(ctx, &api.ShareEventRequest{})
	wantCode(t, err, codes.Unauthenticated)
	_, err = s.GetChangelog(ctx, &api.GetChangelogRequest{})
	wantCode(t, err, codes.Unauthenticated)
	_, err = s.Logout(ctx, &api.Empty{})
	wantCode(t, err, codes.Unauthenticated)
}

func Test_remoteIP(t *testing.T) {
	t.Parallel()

	if got := remoteIP(context.Background()); got != "" {
		t.Fatalf("want empty, got %q", got)
	}
	pctx := peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})
	if got := remoteIP(pctx); got != "127.0.0.1" {
		t.Fatalf("want host without port, got %q", got)
	}
}
