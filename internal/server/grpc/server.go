// Package grpcserver exposes the calendar gRPC API handlers.
package grpcserver

import (
	"context"
	"net"

	"github.com/and161185/cems/internal/api"
	"github.com/and161185/cems/internal/convert"
	"github.com/and161185/cems/internal/model"
	"github.com/and161185/cems/internal/service"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// Server wires services into gRPC handlers.
type Server struct {
	auth    service.AuthService
	events  service.EventService
	sharing service.SharingService
	history service.HistoryService
}

// New constructs a gRPC server with injected services.
func New(auth service.AuthService, events service.EventService, sharing service.SharingService, history service.HistoryService) *Server {
	return &Server{auth: auth, events: events, sharing: sharing, history: history}
}

func remoteIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}

func caller(ctx context.Context) (int64, error) {
	id, ok := UserIDFromCtx(ctx)
	if !ok {
		return 0, status.Error(codes.Unauthenticated, "no auth")
	}
	return id, nil
}

// --- Auth ---

// Register creates a new user account.
func (s *Server) Register(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error) {
	id, err := s.auth.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.RegisterResponse{UserID: id}, nil
}

// Login authenticates a user and issues an access token.
func (s *Server) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error) {
	tok, u, err := s.auth.LoginWithIP(ctx, req.Email, req.Password, remoteIP(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.LoginResponse{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.ExpiresAt,
		UserID:      u.ID,
		Username:    u.Username,
	}, nil
}

// Logout revokes the bearer token of the call.
func (s *Server) Logout(ctx context.Context, _ *api.Empty) (*api.Empty, error) {
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	if err := s.auth.Logout(ctx, tok); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

// --- Events ---

func (s *Server) CreateEvent(ctx context.Context, req *api.CreateEventRequest) (*api.EventResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ev, err := s.events.Create(ctx, uid, convert.FromAPIFields(req.Event))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.EventResponse{Event: convert.ToAPIEvent(*ev)}, nil
}

// CreateEventsBatch creates all events or none.
func (s *Server) CreateEventsBatch(ctx context.Context, req *api.CreateEventsBatchRequest) (*api.EventsResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	evs, err := s.events.CreateBatch(ctx, uid, convert.FromAPIFieldsList(req.Events))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.EventsResponse{Events: convert.ToAPIEvents(evs)}, nil
}

func (s *Server) GetEvent(ctx context.Context, req *api.GetEventRequest) (*api.EventResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ev, err := s.events.Get(ctx, req.EventID, uid)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.EventResponse{Event: convert.ToAPIEvent(*ev)}, nil
}

func (s *Server) ListEvents(ctx context.Context, req *api.ListEventsRequest) (*api.EventsResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	evs, err := s.events.List(ctx, uid, model.ListFilter{Limit: req.Limit, Offset: req.Offset, Search: req.Search})
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.EventsResponse{Events: convert.ToAPIEvents(evs)}, nil
}

func (s *Server) UpdateEvent(ctx context.Context, req *api.UpdateEventRequest) (*api.EventResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ev, err := s.events.Update(ctx, req.EventID, convert.FromAPIFields(req.Event), uid)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.EventResponse{Event: convert.ToAPIEvent(*ev)}, nil
}

// DeleteEvent returns the event as it was before deletion.
func (s *Server) DeleteEvent(ctx context.Context, req *api.DeleteEventRequest) (*api.EventResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ev, err := s.events.Delete(ctx, req.EventID, uid)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.EventResponse{Event: convert.ToAPIEvent(*ev)}, nil
}

func (s *Server) ExportEvent(ctx context.Context, req *api.ExportEventRequest) (*api.ExportEventResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ics, err := s.events.Export(ctx, req.EventID, uid)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.ExportEventResponse{ICS: ics}, nil
}

func (s *Server) Occurrences(ctx context.Context, req *api.OccurrencesRequest) (*api.OccurrencesResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	occ, err := s.events.Occurrences(ctx, req.EventID, uid, req.From, req.To, req.Max)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.OccurrencesResponse{Occurrences: convert.ToAPIOccurrences(occ)}, nil
}

// --- Sharing ---

// ShareEvent returns only the grants that were inserted or changed.
func (s *Server) ShareEvent(ctx context.Context, req *api.ShareEventRequest) (*api.GrantsResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	gs, err := s.sharing.Share(ctx, req.EventID, convert.FromAPIGrants(req.Grants), uid)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.GrantsResponse{Grants: convert.ToAPIGrants(gs)}, nil
}

func (s *Server) ListPermissions(ctx context.Context, req *api.ListPermissionsRequest) (*api.GrantsResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	gs, err := s.sharing.ListPermissions(ctx, req.EventID, uid)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.GrantsResponse{Grants: convert.ToAPIGrants(gs)}, nil
}

func (s *Server) UpdatePermission(ctx context.Context, req *api.UpdatePermissionRequest) (*api.GrantResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.sharing.UpdatePermission(ctx, req.EventID, req.UserID, model.Role(req.Role), uid)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.GrantResponse{Grant: convert.ToAPIGrant(g)}, nil
}

func (s *Server) DeletePermission(ctx context.Context, req *api.DeletePermissionRequest) (*api.GrantResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.sharing.DeletePermission(ctx, req.EventID, req.UserID, uid)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.GrantResponse{Grant: convert.ToAPIGrant(g)}, nil
}

// --- History ---

func (s *Server) GetChangelog(ctx context.Context, req *api.GetChangelogRequest) (*api.ChangelogResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	vs, err := s.history.Changelog(ctx, req.EventID, uid)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.ChangelogResponse{Versions: convert.ToAPIVersions(vs)}, nil
}

func (s *Server) GetVersion(ctx context.Context, req *api.GetVersionRequest) (*api.VersionResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	vid, err := convert.ParseVersionID(req.VersionID)
	if err != nil {
		return nil, toStatus(err)
	}
	v, err := s.history.GetVersion(ctx, req.EventID, vid, uid)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.VersionResponse{Version: convert.ToAPIVersion(*v)}, nil
}

func (s *Server) DiffVersions(ctx context.Context, req *api.DiffVersionsRequest) (*api.DiffResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	v1, err := convert.ParseVersionID(req.VersionID1)
	if err != nil {
		return nil, toStatus(err)
	}
	v2, err := convert.ParseVersionID(req.VersionID2)
	if err != nil {
		return nil, toStatus(err)
	}
	c, err := s.history.Diff(ctx, req.EventID, v1, v2, uid)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.DiffResponse{Changes: convert.ToAPIChanges(c)}, nil
}

func (s *Server) DiffCurrent(ctx context.Context, req *api.DiffCurrentRequest) (*api.DiffResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	vid, err := convert.ParseVersionID(req.VersionID)
	if err != nil {
		return nil, toStatus(err)
	}
	c, err := s.history.DiffCurrent(ctx, req.EventID, vid, uid)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.DiffResponse{Changes: convert.ToAPIChanges(c)}, nil
}

// Rollback restores the event to a historical version.
func (s *Server) Rollback(ctx context.Context, req *api.RollbackRequest) (*api.RollbackResponse, error) {
	uid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	vid, err := convert.ParseVersionID(req.VersionID)
	if err != nil {
		return nil, toStatus(err)
	}
	res, err := s.events.Rollback(ctx, req.EventID, vid, uid)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.RollbackResponse{Message: res.Message, Event: convert.ToAPIEvent(res.Event)}, nil
}
