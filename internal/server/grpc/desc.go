package grpcserver

import (
	"context"

	"github.com/and161185/cems/internal/api"
	"google.golang.org/grpc"
)

// CalendarServer is the handler set served under api.ServiceName.
type CalendarServer interface {
	Register(context.Context, *api.RegisterRequest) (*api.RegisterResponse, error)
	Login(context.Context, *api.LoginRequest) (*api.LoginResponse, error)
	Logout(context.Context, *api.Empty) (*api.Empty, error)
	CreateEvent(context.Context, *api.CreateEventRequest) (*api.EventResponse, error)
	CreateEventsBatch(context.Context, *api.CreateEventsBatchRequest) (*api.EventsResponse, error)
	GetEvent(context.Context, *api.GetEventRequest) (*api.EventResponse, error)
	ListEvents(context.Context, *api.ListEventsRequest) (*api.EventsResponse, error)
	UpdateEvent(context.Context, *api.UpdateEventRequest) (*api.EventResponse, error)
	DeleteEvent(context.Context, *api.DeleteEventRequest) (*api.EventResponse, error)
	ShareEvent(context.Context, *api.ShareEventRequest) (*api.GrantsResponse, error)
	ListPermissions(context.Context, *api.ListPermissionsRequest) (*api.GrantsResponse, error)
	UpdatePermission(context.Context, *api.UpdatePermissionRequest) (*api.GrantResponse, error)
	DeletePermission(context.Context, *api.DeletePermissionRequest) (*api.GrantResponse, error)
	GetChangelog(context.Context, *api.GetChangelogRequest) (*api.ChangelogResponse, error)
	GetVersion(context.Context, *api.GetVersionRequest) (*api.VersionResponse, error)
	DiffVersions(context.Context, *api.DiffVersionsRequest) (*api.DiffResponse, error)
	DiffCurrent(context.Context, *api.DiffCurrentRequest) (*api.DiffResponse, error)
	Rollback(context.Context, *api.RollbackRequest) (*api.RollbackResponse, error)
	ExportEvent(context.Context, *api.ExportEventRequest) (*api.ExportEventResponse, error)
	Occurrences(context.Context, *api.OccurrencesRequest) (*api.OccurrencesResponse, error)
}

var _ CalendarServer = (*Server)(nil)

// ServiceDesc describes the calendar service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: api.ServiceName,
	HandlerType: (*CalendarServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(api.MethodRegister, CalendarServer.Register),
		unary(api.MethodLogin, CalendarServer.Login),
		unary(api.MethodLogout, CalendarServer.Logout),
		unary(api.MethodCreateEvent, CalendarServer.CreateEvent),
		unary(api.MethodCreateEventsBatch, CalendarServer.CreateEventsBatch),
		unary(api.MethodGetEvent, CalendarServer.GetEvent),
		unary(api.MethodListEvents, CalendarServer.ListEvents),
		unary(api.MethodUpdateEvent, CalendarServer.UpdateEvent),
		unary(api.MethodDeleteEvent, CalendarServer.DeleteEvent),
		unary(api.MethodShareEvent, CalendarServer.ShareEvent),
		unary(api.MethodListPermissions, CalendarServer.ListPermissions),
		unary(api.MethodUpdatePermission, CalendarServer.UpdatePermission),
		unary(api.MethodDeletePermission, CalendarServer.DeletePermission),
		unary(api.MethodGetChangelog, CalendarServer.GetChangelog),
		unary(api.MethodGetVersion, CalendarServer.GetVersion),
		unary(api.MethodDiffVersions, CalendarServer.DiffVersions),
		unary(api.MethodDiffCurrent, CalendarServer.DiffCurrent),
		unary(api.MethodRollback, CalendarServer.Rollback),
		unary(api.MethodExportEvent, CalendarServer.ExportEvent),
		unary(api.MethodOccurrences, CalendarServer.Occurrences),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cems",
}

// RegisterCalendarServer registers srv on s.
func RegisterCalendarServer(s grpc.ServiceRegistrar, srv CalendarServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req, Resp any](name string, fn func(CalendarServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := api.FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(CalendarServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			h := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(CalendarServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, h)
		},
	}
}
