package api

import (
	"context"

	"google.golang.org/grpc"
)

// Client is a typed wrapper around a connection to the calendar service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func call[Resp any](ctx context.Context, c *Client, method string, req any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{CallJSON()}, opts...)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return call[RegisterResponse](ctx, c, MethodRegister, in, opts...)
}

func (c *Client) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return call[LoginResponse](ctx, c, MethodLogin, in, opts...)
}

func (c *Client) Logout(ctx context.Context, opts ...grpc.CallOption) error {
	_, err := call[Empty](ctx, c, MethodLogout, &Empty{}, opts...)
	return err
}

func (c *Client) CreateEvent(ctx context.Context, in *CreateEventRequest, opts ...grpc.CallOption) (*EventResponse, error) {
	return call[EventResponse](ctx, c, MethodCreateEvent, in, opts...)
}

func (c *Client) CreateEventsBatch(ctx context.Context, in *CreateEventsBatchRequest, opts ...grpc.CallOption) (*EventsResponse, error) {
	return call[EventsResponse](ctx, c, MethodCreateEventsBatch, in, opts...)
}

func (c *Client) GetEvent(ctx context.Context, in *GetEventRequest, opts ...grpc.CallOption) (*EventResponse, error) {
	return call[EventResponse](ctx, c, MethodGetEvent, in, opts...)
}

func (c *Client) ListEvents(ctx context.Context, in *ListEventsRequest, opts ...grpc.CallOption) (*EventsResponse, error) {
	return call[EventsResponse](ctx, c, MethodListEvents, in, opts...)
}

func (c *Client) UpdateEvent(ctx context.Context, in *UpdateEventRequest, opts ...grpc.CallOption) (*EventResponse, error) {
	return call[EventResponse](ctx, c, MethodUpdateEvent, in, opts...)
}

func (c *Client) DeleteEvent(ctx context.Context, in *DeleteEventRequest, opts ...grpc.CallOption) (*EventResponse, error) {
	return call[EventResponse](ctx, c, MethodDeleteEvent, in, opts...)
}

func (c *Client) ShareEvent(ctx context.Context, in *ShareEventRequest, opts ...grpc.CallOption) (*GrantsResponse, error) {
	return call[GrantsResponse](ctx, c, MethodShareEvent, in, opts...)
}

func (c *Client) ListPermissions(ctx context.Context, in *ListPermissionsRequest, opts ...grpc.CallOption) (*GrantsResponse, error) {
	return call[GrantsResponse](ctx, c, MethodListPermissions, in, opts...)
}

func (c *Client) UpdatePermission(ctx context.Context, in *UpdatePermissionRequest, opts ...grpc.CallOption) (*GrantResponse, error) {
	return call[GrantResponse](ctx, c, MethodUpdatePermission, in, opts...)
}

func (c *Client) DeletePermission(ctx context.Context, in *DeletePermissionRequest, opts ...grpc.CallOption) (*GrantResponse, error) {
	return call[GrantResponse](ctx, c, MethodDeletePermission, in, opts...)
}

func (c *Client) GetChangelog(ctx context.Context, in *GetChangelogRequest, opts ...grpc.CallOption) (*ChangelogResponse, error) {
	return call[ChangelogResponse](ctx, c, MethodGetChangelog, in, opts...)
}

func (c *Client) GetVersion(ctx context.Context, in *GetVersionRequest, opts ...grpc.CallOption) (*VersionResponse, error) {
	return call[VersionResponse](ctx, c, MethodGetVersion, in, opts...)
}

func (c *Client) DiffVersions(ctx context.Context, in *DiffVersionsRequest, opts ...grpc.CallOption) (*DiffResponse, error) {
	return call[DiffResponse](ctx, c, MethodDiffVersions, in, opts...)
}

func (c *Client) DiffCurrent(ctx context.Context, in *DiffCurrentRequest, opts ...grpc.CallOption) (*DiffResponse, error) {
	return call[DiffResponse](ctx, c, MethodDiffCurrent, in, opts...)
}

func (c *Client) Rollback(ctx context.Context, in *RollbackRequest, opts ...grpc.CallOption) (*RollbackResponse, error) {
	return call[RollbackResponse](ctx, c, MethodRollback, in, opts...)
}

func (c *Client) ExportEvent(ctx context.Context, in *ExportEventRequest, opts ...grpc.CallOption) (*ExportEventResponse, error) {
	return call[ExportEventResponse](ctx, c, MethodExportEvent, in, opts...)
}

func (c *Client) Occurrences(ctx context.Context, in *OccurrencesRequest, opts ...grpc.CallOption) (*OccurrencesResponse, error) {
	return call[OccurrencesResponse](ctx, c, MethodOccurrences, in, opts...)
}
