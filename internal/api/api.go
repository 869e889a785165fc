// Package api defines the wire messages and method names of the calendar service.
//
// Messages travel as JSON over gRPC using the codec registered by this package.
package api

import "time"

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "cems.v1.Calendar"

// Method names.
const (
	MethodRegister          = "Register"
	MethodLogin             = "Login"
	MethodLogout            = "Logout"
	MethodCreateEvent       = "CreateEvent"
	MethodCreateEventsBatch = "CreateEventsBatch"
	MethodGetEvent          = "GetEvent"
	MethodListEvents        = "ListEvents"
	MethodUpdateEvent       = "UpdateEvent"
	MethodDeleteEvent       = "DeleteEvent"
	MethodShareEvent        = "ShareEvent"
	MethodListPermissions   = "ListPermissions"
	MethodUpdatePermission  = "UpdatePermission"
	MethodDeletePermission  = "DeletePermission"
	MethodGetChangelog      = "GetChangelog"
	MethodGetVersion        = "GetVersion"
	MethodDiffVersions      = "DiffVersions"
	MethodDiffCurrent       = "DiffCurrent"
	MethodRollback          = "Rollback"
	MethodExportEvent       = "ExportEvent"
	MethodOccurrences       = "Occurrences"
)

// FullMethod returns "/<service>/<method>".
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

// EventFields are the mutable fields of an event.
type EventFields struct {
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	Location          *string   `json:"location,omitempty"`
	IsRecurring       bool      `json:"is_recurring"`
	RecurrencePattern *string   `json:"recurrence_pattern,omitempty"`
}

type Event struct {
	ID      int64 `json:"id"`
	OwnerID int64 `json:"owner_id"`
	EventFields
	CreatedAt time.Time `json:"created_at"`
}

type EventVersion struct {
	VersionID string `json:"version_id"`
	EventID   int64  `json:"event_id"`
	OwnerID   int64  `json:"owner_id"`
	EventFields
	EditedBy int64     `json:"edited_by"`
	EditedAt time.Time `json:"edited_at"`
}

type Grant struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

type Occurrence struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Empty struct{}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	UserID int64 `json:"user_id"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
}

type CreateEventRequest struct {
	Event EventFields `json:"event"`
}

type CreateEventsBatchRequest struct {
	Events []EventFields `json:"events"`
}

type GetEventRequest struct {
	EventID int64 `json:"event_id"`
}

type ListEventsRequest struct {
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Search string `json:"search,omitempty"`
}

type UpdateEventRequest struct {
	EventID int64       `json:"event_id"`
	Event   EventFields `json:"event"`
}

type DeleteEventRequest struct {
	EventID int64 `json:"event_id"`
}

type EventResponse struct {
	Event Event `json:"event"`
}

type EventsResponse struct {
	Events []Event `json:"events"`
}

type ShareEventRequest struct {
	EventID int64   `json:"event_id"`
	Grants  []Grant `json:"grants"`
}

type ListPermissionsRequest struct {
	EventID int64 `json:"event_id"`
}

type UpdatePermissionRequest struct {
	EventID int64  `json:"event_id"`
	UserID  int64  `json:"user_id"`
	Role    string `json:"role"`
}

type DeletePermissionRequest struct {
	EventID int64 `json:"event_id"`
	UserID  int64 `json:"user_id"`
}

type GrantResponse struct {
	Grant Grant `json:"grant"`
}

type GrantsResponse struct {
	Grants []Grant `json:"grants"`
}

type GetChangelogRequest struct {
	EventID int64 `json:"event_id"`
}

type ChangelogResponse struct {
	Versions []EventVersion `json:"versions"`
}

type GetVersionRequest struct {
	EventID   int64  `json:"event_id"`
	VersionID string `json:"version_id"`
}

type VersionResponse struct {
	Version EventVersion `json:"version"`
}

type DiffVersionsRequest struct {
	EventID    int64  `json:"event_id"`
	VersionID1 string `json:"version_id1"`
	VersionID2 string `json:"version_id2"`
}

type DiffCurrentRequest struct {
	EventID   int64  `json:"event_id"`
	VersionID string `json:"version_id"`
}

type DiffResponse struct {
	Changes map[string]FieldChange `json:"changes"`
}

type RollbackRequest struct {
	EventID   int64  `json:"event_id"`
	VersionID string `json:"version_id"`
}

type RollbackResponse struct {
	Message string `json:"message"`
	Event   Event  `json:"event"`
}

type ExportEventRequest struct {
	EventID int64 `json:"event_id"`
}

type ExportEventResponse struct {
	ICS string `json:"ics"`
}

type OccurrencesRequest struct {
	EventID int64     `json:"event_id"`
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Max     int       `json:"max,omitempty"`
}

type OccurrencesResponse struct {
	Occurrences []Occurrence `json:"occurrences"`
}
