// Package convert maps domain entities to api wire messages and back.
package convert

import (
	"fmt"

	"github.com/and161185/cems/internal/api"
	"github.com/and161185/cems/internal/errs"
	"github.com/and161185/cems/internal/model"
	u "github.com/gofrs/uuid/v5"
)

// --- fields (client -> server) ---

// FromAPIFields converts wire event fields to the domain struct.
func FromAPIFields(in api.EventFields) model.EventFields {
	out := model.EventFields{
		Title:       in.Title,
		Description: in.Description,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Location:    in.Location,
		IsRecurring: in.IsRecurring,
	}
	if in.RecurrencePattern != nil {
		r := model.Recurrence(*in.RecurrencePattern)
		out.RecurrencePattern = &r
	}
	return out
}

// FromAPIFieldsList converts a batch of wire fields.
func FromAPIFieldsList(in []api.EventFields) []model.EventFields {
	out := make([]model.EventFields, 0, len(in))
	for _, f := range in {
		out = append(out, FromAPIFields(f))
	}
	return out
}

// ToAPIFields converts domain fields to the wire struct.
func ToAPIFields(f model.EventFields) api.EventFields {
	out := api.EventFields{
		Title:       f.Title,
		Description: f.Description,
		StartTime:   f.StartTime,
		EndTime:     f.EndTime,
		Location:    f.Location,
		IsRecurring: f.IsRecurring,
	}
	if f.RecurrencePattern != nil {
		s := string(*f.RecurrencePattern)
		out.RecurrencePattern = &s
	}
	return out
}

// --- events / versions (server -> client) ---

func ToAPIEvent(e model.Event) api.Event {
	return api.Event{
		ID:          e.ID,
		OwnerID:     e.OwnerID,
		EventFields: ToAPIFields(e.EventFields),
		CreatedAt:   e.CreatedAt,
	}
}

func ToAPIEvents(es []model.Event) []api.Event {
	out := make([]api.Event, 0, len(es))
	for _, e := range es {
		out = append(out, ToAPIEvent(e))
	}
	return out
}

func ToAPIVersion(v model.EventVersion) api.EventVersion {
	return api.EventVersion{
		VersionID:   v.VersionID.String(),
		EventID:     v.EventID,
		OwnerID:     v.OwnerID,
		EventFields: ToAPIFields(v.EventFields),
		EditedBy:    v.EditedBy,
		EditedAt:    v.EditedAt,
	}
}

func ToAPIVersions(vs []model.EventVersion) []api.EventVersion {
	out := make([]api.EventVersion, 0, len(vs))
	for _, v := range vs {
		out = append(out, ToAPIVersion(v))
	}
	return out
}

// ToAPIChanges copies a diff; values are already plain JSON-friendly scalars.
func ToAPIChanges(c model.Changes) map[string]api.FieldChange {
	out := make(map[string]api.FieldChange, len(c))
	for k, v := range c {
		out[k] = api.FieldChange{Old: v.Old, New: v.New}
	}
	return out
}

func ToAPIOccurrences(os []model.Occurrence) []api.Occurrence {
	out := make([]api.Occurrence, 0, len(os))
	for _, o := range os {
		out = append(out, api.Occurrence{Start: o.Start, End: o.End})
	}
	return out
}

// --- grants ---

func ToAPIGrant(g model.Grant) api.Grant {
	return api.Grant{UserID: g.UserID, Role: string(g.Role)}
}

func ToAPIGrants(gs []model.Grant) []api.Grant {
	out := make([]api.Grant, 0, len(gs))
	for _, g := range gs {
		out = append(out, ToAPIGrant(g))
	}
	return out
}

// FromAPIGrants converts share requests; role validity is checked by the service.
func FromAPIGrants(in []api.Grant) []model.GrantRequest {
	out := make([]model.GrantRequest, 0, len(in))
	for _, g := range in {
		out = append(out, model.GrantRequest{UserID: g.UserID, Role: model.Role(g.Role)})
	}
	return out
}

// --- ids ---

// ParseVersionID parses a version id; a malformed one is an invalid argument.
func ParseVersionID(s string) (u.UUID, error) {
	var id u.UUID
	if err := id.UnmarshalText([]byte(s)); err != nil {
		return u.Nil, fmt.Errorf("%w: version id %q", errs.ErrInvalidArgument, s)
	}
	return id, nil
}
