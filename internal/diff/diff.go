// Package diff computes field-level differences between event snapshots.
//
// Identity and bookkeeping fields (id, version_id, edited_at) are never compared.
// Timestamps are compared at microsecond precision, which is what the store keeps.
// Reported values are JSON scalars: strings, bools, int64 ids and nil. Times are
// RFC 3339 strings in UTC, so a diff decoded from JSON equals the computed one.
package diff

import (
	"time"

	"github.com/and161185/cems/internal/model"
)

// Field names as reported in a diff.
const (
	FieldEventID           = "event_id"
	FieldOwnerID           = "owner_id"
	FieldEditedBy          = "edited_by"
	FieldTitle             = "title"
	FieldDescription       = "description"
	FieldStartTime         = "start_time"
	FieldEndTime           = "end_time"
	FieldLocation          = "location"
	FieldIsRecurring       = "is_recurring"
	FieldRecurrencePattern = "recurrence_pattern"
)

// Precision is the timestamp resolution used for equality.
const Precision = time.Microsecond

// Versions reports every differing field between two versions, old taken from a and new from b.
func Versions(a, b model.EventVersion) model.Changes {
	out := Fields(a.EventFields, b.EventFields)
	put(out, FieldEventID, a.EventID, b.EventID, a.EventID == b.EventID)
	put(out, FieldOwnerID, a.OwnerID, b.OwnerID, a.OwnerID == b.OwnerID)
	put(out, FieldEditedBy, a.EditedBy, b.EditedBy, a.EditedBy == b.EditedBy)
	return out
}

// Fields diffs the mutable part of two snapshots.
func Fields(a, b model.EventFields) model.Changes {
	out := model.Changes{}
	put(out, FieldTitle, a.Title, b.Title, a.Title == b.Title)
	put(out, FieldDescription, a.Description, b.Description, a.Description == b.Description)
	put(out, FieldStartTime, wireTime(a.StartTime), wireTime(b.StartTime), sameTime(a.StartTime, b.StartTime))
	put(out, FieldEndTime, wireTime(a.EndTime), wireTime(b.EndTime), sameTime(a.EndTime, b.EndTime))
	put(out, FieldLocation, deref(a.Location), deref(b.Location), sameString(a.Location, b.Location))
	put(out, FieldIsRecurring, a.IsRecurring, b.IsRecurring, a.IsRecurring == b.IsRecurring)
	put(out, FieldRecurrencePattern, derefRecurrence(a.RecurrencePattern), derefRecurrence(b.RecurrencePattern),
		sameRecurrence(a.RecurrencePattern, b.RecurrencePattern))
	return out
}

// Swap returns c viewed from the other side: diff(b, a) == Swap(diff(a, b)).
func Swap(c model.Changes) model.Changes {
	out := make(model.Changes, len(c))
	for k, v := range c {
		out[k] = model.FieldChange{Old: v.New, New: v.Old}
	}
	return out
}

func put(out model.Changes, name string, oldV, newV any, equal bool) {
	if equal {
		return
	}
	out[name] = model.FieldChange{Old: oldV, New: newV}
}

func sameTime(a, b time.Time) bool {
	return a.Truncate(Precision).Equal(b.Truncate(Precision))
}

func wireTime(t time.Time) string {
	return t.UTC().Truncate(Precision).Format(time.RFC3339Nano)
}

// absent == absent; absent != present("").
func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameRecurrence(a, b *model.Recurrence) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func derefRecurrence(r *model.Recurrence) any {
	if r == nil {
		return nil
	}
	return string(*r)
}
