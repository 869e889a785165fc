// Package model defines domain entities used by services and repositories.
package model

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects issued access tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// User represents an account stored on the server. Passwords are never stored in plaintext.
type User struct {
	ID        int64  // PK
	Username  string // display name
	Email     string // unique
	PwdHash   string // PHC-encoded Argon2id, carries its own salt and costs
	CreatedAt time.Time
}

// Recurrence is the repeat cadence of a recurring event.
type Recurrence string

const (
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
)

// EventFields is the mutable part of an event; it is what a version snapshots.
type EventFields struct {
	Title             string    `validate:"required,max=255"`
	Description       string    `validate:"max=10000"`
	StartTime         time.Time `validate:"required"`
	EndTime           time.Time `validate:"required,gtefield=StartTime"`
	Location          *string   `validate:"omitempty,max=255"`
	IsRecurring       bool
	RecurrencePattern *Recurrence
}

// Event is a calendar entry owned by exactly one user.
type Event struct {
	ID      int64 // assigned by the store, immutable
	OwnerID int64 // immutable
	EventFields
	CreatedAt time.Time
}

// EventVersion is an immutable snapshot of an event taken right before a mutation.
type EventVersion struct {
	VersionID uuid.UUID
	EventID   int64
	OwnerID   int64
	EventFields
	EditedBy int64
	EditedAt time.Time
}

// Valid reports whether r is a supported cadence.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return true
	}
	return false
}

// Fields returns the snapshotted mutable fields.
func (v EventVersion) Fields() EventFields { return v.EventFields }

// Role is a permission level on an event.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Grant is a single (event, user, role) authorization record.
type Grant struct {
	EventID int64
	UserID  int64
	Role    Role
}

// GrantRequest asks for a user to hold a role on an event.
type GrantRequest struct {
	UserID int64
	Role   Role
}

// FieldChange holds the two sides of a differing field.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// UnmarshalJSON decodes integral numbers as int64 rather than float64.
func (c *FieldChange) UnmarshalJSON(b []byte) error {
	var raw struct {
		Old json.RawMessage `json:"old"`
		New json.RawMessage `json:"new"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var err error
	if c.Old, err = scalar(raw.Old); err != nil {
		return err
	}
	c.New, err = scalar(raw.New)
	return err
}

func scalar(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	n, ok := v.(json.Number)
	if !ok {
		return v, nil
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	return n.Float64()
}

// Changes maps a field name to its old/new values; only differing fields are present.
type Changes map[string]FieldChange

// ListFilter narrows and pages listEvents results.
type ListFilter struct {
	Limit  int
	Offset int
	Search string
}

// Occurrence is a single concrete instance of a (possibly recurring) event.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// RollbackResult reports a successful rollback.
type RollbackResult struct {
	Message string
	Event   Event
}
