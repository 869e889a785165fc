package service

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/and161185/cems/internal/errs"
	"github.com/and161185/cems/internal/model"
)

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// checkFields validates the mutable event fields before any write.
func checkFields(v *validator.Validate, f model.EventFields) error {
	if err := v.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, strings.ToLower(fe.Field())+" failed "+fe.Tag())
			}
			return errs.Invalid("%s", strings.Join(msgs, "; "))
		}
		return errs.Invalid("%v", err)
	}
	switch {
	case f.IsRecurring && f.RecurrencePattern == nil:
		return errs.Invalid("recurring event needs a recurrence pattern")
	case !f.IsRecurring && f.RecurrencePattern != nil:
		return errs.Invalid("recurrence pattern set on a non-recurring event")
	case f.RecurrencePattern != nil && !f.RecurrencePattern.Valid():
		return errs.Invalid("unknown recurrence pattern %q", *f.RecurrencePattern)
	}
	return nil
}

// checkCollaboratorRole rejects roles that cannot be granted through sharing.
func checkCollaboratorRole(r model.Role) error {
	if r == model.RoleEditor || r == model.RoleViewer {
		return nil
	}
	return errs.Invalid("role %q cannot be granted", r)
}
