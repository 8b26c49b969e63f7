package booking

import (
	"errors"

	"github.com/clinicore/scheduling/internal/identity"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotAuthorized only surfaces for actors who can already see the
	// appointment; callers without read access get ErrAppointmentNotFound
	// instead, so a denial never reveals that the appointment exists.
	ErrNotAuthorized = errors.New("not permitted")
)

// transitions is the appointment state machine:
// requested -> confirmed -> completed
// requested|confirmed -> cancelled
// confirmed -> no_show
var transitions = map[Status]map[Status]bool{
	StatusRequested: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusCompleted: true,
		StatusCancelled: true,
		StatusNoShow:    true,
	},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// authorizeTransition enforces the actor guards: confirm/complete/no-show
// require the appointment's provider or an admin; cancel additionally allows
// the appointment's patient.
func authorizeTransition(actor identity.Principal, appt *Appointment, to Status) error {
	switch to {
	case StatusConfirmed, StatusCompleted, StatusNoShow:
		if actor.Admin() {
			return nil
		}
		if actor.Role == identity.RoleProvider && actor.ID == appt.ProviderID {
			return nil
		}
		return ErrNotAuthorized
	case StatusCancelled:
		if actor.Admin() {
			return nil
		}
		if actor.Role == identity.RoleProvider && actor.ID == appt.ProviderID {
			return nil
		}
		if actor.Role == identity.RolePatient && actor.ID == appt.PatientID {
			return nil
		}
		return ErrNotAuthorized
	default:
		return ErrInvalidTransition
	}
}

// canRead mirrors the guard for read access: patients see their own
// appointments, providers their own calendar, admins everything.
func canRead(actor identity.Principal, appt *Appointment) bool {
	if actor.Admin() {
		return true
	}
	switch actor.Role {
	case identity.RoleProvider:
		return actor.ID == appt.ProviderID
	case identity.RolePatient:
		return actor.ID == appt.PatientID
	}
	return false
}
