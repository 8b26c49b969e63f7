package booking

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling/internal/identity"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusRequested, StatusConfirmed, true},
		{StatusRequested, StatusCancelled, true},
		{StatusRequested, StatusCompleted, false},
		{StatusRequested, StatusNoShow, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusNoShow, true},
		{StatusConfirmed, StatusRequested, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusConfirmed, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusRequested, false},
		{StatusNoShow, StatusConfirmed, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestAuthorizeTransition(t *testing.T) {
	providerID := uuid.New()
	patientID := uuid.New()
	appt := &Appointment{
		ID:         uuid.New(),
		ProviderID: providerID,
		PatientID:  patientID,
		Status:     StatusConfirmed,
	}

	ownProvider := identity.Principal{ID: providerID, Role: identity.RoleProvider}
	otherProvider := identity.Principal{ID: uuid.New(), Role: identity.RoleProvider}
	ownPatient := identity.Principal{ID: patientID, Role: identity.RolePatient}
	otherPatient := identity.Principal{ID: uuid.New(), Role: identity.RolePatient}
	admin := identity.Principal{ID: uuid.New(), Role: identity.RoleAdmin}

	tests := []struct {
		name  string
		actor identity.Principal
		to    Status
		want  error
	}{
		{"provider confirms own appointment", ownProvider, StatusConfirmed, nil},
		{"provider completes own appointment", ownProvider, StatusCompleted, nil},
		{"provider marks own no-show", ownProvider, StatusNoShow, nil},
		{"other provider cannot complete", otherProvider, StatusCompleted, ErrNotAuthorized},
		{"patient cannot confirm", ownPatient, StatusConfirmed, ErrNotAuthorized},
		{"patient cannot complete", ownPatient, StatusCompleted, ErrNotAuthorized},
		{"patient cannot mark no-show", ownPatient, StatusNoShow, ErrNotAuthorized},
		{"patient cancels own appointment", ownPatient, StatusCancelled, nil},
		{"other patient cannot cancel", otherPatient, StatusCancelled, ErrNotAuthorized},
		{"provider cancels own appointment", ownProvider, StatusCancelled, nil},
		{"admin confirms", admin, StatusConfirmed, nil},
		{"admin cancels", admin, StatusCancelled, nil},
		{"admin completes", admin, StatusCompleted, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authorizeTransition(tt.actor, appt, tt.to)
			if !errors.Is(err, tt.want) {
				t.Fatalf("authorizeTransition(%s, %s) = %v, want %v", tt.actor.Role, tt.to, err, tt.want)
			}
		})
	}
}

func TestCanRead(t *testing.T) {
	providerID := uuid.New()
	patientID := uuid.New()
	appt := &Appointment{ProviderID: providerID, PatientID: patientID}

	if !canRead(identity.Principal{ID: patientID, Role: identity.RolePatient}, appt) {
		t.Error("patient should read own appointment")
	}
	if canRead(identity.Principal{ID: uuid.New(), Role: identity.RolePatient}, appt) {
		t.Error("other patient should not read appointment")
	}
	if !canRead(identity.Principal{ID: providerID, Role: identity.RoleProvider}, appt) {
		t.Error("provider should read own calendar")
	}
	if canRead(identity.Principal{ID: uuid.New(), Role: identity.RoleProvider}, appt) {
		t.Error("other provider should not read appointment")
	}
	if !canRead(identity.Principal{ID: uuid.New(), Role: identity.RoleAdmin}, appt) {
		t.Error("admin should read everything")
	}
}
