package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the booking engine.
type Repository interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListActiveAppointments returns requested/confirmed appointments whose
	// interval intersects [from, to), ordered by start time.
	ListActiveAppointments(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListBlackouts(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Blackout, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	// UpdateAppointmentStatus is a compare-and-set: it only moves the row when
	// its current status equals from, otherwise ErrAppointmentNotFound.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// No-show worker
	FindNoShowCandidates(ctx context.Context, startedBefore time.Time) ([]Appointment, error)

	// Audit trail
	InsertAudit(ctx context.Context, rec AuditRecord) error

	// WithProviderTx runs fn in a single transaction that holds a row lock on
	// the provider, so the availability re-check and the write commit as one
	// atomic unit.
	WithProviderTx(ctx context.Context, providerID uuid.UUID, fn func(Repository) error) error
}
