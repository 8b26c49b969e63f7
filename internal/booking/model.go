package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling/internal/availability"
	"github.com/clinicore/scheduling/internal/identity"
	"github.com/clinicore/scheduling/internal/timeslot"
)

type Status string

const (
	StatusRequested Status = "requested"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Active reports whether the appointment still occupies its slot.
func (s Status) Active() bool {
	return s == StatusRequested || s == StatusConfirmed
}

type Provider struct {
	ID          uuid.UUID
	Name        string
	Specialty   *string
	Granularity time.Duration
	Windows     []availability.WorkingWindow
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p *Provider) Schedule() availability.Schedule {
	return availability.Schedule{
		Granularity: p.Granularity,
		Windows:     p.Windows,
	}
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	PatientID  uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
	Status     Status
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (a *Appointment) Interval() timeslot.Interval {
	return timeslot.Interval{Start: a.StartTime, End: a.EndTime}
}

// Blackout is an explicit closed period for a provider (leave, meetings).
type Blackout struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
	Reason     string
}

func (b *Blackout) Interval() timeslot.Interval {
	return timeslot.Interval{Start: b.StartTime, End: b.EndTime}
}

// AuditRecord is one row of the append-only transition trail. FromStatus is
// empty for the creation record.
type AuditRecord struct {
	ID            int64
	AppointmentID uuid.UUID
	ActorID       uuid.UUID
	ActorRole     identity.Role
	FromStatus    Status
	ToStatus      Status
	Late          bool
	CreatedAt     time.Time
}
