package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling/internal/booking"
	"github.com/clinicore/scheduling/internal/timeslot"
)

type BookAppointmentRequest struct {
	ProviderID      string `json:"provider_id"`
	PatientID       string `json:"patient_id"`
	Start           string `json:"start"` // RFC3339, UTC
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes,omitempty"`
}

type RescheduleRequest struct {
	Start string `json:"start"` // RFC3339, UTC
}

type AppointmentResponse struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:         a.ID,
		ProviderID: a.ProviderID,
		PatientID:  a.PatientID,
		Start:      a.StartTime,
		End:        a.EndTime,
		Status:     string(a.Status),
		Notes:      a.Notes,
		CreatedAt:  a.CreatedAt,
	}
}

type AvailabilityResponse struct {
	ProviderID uuid.UUID           `json:"provider_id"`
	From       time.Time           `json:"from"`
	To         time.Time           `json:"to"`
	Open       []timeslot.Interval `json:"open"`
}

type CheckInRequest struct {
	PatientName string  `json:"patient_name"`
	PatientID   *string `json:"patient_id,omitempty"`
	Priority    bool    `json:"priority"`
}

type ErrorResponse struct {
	Error        string              `json:"error"`
	Details      string              `json:"details,omitempty"`
	Conflict     *timeslot.Interval  `json:"conflict,omitempty"`
	Alternatives []timeslot.Interval `json:"alternatives,omitempty"`
	Suggested    *timeslot.Interval  `json:"suggested,omitempty"`
}
