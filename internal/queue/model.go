// Package queue manages same-day walk-in visits per provider: a
// priority-then-arrival ordered line with a single-serving guarantee.
package queue

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusServing   Status = "serving"
	StatusCompleted Status = "completed"
)

// Entry is one walk-in patient waiting for a provider. Walk-ins may be
// unregistered, so the patient name is captured inline and PatientID is
// optional.
type Entry struct {
	ID          uuid.UUID  `json:"id"`
	ProviderID  uuid.UUID  `json:"provider_id"`
	PatientID   *uuid.UUID `json:"patient_id,omitempty"`
	PatientName string     `json:"patient_name"`
	Priority    bool       `json:"priority"`
	Status      Status     `json:"status"`
	ArrivedAt   time.Time  `json:"arrived_at"`
	CalledAt    *time.Time `json:"called_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
