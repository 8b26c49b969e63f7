package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/scheduling/internal/availability"
	"github.com/clinicore/scheduling/internal/config"
	"github.com/clinicore/scheduling/internal/identity"
	"github.com/clinicore/scheduling/internal/notify"
	redisclient "github.com/clinicore/scheduling/internal/redis"
	"github.com/clinicore/scheduling/internal/timeslot"
)

var (
	ErrSlotNotAligned = errors.New("start time is not aligned to the provider slot granularity")
	ErrInvalidRange   = errors.New("date range start must precede end")
)

// SlotUnavailableError is returned when a booking collides with existing
// bookings, a blackout, or falls outside working hours. Conflict carries the
// interval the caller collided with so alternatives can be offered.
type SlotUnavailableError struct {
	Conflict timeslot.Interval
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot unavailable, conflicts with %s", e.Conflict)
}

const (
	defaultListLimit = 20
	maxListLimit     = 100

	readRetryBackoff = 200 * time.Millisecond
)

// Service is the single authority for creating and mutating appointments.
// Every write re-validates availability inside the provider lock and a
// provider-row transaction, so a stale "available" read can never commit.
type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier notify.Dispatcher
	cfg      config.Config
	log      zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, notifier notify.Dispatcher, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
	}
}

// GetAvailability returns the open intervals for a provider within [from, to).
// The result is derived at call time: working hours minus active appointments
// minus blackouts, sorted and merged.
func (s *Service) GetAvailability(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]timeslot.Interval, error) {
	if !from.Before(to) {
		return nil, ErrInvalidRange
	}

	var open []timeslot.Interval
	err := s.retryRead(ctx, func() error {
		provider, err := s.repo.GetProviderByID(ctx, providerID)
		if err != nil {
			return err
		}

		appts, err := s.repo.ListActiveAppointments(ctx, providerID, from, to)
		if err != nil {
			return fmt.Errorf("list active appointments: %w", err)
		}
		blackouts, err := s.repo.ListBlackouts(ctx, providerID, from, to)
		if err != nil {
			return fmt.Errorf("list blackouts: %w", err)
		}

		open = availability.Compute(provider.Schedule(), from, to, busyIntervals(appts, blackouts, uuid.Nil))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return open, nil
}

// SuggestAlternatives returns the open intervals remaining on the day of
// start, plus the earliest slot that can still hold duration. Used to enrich
// slot-conflict responses.
func (s *Service) SuggestAlternatives(ctx context.Context, providerID uuid.UUID, start time.Time, duration time.Duration) ([]timeslot.Interval, *timeslot.Interval, error) {
	provider, err := s.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, nil, err
	}

	dayStart := timeslot.Snap(start, 24*time.Hour)
	open, err := s.GetAvailability(ctx, providerID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, nil, err
	}

	if fit, ok := availability.FirstFit(open, duration, provider.Granularity); ok {
		return open, &fit, nil
	}
	return open, nil, nil
}

// Book reserves [start, start+duration) for a patient with the given
// provider. Patients may only book for themselves; staff may book on behalf
// of any patient. The conflict check and the insert commit atomically.
func (s *Service) Book(ctx context.Context, actor identity.Principal, providerID, patientID uuid.UUID, start time.Time, duration time.Duration, notes string) (*Appointment, error) {
	if actor.Role == identity.RolePatient && actor.ID != patientID {
		return nil, ErrNotAuthorized
	}

	provider, err := s.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, err
	}

	iv, err := s.validateSlot(provider, start, duration)
	if err != nil {
		return nil, err
	}

	status := StatusRequested
	if s.cfg.AutoConfirm {
		status = StatusConfirmed
	}

	var created *Appointment
	err = s.locker.WithProviderLock(ctx, providerID, iv.Start, func(lockCtx context.Context) error {
		return s.repo.WithProviderTx(lockCtx, providerID, func(tx Repository) error {
			if err := s.checkSlotFree(lockCtx, tx, provider, iv, uuid.Nil); err != nil {
				return err
			}

			appt := &Appointment{
				ID:         uuid.New(),
				ProviderID: providerID,
				PatientID:  patientID,
				StartTime:  iv.Start,
				EndTime:    iv.End,
				Status:     status,
				Notes:      notes,
			}
			created, err = tx.CreateAppointment(lockCtx, appt)
			if err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}

			return tx.InsertAudit(lockCtx, AuditRecord{
				AppointmentID: created.ID,
				ActorID:       actor.ID,
				ActorRole:     actor.Role,
				ToStatus:      status,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(notify.Event{
		Type:          notify.EventAppointmentBooked,
		ProviderID:    providerID,
		AppointmentID: &created.ID,
		PatientID:     &patientID,
		At:            time.Now().UTC(),
	})

	return created, nil
}

// Reschedule moves an active appointment to a new start, keeping its
// duration. It is an atomic cancel-old + book-new: when the new slot is
// taken nothing changes and the original booking stands.
func (s *Service) Reschedule(ctx context.Context, actor identity.Principal, appointmentID uuid.UUID, newStart time.Time) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !canRead(actor, appt) {
		return nil, ErrAppointmentNotFound
	}
	if !appt.Status.Active() {
		return nil, ErrInvalidTransition
	}
	// Moving a booking requires the same rights as cancelling it.
	if err := authorizeTransition(actor, appt, StatusCancelled); err != nil {
		return nil, err
	}

	provider, err := s.repo.GetProviderByID(ctx, appt.ProviderID)
	if err != nil {
		return nil, err
	}

	iv, err := s.validateSlot(provider, newStart, appt.EndTime.Sub(appt.StartTime))
	if err != nil {
		return nil, err
	}

	var created *Appointment
	err = s.locker.WithProviderLock(ctx, appt.ProviderID, iv.Start, func(lockCtx context.Context) error {
		return s.repo.WithProviderTx(lockCtx, appt.ProviderID, func(tx Repository) error {
			if err := s.checkSlotFree(lockCtx, tx, provider, iv, appt.ID); err != nil {
				return err
			}

			// CAS guards against a concurrent transition on the old booking.
			if _, err := tx.UpdateAppointmentStatus(lockCtx, appt.ID, appt.Status, StatusCancelled); err != nil {
				if errors.Is(err, ErrAppointmentNotFound) {
					return ErrInvalidTransition
				}
				return fmt.Errorf("cancel original appointment: %w", err)
			}
			if err := tx.InsertAudit(lockCtx, AuditRecord{
				AppointmentID: appt.ID,
				ActorID:       actor.ID,
				ActorRole:     actor.Role,
				FromStatus:    appt.Status,
				ToStatus:      StatusCancelled,
			}); err != nil {
				return err
			}

			// The replacement keeps the confirmation state of the original.
			replacement := &Appointment{
				ID:         uuid.New(),
				ProviderID: appt.ProviderID,
				PatientID:  appt.PatientID,
				StartTime:  iv.Start,
				EndTime:    iv.End,
				Status:     appt.Status,
				Notes:      appt.Notes,
			}
			created, err = tx.CreateAppointment(lockCtx, replacement)
			if err != nil {
				return fmt.Errorf("create rescheduled appointment: %w", err)
			}

			return tx.InsertAudit(lockCtx, AuditRecord{
				AppointmentID: created.ID,
				ActorID:       actor.ID,
				ActorRole:     actor.Role,
				ToStatus:      created.Status,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(notify.Event{
		Type:          notify.EventAppointmentBooked,
		ProviderID:    created.ProviderID,
		AppointmentID: &created.ID,
		PatientID:     &created.PatientID,
		At:            time.Now().UTC(),
	})

	return created, nil
}

// Confirm moves a requested appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, actor identity.Principal, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, StatusConfirmed)
}

// Cancel releases the slot. Appointments are never deleted; cancellations
// inside the hospital cutoff are flagged late but still succeed.
func (s *Service) Cancel(ctx context.Context, actor identity.Principal, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, StatusCancelled)
}

// Complete marks a confirmed appointment as done.
func (s *Service) Complete(ctx context.Context, actor identity.Principal, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, StatusCompleted)
}

// MarkNoShow marks a confirmed appointment whose start time has passed.
func (s *Service) MarkNoShow(ctx context.Context, actor identity.Principal, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(actor, appt) {
		return nil, ErrAppointmentNotFound
	}
	if time.Now().Before(appt.StartTime) {
		return nil, ErrInvalidTransition
	}
	return s.transition(ctx, actor, id, StatusNoShow)
}

// GetAppointment returns a single appointment, subject to the read guard.
func (s *Service) GetAppointment(ctx context.Context, actor identity.Principal, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// An appointment the actor may not see is indistinguishable from one
	// that does not exist.
	if !canRead(actor, appt) {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

// ListByPatient returns a patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, actor identity.Principal, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if actor.Role == identity.RolePatient && actor.ID != patientID {
		return nil, ErrNotAuthorized
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var appts []Appointment
	err := s.retryRead(ctx, func() error {
		var err error
		appts, err = s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// SweepNoShows is called periodically by the worker. It marks confirmed
// appointments whose start passed the grace period as no-shows.
func (s *Service) SweepNoShows(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.NoShowGrace)
	candidates, err := s.repo.FindNoShowCandidates(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find no-show candidates: %w", err)
	}

	system := identity.Principal{Role: identity.RoleSystem}
	for _, appt := range candidates {
		updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusConfirmed, StatusNoShow)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				continue // checked in or cancelled since the query
			}
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to mark no-show")
			continue
		}
		s.audit(ctx, AuditRecord{
			AppointmentID: updated.ID,
			ActorID:       system.ID,
			ActorRole:     system.Role,
			FromStatus:    StatusConfirmed,
			ToStatus:      StatusNoShow,
		})
		s.dispatch(notify.Event{
			Type:          notify.EventAppointmentNoShow,
			ProviderID:    updated.ProviderID,
			AppointmentID: &updated.ID,
			PatientID:     &updated.PatientID,
			At:            time.Now().UTC(),
		})
	}

	return nil
}

// validateSlot checks duration and alignment against the provider schedule.
func (s *Service) validateSlot(provider *Provider, start time.Time, duration time.Duration) (timeslot.Interval, error) {
	iv, err := timeslot.NewInterval(start, duration)
	if err != nil {
		return timeslot.Interval{}, err
	}
	if provider.Granularity <= 0 {
		return timeslot.Interval{}, fmt.Errorf("provider %s has no slot granularity", provider.ID)
	}
	if duration%provider.Granularity != 0 {
		return timeslot.Interval{}, timeslot.ErrInvalidDuration
	}
	return iv, nil
}

// checkSlotFree re-reads the provider's day inside the critical section and
// verifies the requested interval lies fully within an open interval.
// excludeID is ignored during the check (used by reschedule).
func (s *Service) checkSlotFree(ctx context.Context, tx Repository, provider *Provider, iv timeslot.Interval, excludeID uuid.UUID) error {
	dayStart := timeslot.Snap(iv.Start, 24*time.Hour)
	dayEnd := dayStart.AddDate(0, 0, 1)

	appts, err := tx.ListActiveAppointments(ctx, provider.ID, dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("list active appointments: %w", err)
	}
	blackouts, err := tx.ListBlackouts(ctx, provider.ID, dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("list blackouts: %w", err)
	}

	open := availability.Compute(provider.Schedule(), dayStart, dayEnd, busyIntervals(appts, blackouts, excludeID))
	for _, o := range open {
		if o.Covers(iv) {
			// Collisions win over alignment: a request overlapping a booking
			// reports the conflict, only an otherwise-free misaligned start
			// is rejected for alignment.
			if !timeslot.Aligned(iv.Start, provider.Granularity) {
				return ErrSlotNotAligned
			}
			return nil
		}
	}

	return &SlotUnavailableError{Conflict: conflictFor(iv, appts, blackouts, excludeID)}
}

// conflictFor picks the interval to report in a SlotUnavailableError: the
// first colliding appointment, else the first colliding blackout, else the
// requested interval itself (outside working hours).
func conflictFor(iv timeslot.Interval, appts []Appointment, blackouts []Blackout, excludeID uuid.UUID) timeslot.Interval {
	for _, a := range appts {
		if a.ID != excludeID && a.Interval().Overlaps(iv) {
			return a.Interval()
		}
	}
	for _, b := range blackouts {
		if b.Interval().Overlaps(iv) {
			return b.Interval()
		}
	}
	return iv
}

func busyIntervals(appts []Appointment, blackouts []Blackout, excludeID uuid.UUID) []timeslot.Interval {
	busy := make([]timeslot.Interval, 0, len(appts)+len(blackouts))
	for _, a := range appts {
		if a.ID == excludeID {
			continue
		}
		busy = append(busy, a.Interval())
	}
	for _, b := range blackouts {
		busy = append(busy, b.Interval())
	}
	return busy
}

// transition applies one guarded state-machine step with a CAS update, so
// two concurrent actors cannot both move the same appointment.
func (s *Service) transition(ctx context.Context, actor identity.Principal, id uuid.UUID, to Status) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(actor, appt) {
		return nil, ErrAppointmentNotFound
	}

	if !CanTransition(appt.Status, to) {
		return nil, ErrInvalidTransition
	}
	if err := authorizeTransition(actor, appt, to); err != nil {
		return nil, err
	}

	late := false
	if to == StatusCancelled && time.Until(appt.StartTime) < s.cfg.CancelCutoff {
		late = true
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race with another transition; state is unchanged by us.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.audit(ctx, AuditRecord{
		AppointmentID: updated.ID,
		ActorID:       actor.ID,
		ActorRole:     actor.Role,
		FromStatus:    appt.Status,
		ToStatus:      to,
		Late:          late,
	})

	s.dispatch(notify.Event{
		Type:          eventForStatus(to),
		ProviderID:    updated.ProviderID,
		AppointmentID: &updated.ID,
		PatientID:     &updated.PatientID,
		At:            time.Now().UTC(),
	})

	return updated, nil
}

func eventForStatus(to Status) string {
	switch to {
	case StatusConfirmed:
		return notify.EventAppointmentConfirmed
	case StatusCancelled:
		return notify.EventAppointmentCancelled
	case StatusCompleted:
		return notify.EventAppointmentCompleted
	case StatusNoShow:
		return notify.EventAppointmentNoShow
	}
	return "appointment." + string(to)
}

func (s *Service) audit(ctx context.Context, rec AuditRecord) {
	if err := s.repo.InsertAudit(ctx, rec); err != nil {
		s.log.Error().Err(err).
			Str("appointment_id", rec.AppointmentID.String()).
			Str("to_status", string(rec.ToStatus)).
			Msg("failed to append audit record")
	}
}

// dispatch sends a notification outside any lock or transaction, on its own
// short deadline. Failures never affect the operation that produced the event.
func (s *Service) dispatch(ev notify.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.notifier.Dispatch(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", ev.Type).Msg("notification dispatch failed")
	}
}

// retryRead retries an idempotent read once with backoff on transient
// failure. Domain errors pass through; writes are never retried here.
func (s *Service) retryRead(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || isDomainError(err) {
		return err
	}

	s.log.Warn().Err(err).Msg("read failed, retrying once")
	select {
	case <-ctx.Done():
		return err
	case <-time.After(readRetryBackoff):
	}

	return fn()
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrProviderNotFound) ||
		errors.Is(err, ErrPatientNotFound) ||
		errors.Is(err, ErrAppointmentNotFound)
}
