package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/scheduling/internal/identity"
	"github.com/clinicore/scheduling/internal/notify"
	redisclient "github.com/clinicore/scheduling/internal/redis"
)

var (
	ErrQueueEmpty        = errors.New("no patients waiting")
	ErrProviderBusy      = errors.New("provider is already serving a patient")
	ErrInvalidTransition = errors.New("invalid queue entry transition")
	ErrNotAuthorized     = errors.New("not permitted")
	ErrMissingPatient    = errors.New("patient name is required for walk-in check-in")
)

// Service orders walk-in patients per provider and enforces the
// one-serving-at-a-time invariant under concurrent front-desk callers.
type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier notify.Dispatcher
	log      zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, notifier notify.Dispatcher, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		log:      log,
	}
}

// Enqueue checks a walk-in patient into a provider's line. Priority check-in
// is reserved for staff; self check-in requires the patient to identify as
// themselves.
func (s *Service) Enqueue(ctx context.Context, actor identity.Principal, providerID uuid.UUID, patientName string, patientID *uuid.UUID, priority bool) (*Entry, error) {
	if patientName == "" {
		return nil, ErrMissingPatient
	}
	if priority && !actor.Staff() {
		return nil, ErrNotAuthorized
	}
	if actor.Role == identity.RolePatient && (patientID == nil || *patientID != actor.ID) {
		return nil, ErrNotAuthorized
	}

	if err := s.repo.EnsureProvider(ctx, providerID); err != nil {
		return nil, err
	}

	entry, err := s.repo.CreateEntry(ctx, &Entry{
		ProviderID:  providerID,
		PatientID:   patientID,
		PatientName: patientName,
		Priority:    priority,
	})
	if err != nil {
		return nil, fmt.Errorf("create queue entry: %w", err)
	}

	s.dispatch(notify.Event{
		Type:         notify.EventQueueCheckedIn,
		ProviderID:   providerID,
		QueueEntryID: &entry.ID,
		PatientID:    patientID,
		At:           time.Now().UTC(),
	})

	return entry, nil
}

// CallNext atomically promotes the head of the line to serving. It fails
// with ErrProviderBusy while another entry is being served and ErrQueueEmpty
// when nobody is waiting; two concurrent calls can never both succeed.
func (s *Service) CallNext(ctx context.Context, actor identity.Principal, providerID uuid.UUID) (*Entry, error) {
	if !actor.Staff() {
		return nil, ErrNotAuthorized
	}
	if actor.Role == identity.RoleProvider && actor.ID != providerID {
		return nil, ErrNotAuthorized
	}

	var called *Entry
	err := s.locker.WithProviderLock(ctx, providerID, time.Now().UTC(), func(lockCtx context.Context) error {
		return s.repo.WithProviderTx(lockCtx, providerID, func(tx Repository) error {
			if _, err := tx.GetServingEntry(lockCtx, providerID); err == nil {
				return ErrProviderBusy
			} else if !errors.Is(err, ErrEntryNotFound) {
				return fmt.Errorf("check serving entry: %w", err)
			}

			head, err := tx.NextWaitingEntry(lockCtx, providerID)
			if err != nil {
				if errors.Is(err, ErrEntryNotFound) {
					return ErrQueueEmpty
				}
				return fmt.Errorf("find queue head: %w", err)
			}

			called, err = tx.MarkServing(lockCtx, head.ID)
			if err != nil {
				if errors.Is(err, ErrEntryNotFound) {
					return ErrInvalidTransition
				}
				return fmt.Errorf("mark entry serving: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(notify.Event{
		Type:         notify.EventQueueCalled,
		ProviderID:   providerID,
		QueueEntryID: &called.ID,
		PatientID:    called.PatientID,
		At:           time.Now().UTC(),
	})

	return called, nil
}

// Complete finishes the visit for a serving entry. The compare-and-set
// update means two staff members completing the same entry cannot both
// succeed; the loser gets ErrInvalidTransition.
func (s *Service) Complete(ctx context.Context, actor identity.Principal, entryID uuid.UUID) (*Entry, error) {
	if !actor.Staff() {
		return nil, ErrNotAuthorized
	}

	entry, err := s.repo.GetEntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	// Another provider's entry is indistinguishable from a missing one.
	if actor.Role == identity.RoleProvider && actor.ID != entry.ProviderID {
		return nil, ErrEntryNotFound
	}
	if entry.Status != StatusServing {
		return nil, ErrInvalidTransition
	}

	completed, err := s.repo.MarkCompleted(ctx, entryID)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("mark entry completed: %w", err)
	}

	s.dispatch(notify.Event{
		Type:         notify.EventQueueCompleted,
		ProviderID:   completed.ProviderID,
		QueueEntryID: &completed.ID,
		PatientID:    completed.PatientID,
		At:           time.Now().UTC(),
	})

	return completed, nil
}

// List returns today's line for a provider, serving entry first, for the
// polling read model. Sub-second staleness on the display side is fine.
func (s *Service) List(ctx context.Context, providerID uuid.UUID) ([]Entry, error) {
	entries, err := s.repo.ListEntries(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	return entries, nil
}

func (s *Service) dispatch(ev notify.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.notifier.Dispatch(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", ev.Type).Msg("notification dispatch failed")
	}
}
