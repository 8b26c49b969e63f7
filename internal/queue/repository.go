package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrEntryNotFound    = errors.New("queue entry not found")
	ErrProviderNotFound = errors.New("provider not found")
)

// Repository contains all DB interactions needed by the queue manager.
type Repository interface {
	// EnsureProvider returns ErrProviderNotFound when the provider does not
	// exist, so check-in fails cleanly instead of tripping a foreign key.
	EnsureProvider(ctx context.Context, providerID uuid.UUID) error

	CreateEntry(ctx context.Context, e *Entry) (*Entry, error)
	GetEntryByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// GetServingEntry returns the provider's in-progress entry, or
	// ErrEntryNotFound when nobody is being served.
	GetServingEntry(ctx context.Context, providerID uuid.UUID) (*Entry, error)

	// NextWaitingEntry returns the head of the line: priority entries first,
	// earliest arrival breaking ties. ErrEntryNotFound when the line is empty.
	NextWaitingEntry(ctx context.Context, providerID uuid.UUID) (*Entry, error)

	// MarkServing and MarkCompleted are compare-and-set updates; they fail
	// with ErrEntryNotFound when the entry left the expected status.
	MarkServing(ctx context.Context, id uuid.UUID) (*Entry, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) (*Entry, error)

	// ListEntries returns today's waiting and serving entries in call order,
	// for the polling read model.
	ListEntries(ctx context.Context, providerID uuid.UUID) ([]Entry, error)

	// WithProviderTx runs fn in one transaction holding the provider row
	// lock, so call-next check and promotion commit atomically.
	WithProviderTx(ctx context.Context, providerID uuid.UUID, fn func(Repository) error) error
}
