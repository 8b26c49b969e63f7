package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/scheduling/internal/identity"
	"github.com/clinicore/scheduling/internal/notify"
)

// fakeQueueRepo is an in-memory Repository with the same ordering semantics
// as the SQL implementation: priority first, earliest arrival breaking ties.
type fakeQueueRepo struct {
	mu        sync.Mutex
	providers map[uuid.UUID]bool
	entries   map[uuid.UUID]*Entry
	clock     time.Time
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{
		providers: make(map[uuid.UUID]bool),
		entries:   make(map[uuid.UUID]*Entry),
		clock:     time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC),
	}
}

func (f *fakeQueueRepo) addProvider(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[id] = true
}

// tick advances the fake arrival clock so insertion order is deterministic.
func (f *fakeQueueRepo) tick() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

func (f *fakeQueueRepo) EnsureProvider(_ context.Context, providerID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.providers[providerID] {
		return ErrProviderNotFound
	}
	return nil
}

func (f *fakeQueueRepo) CreateEntry(_ context.Context, e *Entry) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	cp.ID = uuid.New()
	cp.Status = StatusWaiting
	if cp.ArrivedAt.IsZero() {
		cp.ArrivedAt = f.tick()
	}
	f.entries[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeQueueRepo) GetEntryByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeQueueRepo) GetServingEntry(_ context.Context, providerID uuid.UUID) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ProviderID == providerID && e.Status == StatusServing {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (f *fakeQueueRepo) NextWaitingEntry(_ context.Context, providerID uuid.UUID) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var head *Entry
	for _, e := range f.entries {
		if e.ProviderID != providerID || e.Status != StatusWaiting {
			continue
		}
		if head == nil {
			head = e
			continue
		}
		if e.Priority != head.Priority {
			if e.Priority {
				head = e
			}
			continue
		}
		if e.ArrivedAt.Before(head.ArrivedAt) {
			head = e
		}
	}
	if head == nil {
		return nil, ErrEntryNotFound
	}
	cp := *head
	return &cp, nil
}

func (f *fakeQueueRepo) MarkServing(_ context.Context, id uuid.UUID) (*Entry, error) {
	return f.cas(id, StatusWaiting, StatusServing)
}

func (f *fakeQueueRepo) MarkCompleted(_ context.Context, id uuid.UUID) (*Entry, error) {
	return f.cas(id, StatusServing, StatusCompleted)
}

func (f *fakeQueueRepo) cas(id uuid.UUID, from, to Status) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || e.Status != from {
		return nil, ErrEntryNotFound
	}
	e.Status = to
	now := f.tick()
	switch to {
	case StatusServing:
		e.CalledAt = &now
	case StatusCompleted:
		e.CompletedAt = &now
	}
	cp := *e
	return &cp, nil
}

func (f *fakeQueueRepo) ListEntries(_ context.Context, providerID uuid.UUID) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Entry
	for _, e := range f.entries {
		if e.ProviderID == providerID && e.Status != StatusCompleted {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeQueueRepo) WithProviderTx(_ context.Context, providerID uuid.UUID, fn func(Repository) error) error {
	f.mu.Lock()
	ok := f.providers[providerID]
	f.mu.Unlock()
	if !ok {
		return ErrProviderNotFound
	}
	return fn(f)
}

type queueLocker struct {
	err error
	mu  sync.Mutex
}

func (l *queueLocker) WithProviderLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(context.Context) error) error {
	if l.err != nil {
		return l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

type queueEnv struct {
	svc        *Service
	repo       *fakeQueueRepo
	providerID uuid.UUID
}

func newQueueEnv() *queueEnv {
	repo := newFakeQueueRepo()
	providerID := uuid.New()
	repo.addProvider(providerID)
	return &queueEnv{
		svc:        NewService(repo, &queueLocker{}, notify.Noop{}, zerolog.Nop()),
		repo:       repo,
		providerID: providerID,
	}
}

func frontDesk() identity.Principal {
	return identity.Principal{ID: uuid.New(), Role: identity.RoleAdmin}
}

func TestEnqueueRequiresName(t *testing.T) {
	env := newQueueEnv()

	_, err := env.svc.Enqueue(context.Background(), frontDesk(), env.providerID, "", nil, false)
	if !errors.Is(err, ErrMissingPatient) {
		t.Fatalf("err = %v, want ErrMissingPatient", err)
	}
}

func TestEnqueueUnknownProvider(t *testing.T) {
	env := newQueueEnv()

	_, err := env.svc.Enqueue(context.Background(), frontDesk(), uuid.New(), "Sam Ortiz", nil, false)
	if !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("err = %v, want ErrProviderNotFound", err)
	}
	if len(env.repo.entries) != 0 {
		t.Errorf("entries created for unknown provider = %d, want 0", len(env.repo.entries))
	}
}

func TestEnqueuePriorityRequiresStaff(t *testing.T) {
	env := newQueueEnv()
	patientID := uuid.New()
	patient := identity.Principal{ID: patientID, Role: identity.RolePatient}

	_, err := env.svc.Enqueue(context.Background(), patient, env.providerID, "Sam Ortiz", &patientID, true)
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}
}

func TestEnqueuePatientSelfCheckIn(t *testing.T) {
	env := newQueueEnv()
	patientID := uuid.New()
	patient := identity.Principal{ID: patientID, Role: identity.RolePatient}

	// A patient cannot check in anonymously or as someone else.
	if _, err := env.svc.Enqueue(context.Background(), patient, env.providerID, "Sam Ortiz", nil, false); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("anonymous self check-in: err = %v, want ErrNotAuthorized", err)
	}
	otherID := uuid.New()
	if _, err := env.svc.Enqueue(context.Background(), patient, env.providerID, "Sam Ortiz", &otherID, false); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("check-in as other patient: err = %v, want ErrNotAuthorized", err)
	}

	entry, err := env.svc.Enqueue(context.Background(), patient, env.providerID, "Sam Ortiz", &patientID, false)
	if err != nil {
		t.Fatalf("self check-in: %v", err)
	}
	if entry.Status != StatusWaiting {
		t.Errorf("status = %s, want %s", entry.Status, StatusWaiting)
	}
}

func TestCallNextPrefersPriorityOverArrival(t *testing.T) {
	env := newQueueEnv()
	ctx := context.Background()
	staff := frontDesk()

	// B arrives first without priority, A arrives later with priority.
	b, err := env.svc.Enqueue(ctx, staff, env.providerID, "Patient B", nil, false)
	if err != nil {
		t.Fatalf("enqueue B: %v", err)
	}
	a, err := env.svc.Enqueue(ctx, staff, env.providerID, "Patient A", nil, true)
	if err != nil {
		t.Fatalf("enqueue A: %v", err)
	}

	called, err := env.svc.CallNext(ctx, staff, env.providerID)
	if err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	if called.ID != a.ID {
		t.Fatalf("called %s, want priority entry %s", called.PatientName, a.PatientName)
	}
	if called.Status != StatusServing {
		t.Errorf("status = %s, want %s", called.Status, StatusServing)
	}
	if called.CalledAt == nil {
		t.Error("CalledAt not set")
	}

	if _, err := env.svc.Complete(ctx, staff, called.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	next, err := env.svc.CallNext(ctx, staff, env.providerID)
	if err != nil {
		t.Fatalf("second CallNext: %v", err)
	}
	if next.ID != b.ID {
		t.Fatalf("called %s, want %s", next.PatientName, b.PatientName)
	}
}

func TestCallNextFIFOWithinSamePriority(t *testing.T) {
	env := newQueueEnv()
	ctx := context.Background()
	staff := frontDesk()

	first, err := env.svc.Enqueue(ctx, staff, env.providerID, "First", nil, false)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := env.svc.Enqueue(ctx, staff, env.providerID, "Second", nil, false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	called, err := env.svc.CallNext(ctx, staff, env.providerID)
	if err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	if called.ID != first.ID {
		t.Fatalf("called %s, want earliest arrival", called.PatientName)
	}
}

func TestCallNextEmptyQueue(t *testing.T) {
	env := newQueueEnv()

	_, err := env.svc.CallNext(context.Background(), frontDesk(), env.providerID)
	if !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("err = %v, want ErrQueueEmpty", err)
	}
}

func TestCallNextWhileServing(t *testing.T) {
	env := newQueueEnv()
	ctx := context.Background()
	staff := frontDesk()

	for _, name := range []string{"One", "Two"} {
		if _, err := env.svc.Enqueue(ctx, staff, env.providerID, name, nil, false); err != nil {
			t.Fatalf("enqueue %s: %v", name, err)
		}
	}
	if _, err := env.svc.CallNext(ctx, staff, env.providerID); err != nil {
		t.Fatalf("CallNext: %v", err)
	}

	_, err := env.svc.CallNext(ctx, staff, env.providerID)
	if !errors.Is(err, ErrProviderBusy) {
		t.Fatalf("err = %v, want ErrProviderBusy", err)
	}
}

func TestConcurrentCallNextServesExactlyOne(t *testing.T) {
	env := newQueueEnv()
	ctx := context.Background()
	staff := frontDesk()

	for _, name := range []string{"One", "Two", "Three"} {
		if _, err := env.svc.Enqueue(ctx, staff, env.providerID, name, nil, false); err != nil {
			t.Fatalf("enqueue %s: %v", name, err)
		}
	}

	const racers = 8
	var successes, busy int64
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.CallNext(ctx, staff, env.providerID)
			switch {
			case err == nil:
				atomic.AddInt64(&successes, 1)
			case errors.Is(err, ErrProviderBusy):
				atomic.AddInt64(&busy, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if busy != racers-1 {
		t.Errorf("busy = %d, want %d", busy, racers-1)
	}

	serving := 0
	for _, e := range env.repo.entries {
		if e.Status == StatusServing {
			serving++
		}
	}
	if serving != 1 {
		t.Errorf("serving entries = %d, want exactly 1", serving)
	}
}

func TestCallNextAuthorization(t *testing.T) {
	env := newQueueEnv()
	ctx := context.Background()

	patient := identity.Principal{ID: uuid.New(), Role: identity.RolePatient}
	if _, err := env.svc.CallNext(ctx, patient, env.providerID); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("patient: err = %v, want ErrNotAuthorized", err)
	}

	otherProvider := identity.Principal{ID: uuid.New(), Role: identity.RoleProvider}
	if _, err := env.svc.CallNext(ctx, otherProvider, env.providerID); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("other provider: err = %v, want ErrNotAuthorized", err)
	}

	// The provider calling their own line gets past the guard.
	self := identity.Principal{ID: env.providerID, Role: identity.RoleProvider}
	if _, err := env.svc.CallNext(ctx, self, env.providerID); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("own provider: err = %v, want ErrQueueEmpty", err)
	}
}

func TestCallNextLockContention(t *testing.T) {
	env := newQueueEnv()
	lockErr := errors.New("provider lock not acquired")
	svc := NewService(env.repo, &queueLocker{err: lockErr}, notify.Noop{}, zerolog.Nop())

	_, err := svc.CallNext(context.Background(), frontDesk(), env.providerID)
	if !errors.Is(err, lockErr) {
		t.Fatalf("err = %v, want lock error passed through", err)
	}
}

func TestCompleteRequiresServing(t *testing.T) {
	env := newQueueEnv()
	ctx := context.Background()
	staff := frontDesk()

	entry, err := env.svc.Enqueue(ctx, staff, env.providerID, "Waiting Patient", nil, false)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	_, err = env.svc.Complete(ctx, staff, entry.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete waiting entry: err = %v, want ErrInvalidTransition", err)
	}
}

func TestCompleteFullCycle(t *testing.T) {
	env := newQueueEnv()
	ctx := context.Background()
	staff := frontDesk()

	if _, err := env.svc.Enqueue(ctx, staff, env.providerID, "Visitor", nil, false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	called, err := env.svc.CallNext(ctx, staff, env.providerID)
	if err != nil {
		t.Fatalf("CallNext: %v", err)
	}

	done, err := env.svc.Complete(ctx, staff, called.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Errorf("status = %s, want %s", done.Status, StatusCompleted)
	}
	if done.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	// Completing twice loses the compare-and-set.
	if _, err := env.svc.Complete(ctx, staff, called.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double complete: err = %v, want ErrInvalidTransition", err)
	}
}

func TestCompleteOtherProvidersEntry(t *testing.T) {
	env := newQueueEnv()
	ctx := context.Background()
	staff := frontDesk()

	if _, err := env.svc.Enqueue(ctx, staff, env.providerID, "Visitor", nil, false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	called, err := env.svc.CallNext(ctx, staff, env.providerID)
	if err != nil {
		t.Fatalf("CallNext: %v", err)
	}

	// Another provider sees the same error as for a nonexistent entry, so
	// an entry id never confirms it belongs to someone else's line.
	other := identity.Principal{ID: uuid.New(), Role: identity.RoleProvider}
	if _, err := env.svc.Complete(ctx, other, called.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("other provider: err = %v, want ErrEntryNotFound", err)
	}
	if _, err := env.svc.Complete(ctx, other, uuid.New()); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("missing entry: err = %v, want ErrEntryNotFound", err)
	}
}

func TestListExcludesCompleted(t *testing.T) {
	env := newQueueEnv()
	ctx := context.Background()
	staff := frontDesk()

	for _, name := range []string{"One", "Two"} {
		if _, err := env.svc.Enqueue(ctx, staff, env.providerID, name, nil, false); err != nil {
			t.Fatalf("enqueue %s: %v", name, err)
		}
	}
	called, err := env.svc.CallNext(ctx, staff, env.providerID)
	if err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	if _, err := env.svc.Complete(ctx, staff, called.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	entries, err := env.svc.List(ctx, env.providerID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Status != StatusWaiting {
		t.Errorf("remaining entry status = %s, want %s", entries[0].Status, StatusWaiting)
	}
}
