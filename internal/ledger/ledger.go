// Package ledger owns the authoritative in-memory collection of expense
// records and every operation that mutates or reads it. All mutations
// run the same way: wait out the latency policy, replace the collection
// wholesale (copy-on-write), persist the full collection, then notify
// subscribers. In-memory state stays authoritative even when a durable
// write fails.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"expenseflow/internal/core"
	"expenseflow/internal/kv"
	"expenseflow/internal/latency"
)

// ErrPersistence marks a failed durable write. The in-memory mutation is
// never rolled back; callers should surface a non-fatal warning.
var ErrPersistence = errors.New("ledger persistence failed")

// Input is the caller-validated payload for Add. The ledger does not
// re-validate fields; validation lives in the form/HTTP layer.
type Input struct {
	Title       string
	Amount      core.Money
	Category    core.Category
	Date        core.Date // zero value defaults to today
	Description string
	Receipt     *core.Receipt
}

// Patch holds partial fields for Update. Nil fields are left untouched.
type Patch struct {
	Title       *string
	Amount      *core.Money
	Category    *core.Category
	Date        *core.Date
	Description *string
	Receipt     *core.Receipt
}

// Ledger is the expense collection service. Construct with New, call Init
// once to load or seed, then use the operations. Safe for concurrent use;
// mutations are serialized by a mutex and readers always observe a
// consistent snapshot because the slice is replaced by reference.
type Ledger struct {
	store kv.Store
	now   func() time.Time
	newID func() string
	delay latency.Policy

	mu       sync.Mutex
	expenses []core.Expense

	// busy mirrors the UI's "operation in flight" flag.
	busy atomic.Bool

	subMu sync.Mutex
	subs  []func(Event)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock injects the time source. Tests use a fixed clock.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator injects the id source. Tests use a counter.
func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// WithLatency injects the operation cost policy.
func WithLatency(p latency.Policy) Option {
	return func(l *Ledger) { l.delay = p }
}

func New(store kv.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
		delay: latency.None{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Init loads the persisted collection, or seeds the fixed demo records
// when nothing is persisted yet. Persisted data is loaded verbatim with
// no re-validation.
func (l *Ledger) Init(ctx context.Context) error {
	data, ok, err := l.store.Get(ctx, kv.KeyExpenses)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	if ok {
		var expenses []core.Expense
		if err := json.Unmarshal(data, &expenses); err != nil {
			return fmt.Errorf("decode ledger: %w", err)
		}
		l.mu.Lock()
		l.expenses = expenses
		l.mu.Unlock()
		slog.InfoContext(ctx, "Ledger loaded from storage", "count", len(expenses))
		return nil
	}

	seed := seedExpenses(core.DateOf(l.now()))
	l.mu.Lock()
	l.expenses = seed
	err = l.persistLocked(ctx)
	l.mu.Unlock()
	if err != nil {
		slog.WarnContext(ctx, "Seed persist failed, continuing in memory", "error", err)
	}
	slog.InfoContext(ctx, "Ledger seeded with demo records", "count", len(seed))
	return nil
}

// Busy reports whether a mutating operation is currently in flight.
// Collaborators use it to disable further triggers.
func (l *Ledger) Busy() bool {
	return l.busy.Load()
}

// Add assigns a new id, defaults the date to today, runs the duplicate
// rule against the existing records, appends, and persists. It returns
// the created record; on a failed durable write the record is still in
// memory and the error wraps ErrPersistence.
func (l *Ledger) Add(ctx context.Context, in Input) (core.Expense, error) {
	l.busy.Store(true)
	defer l.busy.Store(false)
	l.delay.Wait(latency.Mutation)

	date := in.Date
	if date.IsEmpty() {
		date = core.DateOf(l.now())
	}
	exp := core.Expense{
		ID:          l.newID(),
		Title:       in.Title,
		Amount:      in.Amount,
		Category:    in.Category,
		Date:        date,
		Description: in.Description,
		Receipt:     in.Receipt,
	}

	l.mu.Lock()
	next := make([]core.Expense, len(l.expenses), len(l.expenses)+1)
	copy(next, l.expenses)
	matches := 0
	for i := range next {
		if next[i].LikelyDuplicateOf(exp) {
			next[i].IsDuplicate = true
			matches++
		}
	}
	if matches > 0 {
		exp.IsDuplicate = true
	}
	next = append(next, exp)
	l.expenses = next
	err := l.persistLocked(ctx)
	l.mu.Unlock()

	if matches > 0 {
		slog.InfoContext(ctx, "Possible duplicate flagged",
			"id", exp.ID,
			"matches", matches,
			"amount_cents", exp.Amount.Cents,
			"category", exp.Category)
	}
	slog.InfoContext(ctx, "Expense added",
		"id", exp.ID,
		"title", exp.Title,
		"amount_cents", exp.Amount.Cents,
		"category", exp.Category)

	l.notify(Event{Kind: EventAdded, Expense: exp, At: l.now()})
	return exp, err
}

// Update merges the patch into the record matching id. It reports whether
// the record was found; an unknown id leaves the collection untouched.
// Duplicate detection is not re-run on update.
func (l *Ledger) Update(ctx context.Context, id string, p Patch) (bool, error) {
	l.busy.Store(true)
	defer l.busy.Store(false)
	l.delay.Wait(latency.Mutation)

	l.mu.Lock()
	idx := l.indexLocked(id)
	if idx < 0 {
		l.mu.Unlock()
		slog.DebugContext(ctx, "Update of unknown expense ignored", "id", id)
		return false, nil
	}
	next := make([]core.Expense, len(l.expenses))
	copy(next, l.expenses)
	applyPatch(&next[idx], p)
	updated := next[idx]
	l.expenses = next
	err := l.persistLocked(ctx)
	l.mu.Unlock()

	slog.InfoContext(ctx, "Expense updated", "id", id)
	l.notify(Event{Kind: EventUpdated, Expense: updated, At: l.now()})
	return true, err
}

// Delete removes the record matching id, reporting whether it existed.
func (l *Ledger) Delete(ctx context.Context, id string) (bool, error) {
	l.busy.Store(true)
	defer l.busy.Store(false)
	l.delay.Wait(latency.Mutation)

	l.mu.Lock()
	idx := l.indexLocked(id)
	if idx < 0 {
		l.mu.Unlock()
		slog.DebugContext(ctx, "Delete of unknown expense ignored", "id", id)
		return false, nil
	}
	removed := l.expenses[idx]
	next := make([]core.Expense, 0, len(l.expenses)-1)
	next = append(next, l.expenses[:idx]...)
	next = append(next, l.expenses[idx+1:]...)
	l.expenses = next
	err := l.persistLocked(ctx)
	l.mu.Unlock()

	slog.InfoContext(ctx, "Expense deleted", "id", id, "amount_cents", removed.Amount.Cents)
	l.notify(Event{Kind: EventDeleted, Expense: removed, At: l.now()})
	return true, err
}

// MarkNotDuplicate clears the duplicate flag on the matching record
// unconditionally. It does not touch the record the flag was originally
// paired with; the rule keeps no memory of pairs.
func (l *Ledger) MarkNotDuplicate(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	idx := l.indexLocked(id)
	if idx < 0 {
		l.mu.Unlock()
		slog.DebugContext(ctx, "Duplicate override for unknown expense ignored", "id", id)
		return false, nil
	}
	next := make([]core.Expense, len(l.expenses))
	copy(next, l.expenses)
	next[idx].IsDuplicate = false
	cleared := next[idx]
	l.expenses = next
	err := l.persistLocked(ctx)
	l.mu.Unlock()

	slog.InfoContext(ctx, "Duplicate flag cleared", "id", id)
	l.notify(Event{Kind: EventFlagCleared, Expense: cleared, At: l.now()})
	return true, err
}

// indexLocked returns the position of id in the collection, or -1.
func (l *Ledger) indexLocked(id string) int {
	for i := range l.expenses {
		if l.expenses[i].ID == id {
			return i
		}
	}
	return -1
}

func applyPatch(e *core.Expense, p Patch) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Receipt != nil {
		e.Receipt = p.Receipt
	}
}

// persistLocked writes the full collection under the ledger key. Callers
// hold l.mu. A failed write is logged and wrapped with ErrPersistence;
// memory is not rolled back.
func (l *Ledger) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(l.expenses)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPersistence, err)
	}
	if err := l.store.Set(ctx, kv.KeyExpenses, data); err != nil {
		slog.ErrorContext(ctx, "Ledger persist failed, continuing in memory-only mode",
			"error", err,
			"count", len(l.expenses))
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// snapshot returns the current collection. The slice is never mutated in
// place after publication, so handing out the reference is safe.
func (l *Ledger) snapshot() []core.Expense {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expenses
}
