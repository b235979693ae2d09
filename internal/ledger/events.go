package ledger

import (
	"time"

	"expenseflow/internal/core"
)

const (
	EventAdded       EventKind = "expense.added"
	EventUpdated     EventKind = "expense.updated"
	EventDeleted     EventKind = "expense.deleted"
	EventFlagCleared EventKind = "expense.flag_cleared"
)

type (
	// EventKind names a ledger mutation.
	EventKind string

	// Event is the change notification emitted after every successful
	// mutation. For deletes it carries the removed record.
	Event struct {
		Kind    EventKind
		Expense core.Expense
		At      time.Time
	}
)

// Subscribe registers a change listener. Listeners are invoked
// synchronously after the mutation has been applied and persisted, in
// subscription order. A listener must not call back into mutating
// operations.
func (l *Ledger) Subscribe(fn func(Event)) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.subs = append(l.subs, fn)
}

func (l *Ledger) notify(e Event) {
	l.subMu.Lock()
	subs := make([]func(Event), len(l.subs))
	copy(subs, l.subs)
	l.subMu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}
