// Package latency models the artificial cost of operations that will one
// day be real network round trips. The delay is injected so production
// wiring can simulate a backend while tests run with no delay at all.
package latency

import "time"

// Operation classifies which delay applies.
type Operation string

const (
	// Mutation covers expense add/update/delete.
	Mutation Operation = "mutation"
	// Auth covers sign-in and sign-up.
	Auth Operation = "auth"
)

// Policy is the strategy interface for operation cost. An in-flight wait
// always runs to completion; there is no cancellation.
type Policy interface {
	Wait(op Operation)
}

// Fixed sleeps a constant duration per operation class.
type Fixed struct {
	MutationDelay time.Duration
	AuthDelay     time.Duration
}

func (f Fixed) Wait(op Operation) {
	switch op {
	case Auth:
		time.Sleep(f.AuthDelay)
	default:
		time.Sleep(f.MutationDelay)
	}
}

// None waits for nothing. Used in tests.
type None struct{}

func (None) Wait(Operation) {}
