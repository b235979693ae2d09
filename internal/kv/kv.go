// Package kv defines the durable key-value storage port used by the
// session store and the expense ledger. Values are JSON-encoded blobs;
// keys are fixed strings so state survives restarts.
package kv

import "context"

// Well-known storage keys.
const (
	KeyIdentity = "expenseflow_user"
	KeyExpenses = "expenseflow_expenses"
)

// Store is the outbound port for durable key-value storage.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes the value for key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
