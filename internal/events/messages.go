package events

import (
	"encoding/json"
	"time"

	"expenseflow/internal/ledger"
)

// LedgerEventMessage is the wire form of a ledger mutation. It carries
// only the fields the audit relay needs; receipts never leave the app.
type LedgerEventMessage struct {
	Kind        string    `json:"kind"`
	ExpenseID   string    `json:"expense_id"`
	AmountCents int64     `json:"amount_cents"`
	Category    string    `json:"category"`
	OccurredAt  time.Time `json:"occurred_at"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewLedgerEventMessage converts a ledger change notification to its
// wire form.
func NewLedgerEventMessage(e ledger.Event) *LedgerEventMessage {
	return &LedgerEventMessage{
		Kind:        string(e.Kind),
		ExpenseID:   e.Expense.ID,
		AmountCents: e.Expense.Amount.Cents,
		Category:    string(e.Expense.Category),
		OccurredAt:  e.At,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON creates a message from JSON bytes.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
