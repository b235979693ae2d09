// Package worker contains the audit relay, which drains ledger event
// messages from AMQP into the durable ledger_events journal.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"expenseflow/internal/events"
)

// Journal records ledger events durably. Implemented by the SQLite
// key-value store.
type Journal interface {
	AppendLedgerEvent(ctx context.Context, kind, expenseID string, amountCents int64, category string, occurredAt time.Time) error
}

// AuditRelay consumes ledger event messages and appends them to the
// journal. Losing the app process no longer loses the audit trail.
type AuditRelay struct {
	journal Journal
}

func NewAuditRelay(journal Journal) *AuditRelay {
	return &AuditRelay{journal: journal}
}

// HandleLedgerEvent journals a single consumed message.
func (r *AuditRelay) HandleLedgerEvent(ctx context.Context, msg *events.LedgerEventMessage) error {
	slog.InfoContext(ctx, "Journaling ledger event",
		"kind", msg.Kind,
		"expense_id", msg.ExpenseID,
		"amount_cents", msg.AmountCents)

	err := r.journal.AppendLedgerEvent(ctx,
		msg.Kind,
		msg.ExpenseID,
		msg.AmountCents,
		msg.Category,
		msg.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("append ledger event: %w", err)
	}

	return nil
}
