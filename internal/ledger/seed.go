package ledger

import "expenseflow/internal/core"

// seedExpenses returns the fixed demo records written on first use when
// no persisted collection exists. Dates are anchored to today so the
// onboarding data always looks recent; ids are stable.
func seedExpenses(today core.Date) []core.Expense {
	return []core.Expense{
		{
			ID:          "1",
			Title:       "Coffee at Starbucks",
			Amount:      core.Money{Cents: 450},
			Category:    core.FoodAndDining,
			Date:        today,
			Description: "Morning coffee",
		},
		{
			ID:          "2",
			Title:       "Uber Ride",
			Amount:      core.Money{Cents: 1230},
			Category:    core.Transportation,
			Date:        today.AddDays(-1),
			Description: "Ride to office",
		},
		{
			ID:          "3",
			Title:       "Grocery Shopping",
			Amount:      core.Money{Cents: 8520},
			Category:    core.FoodAndDining,
			Date:        today.AddDays(-2),
			Description: "Weekly groceries",
		},
	}
}
