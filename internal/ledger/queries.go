package ledger

import (
	"sort"
	"strings"

	"expenseflow/internal/core"
)

const (
	SortByDate     SortField = "date"
	SortByAmount   SortField = "amount"
	SortByTitle    SortField = "title"
	SortByCategory SortField = "category"

	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

type (
	SortField string
	SortOrder string

	// Filter narrows and orders the expense list for display. The zero
	// value means: everything, newest first.
	Filter struct {
		Query    string
		Category core.Category // empty matches all
		SortBy   SortField     // default SortByDate
		Order    SortOrder     // default Descending
		Limit    int           // 0 means no limit
	}

	// Summary is the dashboard headline block.
	Summary struct {
		Count          int        `json:"count"`
		Total          core.Money `json:"total"`
		ThisMonth      core.Money `json:"thisMonth"`
		ThisMonthCount int        `json:"thisMonthCount"`
		Categories     int        `json:"categories"`
		Duplicates     int        `json:"duplicates"`
	}
)

// Expenses returns the full collection in insertion order.
func (l *Ledger) Expenses() []core.Expense {
	return l.snapshot()
}

// Total returns the sum over the entire collection, zero when empty.
func (l *Ledger) Total() core.Money {
	var total core.Money
	for _, e := range l.snapshot() {
		total = total.Add(e.Amount)
	}
	return total
}

// TotalByCategory maps each category to its summed amount. Categories
// with no expenses are absent from the result.
func (l *Ledger) TotalByCategory() map[core.Category]core.Money {
	totals := make(map[core.Category]core.Money)
	for _, e := range l.snapshot() {
		totals[e.Category] = totals[e.Category].Add(e.Amount)
	}
	return totals
}

// Duplicates returns the records currently flagged as likely duplicates,
// in collection order.
func (l *Ledger) Duplicates() []core.Expense {
	var out []core.Expense
	for _, e := range l.snapshot() {
		if e.IsDuplicate {
			out = append(out, e)
		}
	}
	return out
}

// MonthlyTotals aggregates spend per calendar month, oldest first.
func (l *Ledger) MonthlyTotals() []core.MonthTotal {
	type ym struct{ year, month int }
	totals := make(map[ym]core.Money)
	for _, e := range l.snapshot() {
		k := ym{e.Date.Year(), e.Date.Month()}
		totals[k] = totals[k].Add(e.Amount)
	}

	out := make([]core.MonthTotal, 0, len(totals))
	for k, v := range totals {
		out = append(out, core.MonthTotal{Year: k.year, Month: k.month, Total: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}

// TopCategories returns up to n categories ordered by spend, highest
// first. Ties break on category name so the order is deterministic.
func (l *Ledger) TopCategories(n int) []core.CategoryAmount {
	totals := l.TotalByCategory()
	out := make([]core.CategoryAmount, 0, len(totals))
	for c, amount := range totals {
		out = append(out, core.CategoryAmount{Category: c, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Category < out[j].Category
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Summary computes the dashboard headline numbers in one pass.
func (l *Ledger) Summary() Summary {
	expenses := l.snapshot()
	today := core.DateOf(l.now())

	s := Summary{Count: len(expenses)}
	seen := make(map[core.Category]struct{})
	for _, e := range expenses {
		s.Total = s.Total.Add(e.Amount)
		seen[e.Category] = struct{}{}
		if e.Date.Year() == today.Year() && e.Date.Month() == today.Month() {
			s.ThisMonth = s.ThisMonth.Add(e.Amount)
			s.ThisMonthCount++
		}
		if e.IsDuplicate {
			s.Duplicates++
		}
	}
	s.Categories = len(seen)
	return s
}

// Search filters and orders the collection for list views.
func (l *Ledger) Search(f Filter) []core.Expense {
	src := l.snapshot()
	out := make([]core.Expense, 0, len(src))
	q := strings.ToLower(strings.TrimSpace(f.Query))
	for _, e := range src {
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(e.Title), q) &&
			!strings.Contains(strings.ToLower(e.Description), q) {
			continue
		}
		out = append(out, e)
	}

	sortBy := f.SortBy
	if sortBy == "" {
		sortBy = SortByDate
	}
	less := func(a, b core.Expense) bool {
		switch sortBy {
		case SortByAmount:
			return a.Amount.Cents < b.Amount.Cents
		case SortByTitle:
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		case SortByCategory:
			return strings.ToLower(string(a.Category)) < strings.ToLower(string(b.Category))
		default:
			return a.Date.Before(b.Date.Time)
		}
	}
	if f.Order == Ascending {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	} else {
		sort.SliceStable(out, func(i, j int) bool { return less(out[j], out[i]) })
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
