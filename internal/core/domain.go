package core

import (
	"errors"
	"strings"
)

const (
	FoodAndDining  Category = "Food & Dining"
	Transportation Category = "Transportation"
	Shopping       Category = "Shopping"
	Entertainment  Category = "Entertainment"
	BillsUtilities Category = "Bills & Utilities"
	Healthcare     Category = "Healthcare"
	Travel         Category = "Travel"
	Education      Category = "Education"
	Business       Category = "Business"
	Other          Category = "Other"
)

// duplicateWindowDays is the calendar-day window of the duplicate rule.
// Two expenses match only when their dates are strictly closer than this.
const duplicateWindowDays = 3

type (
	// Category is one value of the fixed expense taxonomy. There are no
	// free-form categories.
	Category string

	// Receipt is an image attached to an expense. Data JSON-encodes as
	// base64, mirroring the data-URL capture in the entry form.
	Receipt struct {
		Name     string `json:"name"`
		Size     int64  `json:"size"`
		MimeType string `json:"mimeType"`
		Data     []byte `json:"data"`
	}

	// Expense is a single tracked transaction. The ledger owns the
	// collection; everything else goes through its operations.
	Expense struct {
		ID          string   `json:"id"`
		Title       string   `json:"title"`
		Amount      Money    `json:"amount"`
		Category    Category `json:"category"`
		Date        Date     `json:"date"`
		Description string   `json:"description"`
		Receipt     *Receipt `json:"receipt,omitempty"`
		IsDuplicate bool     `json:"isDuplicate"`
	}

	// Identity is the authenticated user record for the current session.
	Identity struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
)

var (
	ErrEmptyTitle      = errors.New("empty title")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidDate     = errors.New("invalid date")
)

// categories holds the fixed taxonomy in display order.
var categories = []Category{
	FoodAndDining,
	Transportation,
	Shopping,
	Entertainment,
	BillsUtilities,
	Healthcare,
	Travel,
	Education,
	Business,
	Other,
}

// Categories returns the fixed category set in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Valid reports whether c is one of the enumerated categories.
func (c Category) Valid() bool {
	for _, v := range categories {
		if c == v {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// Validate checks field-level constraints on an expense. This runs in the
// form/HTTP layer before the ledger is called; the ledger itself accepts
// whatever it is handed.
func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(e.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !e.Category.Valid() {
		return ErrInvalidCategory
	}
	if err := e.Date.Validate(); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// LikelyDuplicateOf reports whether two expenses look like an accidental
// re-entry of each other: same amount to the cent, same category, and dates
// strictly less than three calendar days apart. Title, description, and
// receipt are deliberately not considered.
func (e Expense) LikelyDuplicateOf(other Expense) bool {
	if e.Amount.Cents != other.Amount.Cents {
		return false
	}
	if e.Category != other.Category {
		return false
	}
	return e.Date.DaysApart(other.Date) < duplicateWindowDays
}

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	Category Category `json:"category"`
	Amount   Money    `json:"amount"`
}

// MonthTotal is the aggregate spend for one calendar month.
type MonthTotal struct {
	Year  int   `json:"year"`
	Month int   `json:"month"`
	Total Money `json:"total"`
}
