package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"expenseflow/internal/core"
	"expenseflow/internal/ledger"
)

// expenseRequest is the payload for create and update. Amount arrives as
// a decimal string ("12.34") and is converted to cents on the way in.
type expenseRequest struct {
	Title       *string       `json:"title"`
	Amount      *string       `json:"amount"`
	Category    *string       `json:"category"`
	Date        *string       `json:"date"`
	Description *string       `json:"description"`
	Receipt     *core.Receipt `json:"receipt"`
}

// expenseResponse wraps a record with an optional persistence warning.
type expenseResponse struct {
	Expense core.Expense `json:"expense"`
	Warning string       `json:"warning,omitempty"`
}

const persistWarning = "saved in memory only; durable storage is unavailable"

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	filter, errMsg := parseFilter(r)
	if errMsg != "" {
		respondError(w, http.StatusBadRequest, "invalid_filter", errMsg)
		return
	}

	expenses := s.ledger.Search(filter)
	respondJSON(w, http.StatusOK, map[string]any{
		"expenses": expenses,
		"count":    len(expenses),
	})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	if s.ledger.Busy() {
		respondError(w, http.StatusConflict, "busy", "another operation is in flight")
		return
	}

	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	in, errMsg := buildInput(req)
	if errMsg != "" {
		respondError(w, http.StatusUnprocessableEntity, "invalid_expense", errMsg)
		return
	}

	created, err := s.ledger.Add(r.Context(), in)
	if err != nil && !errors.Is(err, ledger.ErrPersistence) {
		logger(r.Context()).ErrorContext(r.Context(), "Expense create failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "could not create expense")
		return
	}

	atomic.AddInt64(&s.appMetrics.expensesCreated, 1)
	resp := expenseResponse{Expense: created}
	if err != nil {
		atomic.AddInt64(&s.appMetrics.persistWarnings, 1)
		resp.Warning = persistWarning
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	patch, errMsg := buildPatch(req)
	if errMsg != "" {
		respondError(w, http.StatusUnprocessableEntity, "invalid_expense", errMsg)
		return
	}

	found, err := s.ledger.Update(r.Context(), id, patch)
	if err != nil && !errors.Is(err, ledger.ErrPersistence) {
		logger(r.Context()).ErrorContext(r.Context(), "Expense update failed", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal", "could not update expense")
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "not_found", "no expense with id "+id)
		return
	}

	resp := expenseResponse{Expense: s.expenseByID(id)}
	if err != nil {
		atomic.AddInt64(&s.appMetrics.persistWarnings, 1)
		resp.Warning = persistWarning
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	found, err := s.ledger.Delete(r.Context(), id)
	if err != nil && !errors.Is(err, ledger.ErrPersistence) {
		logger(r.Context()).ErrorContext(r.Context(), "Expense delete failed", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal", "could not delete expense")
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "not_found", "no expense with id "+id)
		return
	}

	atomic.AddInt64(&s.appMetrics.expensesDeleted, 1)
	if err != nil {
		atomic.AddInt64(&s.appMetrics.persistWarnings, 1)
		respondJSON(w, http.StatusOK, map[string]string{"warning": persistWarning})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkNotDuplicate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	found, err := s.ledger.MarkNotDuplicate(r.Context(), id)
	if err != nil && !errors.Is(err, ledger.ErrPersistence) {
		logger(r.Context()).ErrorContext(r.Context(), "Duplicate override failed", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal", "could not clear duplicate flag")
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "not_found", "no expense with id "+id)
		return
	}

	resp := expenseResponse{Expense: s.expenseByID(id)}
	if err != nil {
		atomic.AddInt64(&s.appMetrics.persistWarnings, 1)
		resp.Warning = persistWarning
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"categories": core.Categories()})
}

// expenseByID re-reads a record after a mutation for the response body.
func (s *Server) expenseByID(id string) core.Expense {
	for _, e := range s.ledger.Expenses() {
		if e.ID == id {
			return e
		}
	}
	return core.Expense{ID: id}
}

// buildInput validates a create request and converts it to a ledger input.
func buildInput(req expenseRequest) (ledger.Input, string) {
	var in ledger.Input

	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		return in, "title is required"
	}
	in.Title = strings.TrimSpace(*req.Title)

	if req.Amount == nil {
		return in, "amount is required"
	}
	cents, err := core.ParseDecimalToCents(*req.Amount)
	if err != nil || cents <= 0 {
		return in, "amount must be a positive decimal number"
	}
	in.Amount = core.Money{Cents: cents}

	if req.Category == nil {
		return in, "category is required"
	}
	category := core.Category(*req.Category)
	if !category.Valid() {
		return in, "unknown category " + strconv.Quote(*req.Category)
	}
	in.Category = category

	if req.Date != nil && *req.Date != "" {
		date, err := core.ParseDate(*req.Date)
		if err != nil {
			return in, "date must be in YYYY-MM-DD format"
		}
		in.Date = date
	}

	if req.Description != nil {
		in.Description = strings.TrimSpace(*req.Description)
	}
	in.Receipt = req.Receipt

	return in, ""
}

// buildPatch validates an update request; only present fields are patched.
func buildPatch(req expenseRequest) (ledger.Patch, string) {
	var p ledger.Patch

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return p, "title cannot be blank"
		}
		p.Title = &title
	}
	if req.Amount != nil {
		cents, err := core.ParseDecimalToCents(*req.Amount)
		if err != nil || cents <= 0 {
			return p, "amount must be a positive decimal number"
		}
		p.Amount = &core.Money{Cents: cents}
	}
	if req.Category != nil {
		category := core.Category(*req.Category)
		if !category.Valid() {
			return p, "unknown category " + strconv.Quote(*req.Category)
		}
		p.Category = &category
	}
	if req.Date != nil {
		date, err := core.ParseDate(*req.Date)
		if err != nil {
			return p, "date must be in YYYY-MM-DD format"
		}
		p.Date = &date
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		p.Description = &description
	}
	if req.Receipt != nil {
		p.Receipt = req.Receipt
	}

	return p, ""
}

// parseFilter reads list query parameters into a ledger filter.
func parseFilter(r *http.Request) (ledger.Filter, string) {
	q := r.URL.Query()
	f := ledger.Filter{
		Query: q.Get("q"),
	}

	if v := q.Get("category"); v != "" {
		category := core.Category(v)
		if !category.Valid() {
			return f, "unknown category " + strconv.Quote(v)
		}
		f.Category = category
	}

	switch v := q.Get("sort"); v {
	case "", "date":
		f.SortBy = ledger.SortByDate
	case "amount":
		f.SortBy = ledger.SortByAmount
	case "title":
		f.SortBy = ledger.SortByTitle
	case "category":
		f.SortBy = ledger.SortByCategory
	default:
		return f, "sort must be one of date, amount, title, category"
	}

	switch v := q.Get("order"); v {
	case "":
	case "asc":
		f.Order = ledger.Ascending
	case "desc":
		f.Order = ledger.Descending
	default:
		return f, "order must be asc or desc"
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return f, "limit must be a non-negative integer"
		}
		f.Limit = limit
	}

	return f, ""
}
