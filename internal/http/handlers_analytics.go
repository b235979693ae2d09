package http

import (
	"net/http"
	"strconv"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.ledger.Summary())
}

// handleTopCategories returns categories ordered by spend. The n query
// parameter caps the list; the dashboard asks for 5.
func (s *Server) handleTopCategories(w http.ResponseWriter, r *http.Request) {
	n := 0
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "invalid_n", "n must be a non-negative integer")
			return
		}
		n = parsed
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"categories": s.ledger.TopCategories(n),
	})
}

func (s *Server) handleMonthlyTotals(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"months": s.ledger.MonthlyTotals(),
	})
}
