package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"expensedash/internal/core"
	"expensedash/internal/log"
)

// userIDParam returns the raw userId query parameter. Validation belongs to
// the facade; the transport only trims whitespace.
func userIDParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("userId"))
}

// respondReportError maps facade failures onto status codes: invalid input
// is the caller's fault, everything else is a server-side failure whose
// detail goes to the log rather than the wire.
func respondReportError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, core.ErrInvalidUserID) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.ErrorContext(r.Context(), "Report query failed",
		log.FieldComponent, log.ComponentHTTP,
		"operation", op,
		log.FieldError, err,
		log.FieldPath, r.URL.Path)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) queryContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)
	if rows, ok := s.expensesCache.Get(userID); ok && userID != "" {
		slog.DebugContext(r.Context(), "Expenses cache hit", log.FieldUserID, userID)
		writeJSON(w, http.StatusOK, rows)
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()
	expenses, err := s.reporter.ListExpenses(ctx, userID)
	if err != nil {
		respondReportError(w, r, "list_expenses", err)
		return
	}

	rows := toExpenseRows(expenses)
	s.expensesCache.Set(userID, rows)
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleCategoryTotals(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)
	if rows, ok := s.categoriesCache.Get(userID); ok && userID != "" {
		slog.DebugContext(r.Context(), "Category totals cache hit", log.FieldUserID, userID)
		writeJSON(w, http.StatusOK, rows)
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()
	totals, err := s.reporter.CategoryTotals(ctx, userID)
	if err != nil {
		respondReportError(w, r, "category_totals", err)
		return
	}

	rows := toCategoryRows(totals)
	s.categoriesCache.Set(userID, rows)
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleMonthlyTotals(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)
	if rows, ok := s.monthsCache.Get(userID); ok && userID != "" {
		slog.DebugContext(r.Context(), "Monthly totals cache hit", log.FieldUserID, userID)
		writeJSON(w, http.StatusOK, rows)
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()
	totals, err := s.reporter.MonthlyTotals(ctx, userID)
	if err != nil {
		respondReportError(w, r, "monthly_totals", err)
		return
	}

	rows := toMonthRows(totals)
	s.monthsCache.Set(userID, rows)
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)
	if resp, ok := s.overviewCache.Get(userID); ok && userID != "" {
		slog.DebugContext(r.Context(), "Overview cache hit", log.FieldUserID, userID)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()
	ov, err := s.reporter.Overview(ctx, userID)
	if err != nil {
		respondReportError(w, r, "overview", err)
		return
	}

	resp := OverviewResponse{
		Expenses:   toExpenseRows(ov.Expenses),
		Categories: toCategoryRows(ov.ByCategory),
		Months:     toMonthRows(ov.ByMonth),
	}
	s.overviewCache.Set(userID, resp)
	writeJSON(w, http.StatusOK, resp)
}
