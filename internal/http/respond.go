package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"expensedash/internal/core"
)

// Row shapes returned to the dashboard. One named type per operation; the
// aggregation results never travel as loosely-typed rows.
type (
	ExpenseRow struct {
		ExpenseID   int64      `json:"expense_id"`
		UserID      int64      `json:"user_id"`
		Amount      core.Money `json:"amount"`
		Date        string     `json:"date"`
		Description string     `json:"description"`
		CreatedAt   time.Time  `json:"created_at"`
	}

	CategoryRow struct {
		Category string     `json:"category"`
		Total    core.Money `json:"total"`
	}

	MonthRow struct {
		Month string     `json:"month"`
		Total core.Money `json:"total"`
	}

	OverviewResponse struct {
		Expenses   []ExpenseRow  `json:"expenses"`
		Categories []CategoryRow `json:"categories"`
		Months     []MonthRow    `json:"months"`
	}

	errorResponse struct {
		Error string `json:"error"`
	}
)

// The converters always return non-nil slices so an empty result serializes
// as [] rather than null.
func toExpenseRows(expenses []core.Expense) []ExpenseRow {
	rows := make([]ExpenseRow, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, ExpenseRow{
			ExpenseID:   e.ID,
			UserID:      e.UserID,
			Amount:      e.Amount,
			Date:        string(e.Date),
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		})
	}
	return rows
}

func toCategoryRows(totals []core.CategoryTotal) []CategoryRow {
	rows := make([]CategoryRow, 0, len(totals))
	for _, ct := range totals {
		rows = append(rows, CategoryRow{Category: ct.Category, Total: ct.Total})
	}
	return rows
}

func toMonthRows(totals []core.MonthlyTotal) []MonthRow {
	rows := make([]MonthRow, 0, len(totals))
	for _, mt := range totals {
		rows = append(rows, MonthRow{Month: mt.Month, Total: mt.Total})
	}
	return rows
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Response encoding failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
