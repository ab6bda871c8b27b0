// Package report is the reporting facade: the single contract the transport
// layer depends on. It validates the caller-supplied user identifier and
// delegates to the aggregation queries, keeping HTTP and serialization
// concerns out of the data path.
package report

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"expensedash/internal/core"

	"golang.org/x/sync/errgroup"
)

// Store is the aggregation surface the facade needs. *storage.SQLiteRepository
// satisfies it.
type Store interface {
	ListExpenses(ctx context.Context, userID int64) ([]core.Expense, error)
	CategoryTotals(ctx context.Context, userID int64) ([]core.CategoryTotal, error)
	MonthlyTotals(ctx context.Context, userID int64) ([]core.MonthlyTotal, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// parseUserID rejects a missing or non-numeric identifier before any query
// runs, so a malformed request can never masquerade as an empty result.
func parseUserID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: missing", core.ErrInvalidUserID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not numeric", core.ErrInvalidUserID, raw)
	}
	if id < 0 {
		return 0, fmt.Errorf("%w: %q is negative", core.ErrInvalidUserID, raw)
	}
	return id, nil
}

// ListExpenses returns every expense of the identified user, newest first.
// An unknown user yields an empty result, never an error.
func (s *Service) ListExpenses(ctx context.Context, rawUserID string) ([]core.Expense, error) {
	userID, err := parseUserID(rawUserID)
	if err != nil {
		return nil, err
	}
	expenses, err := s.store.ListExpenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

// CategoryTotals returns the per-tag sums for the identified user.
func (s *Service) CategoryTotals(ctx context.Context, rawUserID string) ([]core.CategoryTotal, error) {
	userID, err := parseUserID(rawUserID)
	if err != nil {
		return nil, err
	}
	totals, err := s.store.CategoryTotals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	return totals, nil
}

// MonthlyTotals returns the per-month sums for the identified user.
func (s *Service) MonthlyTotals(ctx context.Context, rawUserID string) ([]core.MonthlyTotal, error) {
	userID, err := parseUserID(rawUserID)
	if err != nil {
		return nil, err
	}
	totals, err := s.store.MonthlyTotals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}
	return totals, nil
}

// Overview runs all three reports for one user. The queries are read-only
// and independent, so they run concurrently; each sees its own committed
// snapshot and no cross-query atomicity is promised.
func (s *Service) Overview(ctx context.Context, rawUserID string) (core.Overview, error) {
	userID, err := parseUserID(rawUserID)
	if err != nil {
		return core.Overview{}, err
	}

	var ov core.Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ov.Expenses, err = s.store.ListExpenses(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		ov.ByCategory, err = s.store.CategoryTotals(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		ov.ByMonth, err = s.store.MonthlyTotals(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Overview{}, fmt.Errorf("overview: %w", err)
	}
	return ov, nil
}
