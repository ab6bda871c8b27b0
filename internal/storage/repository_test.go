package storage

import (
	"context"
	"path/filepath"
	"testing"

	"expensedash/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RepositoryTestSuite struct {
	suite.Suite
	repo *SQLiteRepository
	ctx  context.Context
}

func (s *RepositoryTestSuite) SetupTest() {
	repo, err := NewSQLiteRepository(filepath.Join(s.T().TempDir(), "expensedash.db"))
	require.NoError(s.T(), err, "failed to create test database")
	s.repo = repo
	s.ctx = context.Background()
}

func (s *RepositoryTestSuite) TearDownTest() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}

// seedScenario loads the reference scenario: one user with three expenses in
// August 2024, one untagged, one double-tagged.
func (s *RepositoryTestSuite) seedScenario() core.User {
	u, err := s.repo.CreateUser(s.ctx, core.NewUser{Username: "johndoe", Email: "john@example.com"})
	require.NoError(s.T(), err)

	expenses := []core.NewExpense{
		{UserID: u.ID, Amount: core.Money{Cents: 1000}, Date: "2024-08-01", Description: "Groceries run", Tags: []string{"Groceries"}},
		{UserID: u.ID, Amount: core.Money{Cents: 2000}, Date: "2024-08-02", Description: "Dinner out", Tags: []string{"Groceries", "Dining"}},
		{UserID: u.ID, Amount: core.Money{Cents: 500}, Date: "2024-08-15", Description: "Snack"},
	}
	for _, ne := range expenses {
		_, err := s.repo.CreateExpense(s.ctx, ne)
		require.NoError(s.T(), err, "failed to create expense: %s", ne.Description)
	}
	return u
}

func (s *RepositoryTestSuite) TestMigrationsAreIdempotent() {
	// A second run against the already-initialized store must be a no-op.
	dbPath := filepath.Join(s.T().TempDir(), "twice.db")
	repo, err := NewSQLiteRepository(dbPath)
	require.NoError(s.T(), err)
	repo.Close()

	repo, err = NewSQLiteRepository(dbPath)
	require.NoError(s.T(), err)
	repo.Close()
}

func (s *RepositoryTestSuite) TestUniquenessViolationsSurfaceAsErrors() {
	_, err := s.repo.CreateUser(s.ctx, core.NewUser{Username: "johndoe", Email: "john@example.com"})
	require.NoError(s.T(), err)

	_, err = s.repo.CreateUser(s.ctx, core.NewUser{Username: "johndoe", Email: "other@example.com"})
	assert.Error(s.T(), err, "duplicate username must fail")

	_, err = s.repo.CreateUser(s.ctx, core.NewUser{Username: "other", Email: "john@example.com"})
	assert.Error(s.T(), err, "duplicate email must fail")

	_, err = s.repo.CreateTag(s.ctx, "Groceries")
	require.NoError(s.T(), err)
	_, err = s.repo.CreateTag(s.ctx, "Groceries")
	assert.Error(s.T(), err, "duplicate tag name must fail")
}

func (s *RepositoryTestSuite) TestExpenseRequiresLiveUser() {
	_, err := s.repo.CreateExpense(s.ctx, core.NewExpense{
		UserID: 999, Amount: core.Money{Cents: 100}, Date: "2024-08-01",
	})
	assert.Error(s.T(), err, "expense referencing no user must fail")
}

func (s *RepositoryTestSuite) TestListExpensesScenario() {
	u := s.seedScenario()

	expenses, err := s.repo.ListExpenses(s.ctx, u.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), expenses, 3)

	// Reverse-chronological order.
	assert.Equal(s.T(), core.Date("2024-08-15"), expenses[0].Date)
	assert.Equal(s.T(), core.Date("2024-08-02"), expenses[1].Date)
	assert.Equal(s.T(), core.Date("2024-08-01"), expenses[2].Date)

	var total core.Money
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	assert.Equal(s.T(), int64(3500), total.Cents, "grand total should be 35.00")
}

func (s *RepositoryTestSuite) TestCategoryTotalsScenario() {
	u := s.seedScenario()

	totals, err := s.repo.CategoryTotals(s.ctx, u.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), totals, 2)

	// Ordered by tag name: Dining before Groceries.
	assert.Equal(s.T(), "Dining", totals[0].Category)
	assert.Equal(s.T(), int64(2000), totals[0].Total.Cents)
	assert.Equal(s.T(), "Groceries", totals[1].Category)
	assert.Equal(s.T(), int64(3000), totals[1].Total.Cents)

	// The double-tagged expense counts in full toward both tags, and the
	// untagged one toward neither, so the category sum (50.00) differs
	// from the true grand total (35.00) in both directions.
	var sum int64
	for _, ct := range totals {
		sum += ct.Total.Cents
	}
	assert.Equal(s.T(), int64(5000), sum)
}

func (s *RepositoryTestSuite) TestMonthlyTotalsScenario() {
	u := s.seedScenario()

	totals, err := s.repo.MonthlyTotals(s.ctx, u.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), totals, 1)
	assert.Equal(s.T(), "2024-08", totals[0].Month)
	assert.Equal(s.T(), int64(3500), totals[0].Total.Cents)
}

func (s *RepositoryTestSuite) TestMonthlyTotalsGroupsByPrefix() {
	u := s.seedScenario()

	_, err := s.repo.CreateExpense(s.ctx, core.NewExpense{
		UserID: u.ID, Amount: core.Money{Cents: 9900}, Date: "2024-09-01", Description: "Rent share",
	})
	require.NoError(s.T(), err)

	totals, err := s.repo.MonthlyTotals(s.ctx, u.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), totals, 2)
	assert.Equal(s.T(), "2024-08", totals[0].Month)
	assert.Equal(s.T(), int64(3500), totals[0].Total.Cents)
	assert.Equal(s.T(), "2024-09", totals[1].Month)
	assert.Equal(s.T(), int64(9900), totals[1].Total.Cents)
}

func (s *RepositoryTestSuite) TestNonexistentUserYieldsEmptyResults() {
	expenses, err := s.repo.ListExpenses(s.ctx, 999)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), expenses)

	categories, err := s.repo.CategoryTotals(s.ctx, 999)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), categories)

	months, err := s.repo.MonthlyTotals(s.ctx, 999)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), months)
}

func (s *RepositoryTestSuite) TestNegativeAndZeroAmountsAreSummedAsGiven() {
	u, err := s.repo.CreateUser(s.ctx, core.NewUser{Username: "refunder", Email: "r@example.com"})
	require.NoError(s.T(), err)

	for _, cents := range []int64{1000, -300, 0} {
		_, err := s.repo.CreateExpense(s.ctx, core.NewExpense{
			UserID: u.ID, Amount: core.Money{Cents: cents}, Date: "2024-08-10", Tags: []string{"Mixed"},
		})
		require.NoError(s.T(), err)
	}

	totals, err := s.repo.CategoryTotals(s.ctx, u.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), totals, 1)
	assert.Equal(s.T(), int64(700), totals[0].Total.Cents)
}

func (s *RepositoryTestSuite) TestDeleteUserCascades() {
	u := s.seedScenario()
	other, err := s.repo.CreateUser(s.ctx, core.NewUser{Username: "janedoe", Email: "jane@example.com"})
	require.NoError(s.T(), err)
	_, err = s.repo.CreateExpense(s.ctx, core.NewExpense{
		UserID: other.ID, Amount: core.Money{Cents: 4200}, Date: "2024-08-03", Tags: []string{"Groceries"},
	})
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.repo.DeleteUser(s.ctx, u.ID))

	expenses, err := s.repo.ListExpenses(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), expenses, "deleted user's expenses must cascade away")

	categories, err := s.repo.CategoryTotals(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), categories, "deleted user's tag links must cascade away")

	// Unrelated data is untouched: the shared tag still exists and the
	// other user's totals are intact.
	_, err = s.repo.GetTagByName(s.ctx, "Groceries")
	assert.NoError(s.T(), err)

	otherTotals, err := s.repo.CategoryTotals(s.ctx, other.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), otherTotals, 1)
	assert.Equal(s.T(), int64(4200), otherTotals[0].Total.Cents)
}

func (s *RepositoryTestSuite) TestDeleteTagKeepsExpenses() {
	u := s.seedScenario()

	tag, err := s.repo.GetTagByName(s.ctx, "Groceries")
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.repo.DeleteTag(s.ctx, tag.ID))

	// Links are gone, so only Dining remains in the category view.
	categories, err := s.repo.CategoryTotals(s.ctx, u.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), categories, 1)
	assert.Equal(s.T(), "Dining", categories[0].Category)

	// The expenses themselves still exist.
	expenses, err := s.repo.ListExpenses(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Len(s.T(), expenses, 3)
}

func (s *RepositoryTestSuite) TestDeleteExpenseCascadesLinks() {
	u := s.seedScenario()

	expenses, err := s.repo.ListExpenses(s.ctx, u.ID)
	require.NoError(s.T(), err)
	// Delete the double-tagged 20.00 expense (2024-08-02).
	require.NoError(s.T(), s.repo.DeleteExpense(s.ctx, expenses[1].ID))

	categories, err := s.repo.CategoryTotals(s.ctx, u.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), categories, 1)
	assert.Equal(s.T(), "Groceries", categories[0].Category)
	assert.Equal(s.T(), int64(1000), categories[0].Total.Cents)
}

func (s *RepositoryTestSuite) TestImportDatasetIsAtomic() {
	ds := core.Dataset{
		Users: []core.NewUser{{Username: "johndoe", Email: "john@example.com"}},
		Tags:  []string{"Utilities", "Groceries"},
		Expenses: []core.DatasetExpense{
			{Username: "johndoe", Amount: core.Money{Cents: 5000}, Date: "2024-08-23", Description: "Electricity bill", Tags: []string{"Utilities"}},
			{Username: "nobody", Amount: core.Money{Cents: 100}, Date: "2024-08-24"},
		},
	}
	err := s.repo.ImportDataset(s.ctx, ds)
	require.Error(s.T(), err, "unknown dataset user must fail the import")

	// Nothing from the failed import may be visible.
	_, err = s.repo.GetTagByName(s.ctx, "Utilities")
	assert.Error(s.T(), err, "rolled-back tag must not exist")
	_, err = s.repo.GetUser(s.ctx, 1)
	assert.Error(s.T(), err, "rolled-back user must not exist")

	// The same dataset without the stray expense imports cleanly.
	ds.Expenses = ds.Expenses[:1]
	require.NoError(s.T(), s.repo.ImportDataset(s.ctx, ds))

	u, err := s.repo.GetUser(s.ctx, 1)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "johndoe", u.Username)

	expenses, err := s.repo.ListExpenses(s.ctx, u.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), expenses, 1)
	assert.Equal(s.T(), int64(5000), expenses[0].Amount.Cents)
}

func (s *RepositoryTestSuite) TestCreateExpenseReusesExistingTags() {
	u, err := s.repo.CreateUser(s.ctx, core.NewUser{Username: "johndoe", Email: "john@example.com"})
	require.NoError(s.T(), err)

	pre, err := s.repo.CreateTag(s.ctx, "Travel")
	require.NoError(s.T(), err)

	_, err = s.repo.CreateExpense(s.ctx, core.NewExpense{
		UserID: u.ID, Amount: core.Money{Cents: 50000}, Date: "2024-08-21",
		Description: "Flight tickets", Tags: []string{"Travel"},
	})
	require.NoError(s.T(), err)

	got, err := s.repo.GetTagByName(s.ctx, "Travel")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), pre.ID, got.ID, "existing tag must be reused, not duplicated")
}
