// Package storage implements the SQLite-backed schema and aggregation
// queries. Referential integrity (cascade deletes, uniqueness) lives in the
// schema itself so callers cannot orphan rows regardless of discipline.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"expensedash/internal/core"
	"expensedash/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteRepository owns the database handle. It is constructed once by the
// composing binary and closed at shutdown; nothing else holds the connection.
type SQLiteRepository struct {
	db *sql.DB
}

// dsn builds the connection string. Foreign keys are enforced per
// connection in SQLite, so the pragma has to travel with the DSN rather
// than be issued once.
func dsn(dbPath string) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ListExpenses returns every expense owned by userID, newest date first
// (ties broken by id descending). An unknown user yields an empty slice.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT expense_id, user_id, amount_cents, date, description, created_at
		FROM expenses
		WHERE user_id = ?
		ORDER BY date DESC, expense_id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses for user %d: %w", userID, err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var e core.Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount.Cents, &e.Date, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expense row: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expense rows: %w", err)
	}
	return expenses, nil
}

// CategoryTotals sums userID's expenses per tag name. Untagged expenses
// appear in no row, and an expense carrying several tags contributes its
// full amount to each of them, so the rows need not sum to the user's
// overall total.
func (r *SQLiteRepository) CategoryTotals(ctx context.Context, userID int64) ([]core.CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.name AS category, SUM(e.amount_cents) AS total_cents
		FROM expenses e
		JOIN expense_tags et ON e.expense_id = et.expense_id
		JOIN tags t ON et.tag_id = t.tag_id
		WHERE e.user_id = ?
		GROUP BY t.name
		ORDER BY t.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("category totals for user %d: %w", userID, err)
	}
	defer rows.Close()

	var totals []core.CategoryTotal
	for rows.Next() {
		var ct core.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan category total row: %w", err)
		}
		totals = append(totals, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category total rows: %w", err)
	}
	return totals, nil
}

// MonthlyTotals sums userID's expenses per calendar month. The grouping
// key is the first seven characters of the stored date, which is exact
// because dates are validated into fixed YYYY-MM-DD form at write time.
func (r *SQLiteRepository) MonthlyTotals(ctx context.Context, userID int64) ([]core.MonthlyTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT substr(date, 1, 7) AS month, SUM(amount_cents) AS total_cents
		FROM expenses
		WHERE user_id = ?
		GROUP BY month
		ORDER BY month`, userID)
	if err != nil {
		return nil, fmt.Errorf("monthly totals for user %d: %w", userID, err)
	}
	defer rows.Close()

	var totals []core.MonthlyTotal
	for rows.Next() {
		var mt core.MonthlyTotal
		if err := rows.Scan(&mt.Month, &mt.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan monthly total row: %w", err)
		}
		totals = append(totals, mt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monthly total rows: %w", err)
	}
	return totals, nil
}

// CreateUser inserts a user; uniqueness of username and email is enforced
// by the schema and surfaces as a write failure.
func (r *SQLiteRepository) CreateUser(ctx context.Context, nu core.NewUser) (core.User, error) {
	if err := nu.Validate(); err != nil {
		return core.User{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, email) VALUES (?, ?)`, nu.Username, nu.Email)
	if err != nil {
		return core.User{}, fmt.Errorf("create user %q: %w", nu.Username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("user insert id: %w", err)
	}

	slog.InfoContext(ctx, "User created", log.FieldComponent, log.ComponentStorage, log.FieldUserID, id, "username", nu.Username)
	return r.GetUser(ctx, id)
}

// GetUser retrieves a single user by id.
func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, username, email, created_at FROM users WHERE user_id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt)
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

// DeleteUser removes the user; their expenses and those expenses' tag links
// go with them via the schema's cascades.
func (r *SQLiteRepository) DeleteUser(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	slog.InfoContext(ctx, "User deleted", log.FieldComponent, log.ComponentStorage, log.FieldUserID, id)
	return nil
}

// CreateTag inserts a global tag by name.
func (r *SQLiteRepository) CreateTag(ctx context.Context, name string) (core.Tag, error) {
	if name == "" {
		return core.Tag{}, core.ErrEmptyTagName
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?)`, name)
	if err != nil {
		return core.Tag{}, fmt.Errorf("create tag %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Tag{}, fmt.Errorf("tag insert id: %w", err)
	}
	return core.Tag{ID: id, Name: name}, nil
}

// GetTagByName looks a tag up by its unique name.
func (r *SQLiteRepository) GetTagByName(ctx context.Context, name string) (core.Tag, error) {
	var t core.Tag
	err := r.db.QueryRowContext(ctx,
		`SELECT tag_id, name FROM tags WHERE name = ?`, name).Scan(&t.ID, &t.Name)
	if err != nil {
		return core.Tag{}, fmt.Errorf("get tag %q: %w", name, err)
	}
	return t, nil
}

// DeleteTag removes the tag and its expense links only; tagged expenses
// themselves are untouched.
func (r *SQLiteRepository) DeleteTag(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tags WHERE tag_id = ?`, id); err != nil {
		return fmt.Errorf("delete tag %d: %w", id, err)
	}
	slog.InfoContext(ctx, "Tag deleted", log.FieldComponent, log.ComponentStorage, log.FieldTagID, id)
	return nil
}

// CreateExpense inserts an expense and its tag links as one transaction.
// Tag names are resolved against existing tags first; missing ones are
// created inside the same transaction.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, ne core.NewExpense) (core.Expense, error) {
	if err := ne.Validate(); err != nil {
		return core.Expense{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin expense transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := insertExpenseTx(ctx, tx, ne)
	if err != nil {
		return core.Expense{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Expense{}, fmt.Errorf("commit expense transaction: %w", err)
	}

	slog.InfoContext(ctx, "Expense created",
		log.FieldComponent, log.ComponentStorage,
		log.FieldExpenseID, id,
		log.FieldUserID, ne.UserID,
		log.FieldAmount, ne.Amount.Cents,
		"date", string(ne.Date),
		"tags", len(ne.Tags))

	var e core.Expense
	err = r.db.QueryRowContext(ctx, `
		SELECT expense_id, user_id, amount_cents, date, description, created_at
		FROM expenses WHERE expense_id = ?`, id).
		Scan(&e.ID, &e.UserID, &e.Amount.Cents, &e.Date, &e.Description, &e.CreatedAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("read back expense %d: %w", id, err)
	}
	return e, nil
}

// DeleteExpense removes an expense; its tag links cascade away.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE expense_id = ?`, id); err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	slog.InfoContext(ctx, "Expense deleted", log.FieldComponent, log.ComponentStorage, log.FieldExpenseID, id)
	return nil
}

// ImportDataset applies a whole dataset as a single atomic unit of work:
// users, then tags, then expenses with their links. Any failure rolls the
// entire import back.
func (r *SQLiteRepository) ImportDataset(ctx context.Context, ds core.Dataset) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import transaction: %w", err)
	}
	defer tx.Rollback()

	userIDs := make(map[string]int64, len(ds.Users))
	for _, nu := range ds.Users {
		if err := nu.Validate(); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (username, email) VALUES (?, ?)`, nu.Username, nu.Email)
		if err != nil {
			return fmt.Errorf("import user %q: %w", nu.Username, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("import user id: %w", err)
		}
		userIDs[nu.Username] = id
	}

	for _, name := range ds.Tags {
		if _, err := ensureTagTx(ctx, tx, name); err != nil {
			return err
		}
	}

	for _, de := range ds.Expenses {
		userID, ok := userIDs[de.Username]
		if !ok {
			// Allow referencing users that predate this dataset.
			err := tx.QueryRowContext(ctx,
				`SELECT user_id FROM users WHERE username = ?`, de.Username).Scan(&userID)
			if err != nil {
				return fmt.Errorf("resolve dataset user %q: %w", de.Username, err)
			}
			userIDs[de.Username] = userID
		}
		ne := core.NewExpense{
			UserID:      userID,
			Amount:      de.Amount,
			Date:        de.Date,
			Description: de.Description,
			Tags:        de.Tags,
		}
		if err := ne.Validate(); err != nil {
			return err
		}
		if _, err := insertExpenseTx(ctx, tx, ne); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import transaction: %w", err)
	}

	slog.InfoContext(ctx, "Dataset imported",
		log.FieldComponent, log.ComponentStorage,
		"users", len(ds.Users),
		"tags", len(ds.Tags),
		"expenses", len(ds.Expenses))
	return nil
}

func insertExpenseTx(ctx context.Context, tx *sql.Tx, ne core.NewExpense) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO expenses (user_id, amount_cents, date, description)
		VALUES (?, ?, ?, ?)`,
		ne.UserID, ne.Amount.Cents, string(ne.Date), ne.Description)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("expense insert id: %w", err)
	}

	for _, name := range ne.Tags {
		tagID, err := ensureTagTx(ctx, tx, name)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO expense_tags (expense_id, tag_id) VALUES (?, ?)`, id, tagID); err != nil {
			return 0, fmt.Errorf("link expense %d to tag %q: %w", id, name, err)
		}
	}
	return id, nil
}

func ensureTagTx(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	if name == "" {
		return 0, core.ErrEmptyTagName
	}
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT tag_id FROM tags WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("look up tag %q: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("insert tag %q: %w", name, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("tag insert id: %w", err)
	}
	return id, nil
}
