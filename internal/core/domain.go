package core

import (
	"errors"
	"strings"
	"time"
)

type (
	// Date is a calendar day in fixed YYYY-MM-DD form. The format is chosen
	// so that string ordering equals chronological ordering and the month
	// key is a plain prefix.
	Date string

	User struct {
		ID        int64
		Username  string
		Email     string
		CreatedAt time.Time
	}

	Tag struct {
		ID   int64
		Name string
	}

	Expense struct {
		ID          int64
		UserID      int64
		Amount      Money
		Date        Date
		Description string
		CreatedAt   time.Time
	}

	// NewExpense is the write shape for an expense. Tags are names; the
	// storage layer resolves them to tag rows, creating missing ones.
	NewExpense struct {
		UserID      int64
		Amount      Money
		Date        Date
		Description string
		Tags        []string
	}

	// NewUser pairs a username with an email for seeding/admin creation.
	NewUser struct {
		Username string
		Email    string
	}

	// DatasetExpense is an expense inside a Dataset. It references its owner
	// by username because user ids do not exist until the dataset is applied.
	DatasetExpense struct {
		Username    string
		Amount      Money
		Date        Date
		Description string
		Tags        []string
	}

	// Dataset is an ordered unit of work: everything in it is inserted in a
	// single transaction, committed or rolled back together.
	Dataset struct {
		Users    []NewUser
		Tags     []string
		Expenses []DatasetExpense
	}
)

var (
	ErrInvalidUserID = errors.New("invalid user id")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyUsername = errors.New("empty username")
	ErrEmptyEmail    = errors.New("empty email")
	ErrEmptyTagName  = errors.New("empty tag name")
)

// ParseDate validates s against the fixed YYYY-MM-DD layout.
func ParseDate(s string) (Date, error) {
	d := Date(strings.TrimSpace(s))
	if err := d.Validate(); err != nil {
		return "", err
	}
	return d, nil
}

// NewDate builds a Date from numeric parts.
func NewDate(year, month, day int) Date {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return Date(t.Format("2006-01-02"))
}

func (d Date) Validate() error {
	if len(d) != 10 {
		return ErrInvalidDate
	}
	t, err := time.Parse("2006-01-02", string(d))
	if err != nil {
		return ErrInvalidDate
	}
	// time.Parse tolerates some sloppy input; require an exact round trip.
	if t.Format("2006-01-02") != string(d) {
		return ErrInvalidDate
	}
	return nil
}

// Month returns the YYYY-MM prefix used as the monthly grouping key.
func (d Date) Month() string {
	if len(d) < 7 {
		return string(d)
	}
	return string(d[:7])
}

func (u NewUser) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return ErrEmptyUsername
	}
	if strings.TrimSpace(u.Email) == "" || !strings.Contains(u.Email, "@") {
		return ErrEmptyEmail
	}
	return nil
}

func (e NewExpense) Validate() error {
	if e.UserID <= 0 {
		return ErrInvalidUserID
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	// Zero and negative amounts are legal expense values (refunds,
	// corrections), so there is no amount check here.
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	for _, name := range e.Tags {
		if strings.TrimSpace(name) == "" {
			return ErrEmptyTagName
		}
	}
	return nil
}
