package core

// CategoryTotal is one row of the per-tag aggregation: the summed amount of a
// user's expenses carrying the named tag. An expense with several tags counts
// in full toward each of them, so rows may overlap.
type CategoryTotal struct {
	Category string
	Total    Money
}

// MonthlyTotal is one row of the per-month aggregation, keyed by the
// YYYY-MM prefix of the expense date.
type MonthlyTotal struct {
	Month string
	Total Money
}

// Overview bundles all three report shapes for a single user, for callers
// that render the whole dashboard at once.
type Overview struct {
	Expenses   []Expense
	ByCategory []CategoryTotal
	ByMonth    []MonthlyTotal
}
