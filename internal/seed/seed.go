// Package seed provides the demo dataset used to bootstrap a fresh
// database: a handful of global tags, one user, and ten tagged expenses
// spread over August 2024.
package seed

import "expensedash/internal/core"

// DemoTags are the global category labels; tags are shared across users.
var DemoTags = []string{"Utilities", "Groceries", "Travel", "Entertainment", "Healthcare"}

// Demo returns the demo dataset. It is applied as a single transaction, so
// a rerun against a database that already holds the user fails cleanly on
// the unique constraint without leaving partial rows behind.
func Demo() core.Dataset {
	user := core.NewUser{Username: "johndoe", Email: "john@example.com"}

	expenses := []struct {
		cents int64
		date  core.Date
		desc  string
	}{
		{5000, "2024-08-23", "Electricity bill"},
		{10000, "2024-08-22", "Grocery shopping"},
		{50000, "2024-08-21", "Flight tickets"},
		{3000, "2024-08-20", "Movie night"},
		{20000, "2024-08-19", "Doctor visit"},
		{7500, "2024-08-18", "Internet bill"},
		{6000, "2024-08-17", "Restaurant dinner"},
		{15000, "2024-08-16", "Hotel stay"},
		{4000, "2024-08-15", "Concert tickets"},
		{2500, "2024-08-14", "Pharmacy"},
	}

	ds := core.Dataset{
		Users: []core.NewUser{user},
		Tags:  DemoTags,
	}
	for i, e := range expenses {
		ds.Expenses = append(ds.Expenses, core.DatasetExpense{
			Username:    user.Username,
			Amount:      core.Money{Cents: e.cents},
			Date:        e.date,
			Description: e.desc,
			// Cycle through the tag list so every tag labels two expenses.
			Tags: []string{DemoTags[i%len(DemoTags)]},
		})
	}
	return ds
}
