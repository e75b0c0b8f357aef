package domain

import (
	"fmt"

	"cloud.google.com/go/civil"
)

// Window is a half-open issue-date range [From, To).
type Window struct {
	From civil.Date
	To   civil.Date
}

// Empty reports whether the window covers no days.
func (w Window) Empty() bool {
	return !w.From.Before(w.To)
}

// LastDay is the final date inside the window, as the registry's inclusive
// to_issue_date expects it.
func (w Window) LastDay() civil.Date {
	return w.To.AddDays(-1)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.From, w.To)
}
