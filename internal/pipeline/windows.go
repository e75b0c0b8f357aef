package pipeline

import (
	"iter"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/spending-tracker/internal/domain"
)

// Windows splits [start, end) into consecutive half-open windows of the given
// number of calendar months. The last window is clipped to end. The sequence
// is empty when start is not before end or months is not positive.
func Windows(start, end civil.Date, months int) iter.Seq[domain.Window] {
	return func(yield func(domain.Window) bool) {
		if months <= 0 || !start.Before(end) {
			return
		}
		from := start
		for from.Before(end) {
			to := addMonths(from, months)
			if !to.Before(end) {
				to = end
			}
			if !yield(domain.Window{From: from, To: to}) {
				return
			}
			from = to
		}
	}
}

// addMonths follows time.AddDate normalization, so Jan 31 + 1 month is Mar 2/3.
// Windows start on the backfill date, which is the first of a month.
func addMonths(d civil.Date, months int) civil.Date {
	return civil.DateOf(d.In(time.UTC).AddDate(0, months, 0))
}
