// Package format holds pure presentation helpers shared by the invoice API
// responses and the PDF renderer.
package format

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Money renders a decimal amount as a dollar string with two places.
func Money(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}

// Date renders a timestamp the way invoices show dates.
func Date(t time.Time) string {
	return t.Format("Jan 2, 2006")
}

// Period renders a billing window. End is exclusive, so the shown range ends
// the day before.
func Period(start, end time.Time) string {
	last := end.AddDate(0, 0, -1)
	return fmt.Sprintf("%s - %s", Date(start), Date(last))
}
