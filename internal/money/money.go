// Package money formats whole Chilean peso amounts for display.
package money

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.MustParse("es-CL"))

// Format renders an amount with the es-CL digit grouping, e.g. $1.299.990
func Format(amount int64) string {
	if amount < 0 {
		return "-$" + printer.Sprintf("%d", -amount)
	}
	return "$" + printer.Sprintf("%d", amount)
}
