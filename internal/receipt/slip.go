package receipt

import (
	"fmt"
	"strings"

	"atm-client/internal/domain"
)

const slipWidth = 36

// Render formats the paper slip shown after a settled transaction.
func Render(tx domain.Transaction, r domain.Receipt) string {
	var b strings.Builder
	rule := strings.Repeat("-", slipWidth)

	fmt.Fprintln(&b, center("ATM RECEIPT"))
	fmt.Fprintln(&b, rule)
	line(&b, "Receipt No", r.ReceiptNumber)
	when := r.CreatedAt
	if when.IsZero() {
		when = tx.CreatedAt
	}
	if !when.IsZero() {
		line(&b, "Date", when.Format("02 Jan 2006 15:04"))
	}
	line(&b, "Type", strings.ToUpper(tx.Kind.String()))
	line(&b, "Amount", tx.Amount.String())
	line(&b, "Balance", tx.BalanceAfter.String())
	if tx.Description != "" {
		line(&b, "Details", tx.Description)
	}
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, center("Thank you"))
	return b.String()
}

func line(b *strings.Builder, label, value string) {
	pad := slipWidth - len(label) - len(value)
	if pad < 1 {
		pad = 1
	}
	fmt.Fprintf(b, "%s%s%s\n", label, strings.Repeat(" ", pad), value)
}

func center(s string) string {
	if len(s) >= slipWidth {
		return s
	}
	return strings.Repeat(" ", (slipWidth-len(s))/2) + s
}
