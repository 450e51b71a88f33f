// Package report renders transaction history and the admin listings as
// plain text tables.
package report

import (
	"io"
	"strconv"

	"atm-client/internal/domain"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

const dateLayout = "2006-01-02 15:04"

func newTable(w io.Writer, header []string, align []int) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	if align != nil {
		table.SetColumnAlignment(align)
	}
	return table
}

// History renders a customer's recent transactions, newest first as given.
func History(w io.Writer, txs []domain.Transaction) {
	table := newTable(w, []string{"Date", "Type", "Amount", "Balance"}, []int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})
	for _, tx := range txs {
		table.Append([]string{date(tx.CreatedAt), tx.Kind.String(), signed(tx), tx.BalanceAfter.String()})
	}
	if len(txs) == 0 {
		table.SetFooter([]string{"", "no transactions", "", ""})
	}
	table.Render()
}

func Transactions(w io.Writer, txs []domain.Transaction) {
	table := newTable(w, []string{"ID", "Account", "Type", "Amount", "Balance", "Date"}, []int{
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT,
	})
	for _, tx := range txs {
		table.Append([]string{
			id(tx.ID), id(tx.AccountID), tx.Kind.String(),
			tx.Amount.String(), tx.BalanceAfter.String(), date(tx.CreatedAt),
		})
	}
	table.Render()
}

func Users(w io.Writer, users []domain.User) {
	table := newTable(w, []string{"ID", "Name", "Email", "Phone", "Role", "Joined"}, nil)
	for _, u := range users {
		table.Append([]string{id(u.ID), u.Name, u.Email, u.Phone, u.Role, humanize.Time(u.CreatedAt.Time)})
	}
	table.Render()
}

func Accounts(w io.Writer, accounts []domain.Account) {
	table := newTable(w, []string{"ID", "User", "Account", "Balance", "Daily Limit", "Withdrawn Today"}, []int{
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})
	var total domain.Money
	for _, a := range accounts {
		total += a.Balance
		table.Append([]string{
			id(a.ID), id(a.UserID), a.AccountNumber,
			a.Balance.String(), a.DailyLimit.String(), a.DailyWithdrawn.String(),
		})
	}
	table.SetFooter([]string{"", "", "Total", total.String(), "", ""})
	table.Render()
}

func Receipts(w io.Writer, receipts []domain.Receipt) {
	table := newTable(w, []string{"ID", "Transaction", "Receipt No", "Date"}, nil)
	for _, r := range receipts {
		table.Append([]string{id(r.ID), id(r.TransactionID), r.ReceiptNumber, date(r.CreatedAt)})
	}
	table.Render()
}

func signed(tx domain.Transaction) string {
	if tx.Kind == domain.Withdrawal {
		return "-" + tx.Amount.String()
	}
	return "+" + tx.Amount.String()
}

func date(t domain.Timestamp) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

func id(n int64) string { return strconv.FormatInt(n, 10) }
