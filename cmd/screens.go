package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"atm-client/internal/atm"
	"atm-client/internal/client"
	"atm-client/internal/domain"
	"atm-client/internal/receipt"
	"atm-client/internal/report"

	"github.com/charmbracelet/huh"
)

const (
	actionBalance   = "balance"
	actionWithdraw  = "withdraw"
	actionDeposit   = "deposit"
	actionHistory   = "history"
	actionReceipt   = "receipt"
	actionChangePIN = "pin"
	actionUsers     = "users"
	actionAccounts  = "accounts"
	actionAllTx     = "transactions"
	actionReceipts  = "receipts"
	actionRegister  = "register"
	actionLogout    = "logout"
	actionQuit      = "quit"
	otherAmount     = "other"
)

func (a *app) loginScreen(ctx context.Context) (quit bool, err error) {
	var number, pin string
	form := huh.NewForm(huh.NewGroup(
		huh.NewNote().Title("ATM").Description("Insert your card: enter your account number and PIN."),
		huh.NewInput().Title("Account number").Value(&number).Validate(func(s string) error {
			return atm.ValidateLogin(s, "0000")
		}),
		huh.NewInput().Title("PIN").EchoMode(huh.EchoModePassword).Value(&pin).Validate(func(s string) error {
			return atm.ValidateLogin("0000000000", s)
		}),
	))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return true, nil
		}
		return false, err
	}

	if err := a.sess.Login(ctx, number, pin); err != nil {
		if errors.Is(err, atm.ErrLoginRejected) {
			fmt.Println(err)
			return false, nil
		}
		a.report(err)
		return false, nil
	}
	u, _ := a.sess.State().User()
	fmt.Printf("Welcome, %s.\n", u.Name)
	return false, nil
}

func (a *app) menu(ctx context.Context) (done bool, err error) {
	options := []huh.Option[string]{
		huh.NewOption("Balance", actionBalance),
		huh.NewOption("Withdraw cash", actionWithdraw),
		huh.NewOption("Deposit cash", actionDeposit),
		huh.NewOption("Recent transactions", actionHistory),
		huh.NewOption("Save last receipt", actionReceipt),
		huh.NewOption("Change PIN", actionChangePIN),
	}
	if a.sess.IsAdmin() {
		options = append(options,
			huh.NewOption("Admin: users", actionUsers),
			huh.NewOption("Admin: accounts", actionAccounts),
			huh.NewOption("Admin: transactions", actionAllTx),
			huh.NewOption("Admin: receipts", actionReceipts),
			huh.NewOption("Admin: register customer", actionRegister),
		)
	}
	options = append(options, huh.NewOption("Log out", actionLogout), huh.NewOption("Quit", actionQuit))

	var action string
	if err := huh.NewSelect[string]().Title("What would you like to do?").Options(options...).Value(&action).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return true, nil
		}
		return false, err
	}

	switch action {
	case actionBalance:
		err = a.showBalance(ctx)
	case actionWithdraw:
		err = a.transact(ctx, domain.Withdrawal)
	case actionDeposit:
		err = a.transact(ctx, domain.Deposit)
	case actionHistory:
		err = a.showHistory(ctx)
	case actionReceipt:
		err = a.saveReceipt(ctx)
	case actionChangePIN:
		err = a.changePIN(ctx)
	case actionUsers, actionAccounts, actionAllTx, actionReceipts:
		err = a.adminListing(ctx, action)
	case actionRegister:
		err = a.registerCustomer(ctx)
	case actionLogout:
		if err := a.sess.Logout(ctx); err != nil {
			fmt.Println("Logged out locally; the bank could not be told.")
		} else {
			fmt.Println("Logged out.")
		}
		a.receipts.Forget()
		return false, nil
	case actionQuit:
		return true, nil
	}
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	a.report(err)
	return false, nil
}

func (a *app) showBalance(ctx context.Context) error {
	acct, err := a.sess.SyncBalance(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Account   %s\n", acct.AccountNumber)
	fmt.Printf("Balance   %s\n", acct.Balance)
	fmt.Printf("Available to withdraw today  %s of %s\n", acct.RemainingLimit(), acct.DailyLimit)
	return nil
}

func (a *app) transact(ctx context.Context, kind domain.Kind) error {
	amount, err := a.askAmount(kind)
	if err != nil {
		return err
	}

	var ok bool
	confirm := huh.NewConfirm().
		Title(fmt.Sprintf("Confirm %s of %s?", kind, amount)).
		Affirmative("Confirm").
		Negative("Cancel").
		Value(&ok)
	if err := confirm.Run(); err != nil {
		return err
	}
	if !ok {
		fmt.Println("Cancelled.")
		return nil
	}

	attempt, err := a.orch.Submit(ctx, kind, amount)
	if err != nil {
		return err
	}
	if attempt.Transaction != nil && attempt.Receipt != nil {
		fmt.Print(receipt.Render(*attempt.Transaction, *attempt.Receipt))
	} else {
		fmt.Printf("%s of %s complete. New balance %s\n", kind, amount, attempt.NewBalance)
	}
	return nil
}

func (a *app) askAmount(kind domain.Kind) (domain.Money, error) {
	acct, _ := a.sess.State().Current()
	policy := a.orch.Policy()

	choice := otherAmount
	if kind == domain.Withdrawal {
		var options []huh.Option[string]
		for _, q := range policy.QuickAmounts(acct) {
			if q.Enabled {
				options = append(options, huh.NewOption(q.Amount.String(), strconv.FormatInt(q.Amount.Int64(), 10)))
			}
		}
		options = append(options, huh.NewOption("Other amount", otherAmount))
		if err := huh.NewSelect[string]().Title("Withdraw how much?").Options(options...).Value(&choice).Run(); err != nil {
			return 0, err
		}
	}

	raw := choice
	if choice == otherAmount {
		raw = ""
		input := huh.NewInput().
			Title(fmt.Sprintf("Amount to %s", kind)).
			Description(fmt.Sprintf("Multiples of %s", policy.Denomination)).
			Value(&raw).
			Validate(func(s string) error {
				_, err := policy.ValidateInput(kind, s, acct)
				return err
			})
		if err := input.Run(); err != nil {
			return 0, err
		}
	}
	return policy.ValidateInput(kind, raw, acct)
}

func (a *app) showHistory(ctx context.Context) error {
	txs, err := a.sess.Client().History(ctx, a.cfg.HistoryLimit)
	if err != nil {
		return err
	}
	report.History(os.Stdout, txs)
	return nil
}

func (a *app) saveReceipt(ctx context.Context) error {
	path, err := a.receipts.FetchLatest(ctx, a.sess.Client())
	if errors.Is(err, receipt.ErrNoReceipt) {
		// Nothing settled in this run; ask the bank for the newest one.
		var pdf []byte
		pdf, err = a.sess.Client().LatestReceiptPDF(ctx)
		if errors.Is(err, client.ErrNotFound) {
			fmt.Println("No receipt yet. Make a transaction first.")
			return nil
		}
		if err != nil {
			return err
		}
		path, err = a.receipts.Save(domain.Receipt{ReceiptNumber: "latest"}, pdf)
	}
	if err != nil {
		return err
	}
	fmt.Println("Receipt saved to", path)
	return nil
}

func (a *app) changePIN(ctx context.Context) error {
	var current, next, again string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Current PIN").EchoMode(huh.EchoModePassword).Value(&current),
		huh.NewInput().Title("New PIN").EchoMode(huh.EchoModePassword).Value(&next).Validate(func(s string) error {
			return atm.ValidatePINChange(current, s)
		}),
		huh.NewInput().Title("Repeat new PIN").EchoMode(huh.EchoModePassword).Value(&again).Validate(func(s string) error {
			if s != next {
				return errors.New("PINs do not match")
			}
			return nil
		}),
	))
	if err := form.Run(); err != nil {
		return err
	}
	msg, err := a.sess.ChangePIN(ctx, current, next)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func (a *app) adminListing(ctx context.Context, what string) error {
	api := a.sess.Client()
	page := client.Page{Limit: 20}
	switch what {
	case actionUsers:
		users, err := api.ListUsers(ctx, page)
		if err != nil {
			return err
		}
		report.Users(os.Stdout, users)
	case actionAccounts:
		accounts, err := api.ListAccounts(ctx, page)
		if err != nil {
			return err
		}
		report.Accounts(os.Stdout, accounts)
	case actionAllTx:
		txs, err := api.ListTransactions(ctx, page)
		if err != nil {
			return err
		}
		report.Transactions(os.Stdout, txs)
	case actionReceipts:
		receipts, err := api.ListReceipts(ctx, page)
		if err != nil {
			return err
		}
		report.Receipts(os.Stdout, receipts)
	}
	return nil
}

func (a *app) registerCustomer(ctx context.Context) error {
	var reg client.Registration
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Full name").Value(&reg.Name),
		huh.NewInput().Title("Email").Value(&reg.Email),
		huh.NewInput().Title("Phone").Value(&reg.Phone),
		huh.NewInput().Title("Account number").Value(&reg.AccountNumber),
		huh.NewInput().Title("Initial PIN").EchoMode(huh.EchoModePassword).Value(&reg.PIN),
	))
	if err := form.Run(); err != nil {
		return err
	}
	if err := atm.ValidateRegistration(reg.Name, reg.Email, reg.Phone, reg.AccountNumber, reg.PIN); err != nil {
		fmt.Println("Cannot register:", err)
		return nil
	}
	res, err := a.sess.Client().RegisterUser(ctx, reg)
	if err != nil {
		return err
	}
	if res.Account != nil {
		fmt.Printf("Registered account %s for %s.\n", res.Account.AccountNumber, reg.Name)
	}
	return nil
}
