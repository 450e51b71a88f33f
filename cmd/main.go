package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"atm-client/internal/atm"
	"atm-client/internal/client"
	"atm-client/internal/config"
	"atm-client/internal/receipt"
	"atm-client/internal/session"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
)

type app struct {
	cfg      *config.Config
	sess     *atm.Session
	orch     *atm.Orchestrator
	receipts *receipt.Archive
	log      *log.Logger
}

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "atm-client"})

	// Load environment variables
	if err := config.LoadDotEnv(); err != nil {
		logger.Warn("could not load .env file", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}
	logger.SetLevel(cfg.LogLevel)
	component := func(prefix string) *log.Logger {
		return log.NewWithOptions(os.Stderr, log.Options{Prefix: prefix, Level: cfg.LogLevel})
	}

	persister, err := session.NewFileStore(cfg.SessionFile)
	if err != nil {
		logger.Fatal("failed to open session file", "err", err)
	}
	store, err := session.Open(persister, component("session"))
	if err != nil {
		logger.Warn("stored session unreadable, starting signed out", "err", err)
		if err := persister.Save(session.Credentials{}); err != nil {
			logger.Fatal("failed to reset session file", "err", err)
		}
		store, err = session.Open(persister, component("session"))
		if err != nil {
			logger.Fatal("failed to create session", "err", err)
		}
	}

	api, err := client.NewClient(cfg.APIURL, store, client.WithTimeout(cfg.Timeout), client.WithLogger(component("gateway")))
	if err != nil {
		logger.Fatal("failed to create API client", "err", err)
	}

	archive, err := receipt.NewArchive(cfg.ReceiptDir, component("receipts"))
	if err != nil {
		logger.Fatal("failed to open receipt archive", "err", err)
	}

	sess := atm.NewSession(api, atm.NewAccountState(), component("session"))
	orch := sess.Orchestrator(atm.WithPolicy(cfg.Policy), atm.WithOrchestratorLogger(component("atm")))
	orch.Sink = archive
	orch.OnPhase = func(a *atm.Attempt) {
		if a.Phase == atm.Submitting {
			fmt.Printf("Processing %s of %s...\n", a.Kind, a.Amount)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{cfg: cfg, sess: sess, orch: orch, receipts: archive, log: logger}
	if err := a.run(ctx); err != nil && !errors.Is(err, huh.ErrUserAborted) {
		logger.Fatal("atm client stopped", "err", err)
	}
	fmt.Println("Goodbye.")
}

func (a *app) run(ctx context.Context) error {
	fmt.Printf("Connecting to %s\n", a.cfg.APIURL)
	if ok, err := a.sess.Resume(ctx); ok {
		fmt.Println("Welcome back.")
	} else if err != nil {
		a.log.Debug("previous session not resumed", "err", err)
	}

	for {
		if !a.sess.Authenticated() {
			quit, err := a.loginScreen(ctx)
			if err != nil || quit {
				return err
			}
			continue
		}
		done, err := a.menu(ctx)
		if err != nil || done {
			return err
		}
	}
}

// report prints err for the customer. It returns true when the session is
// gone and the customer has to log in again.
func (a *app) report(err error) bool {
	if err == nil {
		return false
	}
	var ve *atm.ValidationError
	var apiErr *client.APIError
	var netErr *client.NetworkError
	switch {
	case errors.Is(err, client.ErrUnauthenticated):
		a.sess.Observe(err)
		a.receipts.Forget()
		fmt.Println("Your session has expired. Please log in again.")
		return true
	case errors.As(err, &ve):
		fmt.Println("Check the amount:", ve.Error())
	case errors.As(err, &apiErr):
		fmt.Println("The bank declined the request:", apiErr.Message)
	case errors.As(err, &netErr):
		fmt.Println("The bank could not be reached. Nothing was charged locally; try again when ready.")
		a.log.Debug("network failure", "err", netErr)
	default:
		fmt.Println("Error:", err)
	}
	return false
}
