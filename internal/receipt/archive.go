// Package receipt keeps the receipts of settled transactions: the last one
// in memory for the "download receipt" action and the downloaded documents
// on disk.
package receipt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"atm-client/internal/domain"

	"github.com/charmbracelet/log"
)

var (
	ErrNoReceipt   = errors.New("no receipt available")
	ErrNotDocument = errors.New("downloaded receipt is not a PDF document")
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Source downloads rendered receipt documents.
type Source interface {
	ReceiptPDF(ctx context.Context, receiptID int64) ([]byte, error)
}

type Archive struct {
	dir string
	log *log.Logger

	mu       sync.Mutex
	latestTx *domain.Transaction
	latest   *domain.Receipt
}

// DefaultDir returns ~/.config/atm-client/receipts.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "atm-client", "receipts"), nil
}

func NewArchive(dir string, logger *log.Logger) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create receipt directory: %w", err)
	}
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "receipts"})
	}
	return &Archive{dir: dir, log: logger}, nil
}

func (a *Archive) Dir() string { return a.dir }

// Remember records the receipt of a settled transaction.
func (a *Archive) Remember(tx domain.Transaction, r domain.Receipt) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latestTx = &tx
	a.latest = &r
}

// Latest returns the most recently settled transaction and its receipt.
func (a *Archive) Latest() (domain.Transaction, domain.Receipt, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.latest == nil {
		return domain.Transaction{}, domain.Receipt{}, false
	}
	return *a.latestTx, *a.latest, true
}

func (a *Archive) Forget() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latestTx = nil
	a.latest = nil
}

// Save writes pdf as <dir>/<receipt number>.pdf. The file is complete or
// absent, never partial.
func (a *Archive) Save(r domain.Receipt, pdf []byte) (string, error) {
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		return "", ErrNotDocument
	}
	name := fileName(r)
	path := filepath.Join(a.dir, name)

	tmp, err := os.CreateTemp(a.dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create receipt file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pdf); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write receipt: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to sync receipt: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close receipt: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to store receipt: %w", err)
	}
	a.log.Info("receipt saved", "receipt", r.ReceiptNumber, "path", path, "bytes", len(pdf))
	return path, nil
}

// Fetch downloads the document for r and saves it.
func (a *Archive) Fetch(ctx context.Context, src Source, r domain.Receipt) (string, error) {
	pdf, err := src.ReceiptPDF(ctx, r.ID)
	if err != nil {
		return "", err
	}
	return a.Save(r, pdf)
}

// FetchLatest saves the document of the last remembered receipt.
func (a *Archive) FetchLatest(ctx context.Context, src Source) (string, error) {
	_, r, ok := a.Latest()
	if !ok {
		return "", ErrNoReceipt
	}
	return a.Fetch(ctx, src, r)
}

func fileName(r domain.Receipt) string {
	base := unsafeName.ReplaceAllString(r.ReceiptNumber, "_")
	if base == "" || base == "_" {
		base = fmt.Sprintf("receipt-%d", r.ID)
	}
	return base + ".pdf"
}
