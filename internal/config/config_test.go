package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"atm-client/internal/atm"
	"atm-client/internal/receipt"
	"atm-client/internal/session"

	"github.com/charmbracelet/log"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"ATM_API_URL", "ATM_HTTP_TIMEOUT", "ATM_SESSION_FILE", "ATM_RECEIPT_DIR", "ATM_LOG_LEVEL",
		"ATM_DENOMINATION", "ATM_MIN_AMOUNT", "ATM_MAX_WITHDRAWAL", "ATM_MAX_DEPOSIT", "ATM_HISTORY_LIMIT",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIURL != DefaultAPIURL || cfg.Timeout != DefaultTimeout || cfg.HistoryLimit != 10 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Policy != atm.DefaultPolicy || cfg.LogLevel != log.InfoLevel {
		t.Fatalf("policy=%+v level=%v", cfg.Policy, cfg.LogLevel)
	}
	sessionFile, _ := session.DefaultPath()
	receiptDir, _ := receipt.DefaultDir()
	if cfg.SessionFile != sessionFile || cfg.ReceiptDir != receiptDir {
		t.Fatalf("session file=%s receipt dir=%s", cfg.SessionFile, cfg.ReceiptDir)
	}
}

func TestPathOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("ATM_SESSION_FILE", filepath.Join(dir, "s.json"))
	t.Setenv("ATM_RECEIPT_DIR", filepath.Join(dir, "r"))
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SessionFile != filepath.Join(dir, "s.json") || cfg.ReceiptDir != filepath.Join(dir, "r") {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ATM_API_URL", "https://bank.example.com/api")
	t.Setenv("ATM_HTTP_TIMEOUT", "3s")
	t.Setenv("ATM_LOG_LEVEL", "debug")
	t.Setenv("ATM_DENOMINATION", "500")
	t.Setenv("ATM_MAX_WITHDRAWAL", "40000")
	t.Setenv("ATM_HISTORY_LIMIT", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Timeout != 3*time.Second || cfg.LogLevel != log.DebugLevel || cfg.HistoryLimit != 25 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Policy.Denomination != 500 || cfg.Policy.MaxWithdrawal != 40000 || cfg.Policy.Minimum != 100 {
		t.Fatalf("policy=%+v", cfg.Policy)
	}
}

func TestMalformedValues(t *testing.T) {
	bad := map[string]string{
		"ATM_API_URL":       "localhost:5000",
		"ATM_HTTP_TIMEOUT":  "soon",
		"ATM_LOG_LEVEL":     "loud",
		"ATM_DENOMINATION":  "-100",
		"ATM_HISTORY_LIMIT": "0",
	}
	for k, v := range bad {
		t.Run(k, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(k, v)
			if _, err := Load(); err == nil {
				t.Fatalf("%s=%q accepted", k, v)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides a variable that is already set.
	os.Unsetenv("ATM_HISTORY_LIMIT")
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("ATM_HISTORY_LIMIT=7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HistoryLimit != 7 {
		t.Fatalf("history limit=%d", cfg.HistoryLimit)
	}
}
