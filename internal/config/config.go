// Package config reads the client settings from the environment, after
// loading an optional .env file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"atm-client/internal/atm"
	"atm-client/internal/domain"
	"atm-client/internal/receipt"
	"atm-client/internal/session"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL       = "http://localhost:5000/api"
	DefaultTimeout      = 15 * time.Second
	DefaultHistoryLimit = 10
)

type Config struct {
	APIURL       string
	Timeout      time.Duration
	SessionFile  string
	ReceiptDir   string
	LogLevel     log.Level
	Policy       atm.Policy
	HistoryLimit int
}

// LoadDotEnv loads .env files into the environment. A missing file is
// reported to the caller, who usually just warns.
func LoadDotEnv(files ...string) error {
	return godotenv.Load(files...)
}

// Load builds a Config from ATM_* environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		APIURL:       getenv("ATM_API_URL", DefaultAPIURL),
		SessionFile:  os.Getenv("ATM_SESSION_FILE"),
		ReceiptDir:   os.Getenv("ATM_RECEIPT_DIR"),
		Policy:       atm.DefaultPolicy,
		HistoryLimit: DefaultHistoryLimit,
	}

	var err error
	if cfg.SessionFile == "" {
		if cfg.SessionFile, err = session.DefaultPath(); err != nil {
			return nil, err
		}
	}
	if cfg.ReceiptDir == "" {
		if cfg.ReceiptDir, err = receipt.DefaultDir(); err != nil {
			return nil, err
		}
	}

	u, err := url.Parse(cfg.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("ATM_API_URL must be an http(s) URL, got %q", cfg.APIURL)
	}

	if cfg.Timeout, err = duration("ATM_HTTP_TIMEOUT", DefaultTimeout); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = log.ParseLevel(getenv("ATM_LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("ATM_LOG_LEVEL: %w", err)
	}
	if cfg.HistoryLimit, err = integer("ATM_HISTORY_LIMIT", DefaultHistoryLimit); err != nil {
		return nil, err
	}

	money := []struct {
		key string
		dst *domain.Money
	}{
		{"ATM_DENOMINATION", &cfg.Policy.Denomination},
		{"ATM_MIN_AMOUNT", &cfg.Policy.Minimum},
		{"ATM_MAX_WITHDRAWAL", &cfg.Policy.MaxWithdrawal},
		{"ATM_MAX_DEPOSIT", &cfg.Policy.MaxDeposit},
	}
	for _, m := range money {
		v := os.Getenv(m.key)
		if v == "" {
			continue
		}
		amount, err := domain.ParseMoney(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.key, err)
		}
		*m.dst = amount
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration such as 15s, got %q", key, v)
	}
	return d, nil
}

func integer(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}
