package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"LEDGER_BACKEND", "LOCK_BACKEND", "EVENT_WORKERS", "DEFAULT_CURRENCY", "LOCK_WAIT_MS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Backend != BackendMemory || cfg.Lock.Backend != LockLocal {
		t.Errorf("unexpected backends %q/%q", cfg.Backend, cfg.Lock.Backend)
	}
	if cfg.Events.Workers != 4 || cfg.Ledger.DefaultCurrency != "USD" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Lock.Wait != 5*time.Second {
		t.Errorf("expected 5s lock wait, got %s", cfg.Lock.Wait)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "MySQL")
	t.Setenv("EVENT_WORKERS", "9")
	t.Setenv("DEFAULT_CURRENCY", "jpy")
	t.Setenv("LOCK_TTL_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.Backend != BackendMySQL {
		t.Errorf("expected mysql, got %q", cfg.Backend)
	}
	if cfg.Events.Workers != 9 || cfg.Ledger.DefaultCurrency != "JPY" {
		t.Errorf("unexpected overrides %+v", cfg)
	}
	if cfg.Lock.TTL != 30*time.Second {
		t.Errorf("invalid numbers fall back to the default, got %s", cfg.Lock.TTL)
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := NopLogger()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	LogError(logger, "sale", "CreateSale", "persistence failure", map[string]string{"sale_id": "s-1"}, errors.New("tcp reset"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON line, got %q", buf.String())
	}
	if entry["module"] != "sale" || entry["funcName"] != "CreateSale" || entry["msg"] != "tcp reset" || entry["level"] != "error" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNewLogger_BadLevelFallsBackToInfo(t *testing.T) {
	if l := NewLogger("loud"); l.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected info, got %s", l.GetLevel())
	}
	if l := NewLogger("debug"); l.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected debug, got %s", l.GetLevel())
	}
}
