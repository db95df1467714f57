package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/scpibridge/internal/testutil/testlog"
	"github.com/danmuck/scpibridge/internal/transport"
)

func TestLoadConsoleConfigOverrides(t *testing.T) {
	testlog.Start(t)

	cfg, err := loadConsoleConfig("console.example.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Transport.Kind != transport.KindTCP || cfg.Transport.Address != "127.0.0.1" || cfg.Transport.Channel != 5025 {
		t.Fatalf("unexpected transport: %+v", cfg.Transport)
	}
	if cfg.Session.ConnectTimeout != 3*time.Second || cfg.Session.ReplyTimeout != 30*time.Second {
		t.Fatalf("unexpected session timeouts: %+v", cfg.Session)
	}
	if cfg.MaxConnectAttempts != 3 {
		t.Fatalf("unexpected attempts: %d", cfg.MaxConnectAttempts)
	}
	if cfg.DirectoryTimeout != 45*time.Second || cfg.SetDelay != 200*time.Millisecond {
		t.Fatalf("unexpected queue timing: directory=%v set=%v", cfg.DirectoryTimeout, cfg.SetDelay)
	}
}

func TestLoadConsoleConfigRfcommDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "console.toml")
	if err := os.WriteFile(path, []byte("hub_address = \"B8:27:EB:12:34:56\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := loadConsoleConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Transport.Kind != transport.KindRFCOMM || cfg.Transport.Channel != 4 {
		t.Fatalf("defaults not kept: %+v", cfg.Transport)
	}
	if cfg.MaxConnectAttempts != 5 || cfg.Session.ConnectTimeout != 10*time.Second {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
	if cfg.SetDelay != 4*time.Second || cfg.DirectoryTimeout != 0 {
		t.Fatalf("queue timing defaults not kept: set=%v directory=%v", cfg.SetDelay, cfg.DirectoryTimeout)
	}
}

func TestLoadConsoleConfigRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"missing hub":  "channel = 4\n",
		"bad bdaddr":   "hub_address = \"not-an-address\"\n",
		"unknown key":  "hub_address = \"B8:27:EB:12:34:56\"\nretries = 2\n",
		"bad duration": "hub_address = \"B8:27:EB:12:34:56\"\nreply_timeout = \"-1s\"\n",
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), "console.toml")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := loadConsoleConfig(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
