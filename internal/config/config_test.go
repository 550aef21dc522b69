package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(func(string) string { return "" })
	if err != nil {
		t.Fatalf("LoadFrom() returned error: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Fatalf("expected default port %d, got %d", DefaultPort, cfg.Port)
	}
	if cfg.DisplayName != DefaultDisplayName {
		t.Fatalf("expected default name %q, got %q", DefaultDisplayName, cfg.DisplayName)
	}
	if cfg.Weapon != DefaultWeapon {
		t.Fatalf("expected default weapon %q, got %q", DefaultWeapon, cfg.Weapon)
	}
	if cfg.TickRate != DefaultTickRate {
		t.Fatalf("expected default tick rate %v, got %v", DefaultTickRate, cfg.TickRate)
	}
	if cfg.WebSocketPath != DefaultWebSocketPath {
		t.Fatalf("expected default path %q, got %q", DefaultWebSocketPath, cfg.WebSocketPath)
	}
	if cfg.MaxPayloadBytes != DefaultMaxPayloadBytes {
		t.Fatalf("expected default max payload %d, got %d", DefaultMaxPayloadBytes, cfg.MaxPayloadBytes)
	}
	if cfg.ObserverAddr != "" || cfg.JournalDir != "" {
		t.Fatalf("expected optional services disabled, got observer=%q journal=%q", cfg.ObserverAddr, cfg.JournalDir)
	}
	if cfg.JoinRateLimit != DefaultJoinRateLimit {
		t.Fatalf("expected default join rate limit %d, got %d", DefaultJoinRateLimit, cfg.JoinRateLimit)
	}
	if cfg.JournalKeep != DefaultJournalKeep || cfg.JournalMaxAge != 0 {
		t.Fatalf("unexpected journal retention keep=%d age=%v", cfg.JournalKeep, cfg.JournalMaxAge)
	}
	if !cfg.Logging.Compress || cfg.Logging.Path != DefaultLogPath {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("NETPLAY_PORT", "9000")
	t.Setenv("NETPLAY_NAME", "Vesper")
	t.Setenv("NETPLAY_COLOR", "#FF8800")
	t.Setenv("NETPLAY_WEAPON", "shotgun")
	t.Setenv("NETPLAY_SPAWN", "12.5, -4")
	t.Setenv("NETPLAY_TICK_RATE", "30")
	t.Setenv("NETPLAY_PING_INTERVAL", "45s")
	t.Setenv("NETPLAY_MAX_CLIENTS", "4")
	t.Setenv("NETPLAY_JOIN_RATE_LIMIT", "0")
	t.Setenv("NETPLAY_OBSERVER_ADDR", "127.0.0.1:7001")
	t.Setenv("NETPLAY_OBSERVER_SECRET", "hunter2")
	t.Setenv("NETPLAY_LOG_COMPRESS", "false")
	t.Setenv("NETPLAY_JOURNAL_DIR", "/var/lib/netplay")
	t.Setenv("NETPLAY_JOURNAL_KEEP", "3")
	t.Setenv("NETPLAY_JOURNAL_MAX_AGE", "72h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != 9000 {
		t.Fatalf("unexpected port: %d", cfg.Port)
	}
	if cfg.DisplayName != "Vesper" || cfg.Weapon != "shotgun" {
		t.Fatalf("unexpected identity: name=%q weapon=%q", cfg.DisplayName, cfg.Weapon)
	}
	if cfg.Color != "#ff8800" {
		t.Fatalf("expected colour to be normalised, got %q", cfg.Color)
	}
	if cfg.SpawnX != 12.5 || cfg.SpawnY != -4 {
		t.Fatalf("unexpected spawn (%v, %v)", cfg.SpawnX, cfg.SpawnY)
	}
	if cfg.TickRate != 30 {
		t.Fatalf("unexpected tick rate %v", cfg.TickRate)
	}
	if cfg.PingInterval != 45*time.Second {
		t.Fatalf("expected ping interval 45s, got %v", cfg.PingInterval)
	}
	if cfg.MaxClients != 4 || cfg.JoinRateLimit != 0 {
		t.Fatalf("expected max clients 4 and no join limit, got %d/%d", cfg.MaxClients, cfg.JoinRateLimit)
	}
	if cfg.ObserverAddr != "127.0.0.1:7001" || cfg.ObserverSecret != "hunter2" {
		t.Fatalf("unexpected observer config addr=%q secret=%q", cfg.ObserverAddr, cfg.ObserverSecret)
	}
	if cfg.Logging.Compress {
		t.Fatal("expected log compression disabled")
	}
	if cfg.JournalDir != "/var/lib/netplay" || cfg.JournalKeep != 3 || cfg.JournalMaxAge != 72*time.Hour {
		t.Fatalf("unexpected journal config dir=%q keep=%d age=%v", cfg.JournalDir, cfg.JournalKeep, cfg.JournalMaxAge)
	}
}

func TestLoadReturnsValidationErrors(t *testing.T) {
	t.Setenv("NETPLAY_PORT", "70000")
	t.Setenv("NETPLAY_COLOR", "teal")
	t.Setenv("NETPLAY_SPAWN", "1")
	t.Setenv("NETPLAY_PING_INTERVAL", "abc")
	t.Setenv("NETPLAY_MAX_CLIENTS", "-1")
	t.Setenv("NETPLAY_OBSERVER_SECRET", "hunter2")
	t.Setenv("NETPLAY_JOURNAL_KEEP", "lots")
	t.Setenv("NETPLAY_JOIN_RATE_LIMIT", "-3")
	t.Setenv("NETPLAY_OBSERVER_TLS_CERT", "server.pem")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error from invalid configuration, got nil")
	}

	for _, want := range []string{
		"NETPLAY_PORT",
		"NETPLAY_COLOR",
		"NETPLAY_SPAWN",
		"NETPLAY_PING_INTERVAL",
		"NETPLAY_MAX_CLIENTS",
		"NETPLAY_OBSERVER_SECRET",
		"NETPLAY_JOURNAL_KEEP",
		"NETPLAY_JOIN_RATE_LIMIT",
		"NETPLAY_OBSERVER_TLS_CERT",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got %q", want, err.Error())
		}
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		raw     string
		want    [3]uint8
		wantErr bool
	}{
		{raw: "#102030", want: [3]uint8{0x10, 0x20, 0x30}},
		{raw: "ffffff", want: [3]uint8{0xff, 0xff, 0xff}},
		{raw: "#fff", wantErr: true},
		{raw: "#zzzzzz", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseColor(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("expected error for %q", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseColor(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseColor(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
