package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// isolate clears every variable Load reads and points the config file at a
// fresh directory.
func isolate(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DOMAIN", "RELAY_URL", "STUN_SERVERS", "TURN_SERVER", "TURN_USERNAME", "TURN_PASSWORD", "FORCE_RELAY", "LISTEN_ADDR", "TELECONSULT_CONFIG"} {
		t.Setenv(k, "")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Domain != DefaultDomain || cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RelayURL != "ws://localhost:8080/ws" {
		t.Fatalf("RelayURL=%q", cfg.RelayURL)
	}
	if !reflect.DeepEqual(cfg.STUNServers, DefaultSTUNServers) {
		t.Fatalf("STUNServers=%v", cfg.STUNServers)
	}
	if cfg.GetTURNServers() != nil || cfg.ForceRelay {
		t.Fatal("TURN must be off by default")
	}
	if !cfg.SecureContext() {
		t.Fatal("localhost relay should be a secure context")
	}
}

func TestLoadPriority(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
domain: file.example.org
turn_server: turn.file.example.org
turn_username: fileuser
listen_addr: ":9000"
force_relay: true
stun_servers:
  - stun:file.example.org:3478
`)

	t.Setenv("DOMAIN", "env.example.org")
	t.Setenv("TURN_USERNAME", "envuser")

	cfg, err := Load(Options{ConfigFile: path, TURNUser: "flaguser"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Domain != "env.example.org" {
		t.Fatalf("env should beat file: Domain=%q", cfg.Domain)
	}
	if cfg.TURNUser != "flaguser" {
		t.Fatalf("flag should beat env: TURNUser=%q", cfg.TURNUser)
	}
	if cfg.TURNServer != "turn.file.example.org" || cfg.ListenAddr != ":9000" || !cfg.ForceRelay {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if len(cfg.STUNServers) != 1 || cfg.STUNServers[0] != "stun:file.example.org:3478" {
		t.Fatalf("STUNServers=%v", cfg.STUNServers)
	}
	if cfg.RelayURL != "wss://env.example.org/ws" {
		t.Fatalf("RelayURL=%q", cfg.RelayURL)
	}
}

func TestLoadEnvironmentLists(t *testing.T) {
	isolate(t)
	t.Setenv("STUN_SERVERS", "stun:a:1, stun:b:2,,")
	t.Setenv("FORCE_RELAY", "true")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg.STUNServers, []string{"stun:a:1", "stun:b:2"}) {
		t.Fatalf("STUNServers=%v", cfg.STUNServers)
	}
	if !cfg.ForceRelay {
		t.Fatal("FORCE_RELAY not applied")
	}
}

func TestLoadErrors(t *testing.T) {
	isolate(t)

	if _, err := Load(Options{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Fatal("explicit missing config file must fail")
	}
	if _, err := Load(Options{ConfigFile: writeConfig(t, "domain: [unterminated")}); err == nil {
		t.Fatal("malformed YAML must fail")
	}

	t.Setenv("FORCE_RELAY", "sometimes")
	if _, err := Load(Options{}); err == nil {
		t.Fatal("invalid FORCE_RELAY must fail")
	}
}

func TestSecureContext(t *testing.T) {
	cases := map[string]bool{
		"wss://relay.example.org/ws": true,
		"ws://relay.example.org/ws":  false,
		"ws://127.0.0.1:8080/ws":     true,
		"ws://[::1]:8080/ws":         true,
		"ws://localhost/ws":          true,
	}
	for relayURL, want := range cases {
		cfg := &Config{RelayURL: relayURL}
		if got := cfg.SecureContext(); got != want {
			t.Fatalf("SecureContext(%q)=%v, want %v", relayURL, got, want)
		}
	}
}

func TestTURNServers(t *testing.T) {
	cfg := &Config{TURNServer: "turn:turn.example.org"}
	want := []string{
		"turn:turn.example.org:3478?transport=udp",
		"turn:turn.example.org:3478?transport=tcp",
		"turns:turn.example.org:5349?transport=tcp",
	}
	if got := cfg.GetTURNServers(); !reflect.DeepEqual(got, want) {
		t.Fatalf("GetTURNServers()=%v", got)
	}
}
