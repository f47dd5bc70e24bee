package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default configuration values
const (
	DefaultDomain     = "localhost:8080"
	DefaultListenAddr = ":8080"
)

// DefaultSTUNServers are the public Google STUN servers.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
	"stun:stun4.l.google.com:19302",
}

// Config holds application configuration
type Config struct {
	// Domain is the relay host, with optional port.
	Domain string

	// RelayURL is the relay WebSocket endpoint, derived from Domain unless set.
	RelayURL string

	// ICE servers for WebRTC
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string

	// ForceRelay restricts ICE to TURN candidates.
	ForceRelay bool

	// ListenAddr is where `teleconsult relay` listens.
	ListenAddr string
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain      string
	RelayURL    string
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
	ListenAddr  string

	// ConfigFile is an explicit YAML file. When empty, TELECONSULT_CONFIG
	// and then the user config directory are tried.
	ConfigFile string
}

// fileConfig is the YAML config file layout.
type fileConfig struct {
	Domain      string   `yaml:"domain"`
	RelayURL    string   `yaml:"relay_url"`
	STUNServers []string `yaml:"stun_servers"`
	TURNServer  string   `yaml:"turn_server"`
	TURNUser    string   `yaml:"turn_username"`
	TURNPass    string   `yaml:"turn_password"`
	ForceRelay  *bool    `yaml:"force_relay"`
	ListenAddr  string   `yaml:"listen_addr"`
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. YAML config file
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	file, err := readFile(opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	forceRelay, err := resolveBool(opts.ForceRelay, "FORCE_RELAY", file.ForceRelay)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Domain:      resolve(opts.Domain, "DOMAIN", file.Domain, DefaultDomain),
		RelayURL:    resolve(opts.RelayURL, "RELAY_URL", file.RelayURL, ""),
		STUNServers: resolveList(opts.STUNServers, "STUN_SERVERS", file.STUNServers, DefaultSTUNServers),
		TURNServer:  resolve(opts.TURNServer, "TURN_SERVER", file.TURNServer, ""),
		TURNUser:    resolve(opts.TURNUser, "TURN_USERNAME", file.TURNUser, ""),
		TURNPass:    resolve(opts.TURNPass, "TURN_PASSWORD", file.TURNPass, ""),
		ForceRelay:  forceRelay,
		ListenAddr:  resolve(opts.ListenAddr, "LISTEN_ADDR", file.ListenAddr, DefaultListenAddr),
	}

	if cfg.RelayURL == "" {
		scheme := "wss"
		if isLoopback(hostOnly(cfg.Domain)) {
			scheme = "ws"
		}
		cfg.RelayURL = fmt.Sprintf("%s://%s/ws", scheme, cfg.Domain)
	}
	if _, err := url.Parse(cfg.RelayURL); err != nil {
		return nil, fmt.Errorf("invalid relay URL %q: %w", cfg.RelayURL, err)
	}

	return cfg, nil
}

// SecureContext reports whether media capture may be requested: the relay
// is reached over TLS or runs on this machine.
func (c *Config) SecureContext() bool {
	u, err := url.Parse(c.RelayURL)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "wss", "https":
		return true
	}
	return isLoopback(u.Hostname())
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return c.STUNServers
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turns:"), "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func readFile(explicit string) (fileConfig, error) {
	var fc fileConfig

	path := explicit
	if path == "" {
		path = os.Getenv("TELECONSULT_CONFIG")
	}
	required := path != ""
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fc, nil
		}
		path = filepath.Join(dir, "teleconsult", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return fc, nil
		}
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

func resolve(flag, env, file, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	if file != "" {
		return file
	}
	return def
}

func resolveList(flag []string, env string, file, def []string) []string {
	if len(flag) > 0 {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	if len(file) > 0 {
		return file
	}
	return append([]string(nil), def...)
}

func resolveBool(flag bool, env string, file *bool) (bool, error) {
	if flag {
		return true, nil
	}
	if v := os.Getenv(env); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("invalid %s %q: %w", env, v, err)
		}
		return b, nil
	}
	if file != nil {
		return *file, nil
	}
	return false, nil
}

func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return strings.Trim(hostport, "[]")
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
