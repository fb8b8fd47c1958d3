// ABOUTME: Configuration loading and parsing for ep-private
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ConfigEnvVar overrides the config file location.
const ConfigEnvVar = "EP_PRIVATE_CONFIG"

// minLinkSecretLength matches the HS256 key floor enforced by the link signer.
const minLinkSecretLength = 32

// Config represents the complete ep-private configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit" toml:"ratelimit"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`

	// BaseURL is the external origin used when printing magic links.
	BaseURL string `yaml:"base_url" toml:"base_url"`

	// TrustedProxies are CIDRs or addresses of reverse proxies whose
	// X-Forwarded-For and X-Real-IP headers are believed.
	TrustedProxies    []netip.Prefix `yaml:"-" toml:"-"`
	TrustedProxiesRaw []string       `yaml:"trusted_proxies" toml:"trusted_proxies"`

	ReadTimeout     time.Duration `yaml:"-" toml:"-"`
	WriteTimeout    time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`

	ReadTimeoutRaw     string `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeoutRaw    string `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds session, magic link and admin token configuration
type AuthConfig struct {
	CookieName   string `yaml:"cookie_name" toml:"cookie_name"`
	CookieSecure bool   `yaml:"cookie_secure" toml:"cookie_secure"`
	CookieDomain string `yaml:"cookie_domain" toml:"cookie_domain"`

	LinkSecret string `yaml:"link_secret" toml:"link_secret"`
	AdminToken string `yaml:"admin_token" toml:"admin_token"`

	AuthPath string `yaml:"auth_path" toml:"auth_path"`
	HomePath string `yaml:"home_path" toml:"home_path"`

	// AwaitLastSeen makes the validator finish the last_seen_at write before
	// the request continues.
	AwaitLastSeen bool `yaml:"await_last_seen" toml:"await_last_seen"`

	SessionTTL    time.Duration `yaml:"-" toml:"-"`
	LinkTTL       time.Duration `yaml:"-" toml:"-"`
	TouchTimeout  time.Duration `yaml:"-" toml:"-"`
	LookupTimeout time.Duration `yaml:"-" toml:"-"`

	SessionTTLRaw    string `yaml:"session_ttl" toml:"session_ttl"`
	LinkTTLRaw       string `yaml:"link_ttl" toml:"link_ttl"`
	TouchTimeoutRaw  string `yaml:"touch_timeout" toml:"touch_timeout"`
	LookupTimeoutRaw string `yaml:"lookup_timeout" toml:"lookup_timeout"`
}

// RateLimitConfig holds per-IP request budgets. Zero disables a limiter.
type RateLimitConfig struct {
	AdminPerMinute int `yaml:"admin_per_minute" toml:"admin_per_minute"`
	AuthPerMinute  int `yaml:"auth_per_minute" toml:"auth_per_minute"`
	Burst          int `yaml:"burst" toml:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`

	// File enables rotated file output in addition to stderr.
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// Default returns a Config with every optional field set. Load decodes the
// file on top of it, so absent keys keep these values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:           "127.0.0.1:8080",
			BaseURL:            "http://localhost:8080",
			ReadTimeoutRaw:     "15s",
			WriteTimeoutRaw:    "30s",
			ShutdownTimeoutRaw: "10s",
		},
		Database: DatabaseConfig{
			Path: DefaultDatabasePath(),
		},
		Auth: AuthConfig{
			CookieName:       "ep_private",
			AuthPath:         "/private/auth",
			HomePath:         "/private",
			SessionTTLRaw:    "168h",
			LinkTTLRaw:       "15m",
			TouchTimeoutRaw:  "2s",
			LookupTimeoutRaw: "3s",
		},
		RateLimit: RateLimitConfig{
			AdminPerMinute: 30,
			AuthPerMinute:  20,
			Burst:          5,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	proxies, err := ParseTrustedProxies(cfg.Server.TrustedProxiesRaw)
	if err != nil {
		return nil, fmt.Errorf("parsing server.trusted_proxies: %w", err)
	}
	cfg.Server.TrustedProxies = proxies

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}

	if c.Auth.CookieName == "" {
		return errors.New("auth.cookie_name is required")
	}
	if len(c.Auth.LinkSecret) < minLinkSecretLength {
		return fmt.Errorf("auth.link_secret must be at least %d bytes", minLinkSecretLength)
	}
	if !strings.HasPrefix(c.Auth.AuthPath, "/") {
		return errors.New("auth.auth_path must start with /")
	}
	if !strings.HasPrefix(c.Auth.HomePath, "/") {
		return errors.New("auth.home_path must start with /")
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("auth.session_ttl must be positive")
	}
	if c.Auth.LinkTTL <= 0 {
		return errors.New("auth.link_ttl must be positive")
	}
	if c.Auth.TouchTimeout <= 0 || c.Auth.LookupTimeout <= 0 {
		return errors.New("auth.touch_timeout and auth.lookup_timeout must be positive")
	}

	if c.RateLimit.AdminPerMinute < 0 || c.RateLimit.AuthPerMinute < 0 || c.RateLimit.Burst < 0 {
		return errors.New("ratelimit values must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.read_timeout", cfg.Server.ReadTimeoutRaw, &cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeoutRaw, &cfg.Server.WriteTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"auth.session_ttl", cfg.Auth.SessionTTLRaw, &cfg.Auth.SessionTTL},
		{"auth.link_ttl", cfg.Auth.LinkTTLRaw, &cfg.Auth.LinkTTL},
		{"auth.touch_timeout", cfg.Auth.TouchTimeoutRaw, &cfg.Auth.TouchTimeout},
		{"auth.lookup_timeout", cfg.Auth.LookupTimeoutRaw, &cfg.Auth.LookupTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// ParseTrustedProxies parses CIDR prefixes. A bare address is taken as a
// single host.
func ParseTrustedProxies(raw []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(raw))
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// DefaultPath returns the config file location.
// Priority: EP_PRIVATE_CONFIG env var > XDG_CONFIG_HOME/ep-private/config.yaml > ~/.config/ep-private/config.yaml
func DefaultPath() string {
	if p := os.Getenv(ConfigEnvVar); p != "" {
		return p
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "ep-private", "config.yaml")
}

// DefaultDatabasePath returns the SQLite location.
// Priority: XDG_DATA_HOME/ep-private > ~/.local/share/ep-private
func DefaultDatabasePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "ep-private.db"
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "ep-private", "ep-private.db")
}

// ErrConfigExists is returned by WriteSample when the target already exists.
var ErrConfigExists = errors.New("config file already exists")

// WriteSample writes a commented starter config to path. It never
// overwrites an existing file.
func WriteSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrConfigExists
		}
		return fmt.Errorf("creating config file: %w", err)
	}

	if _, err := f.WriteString(SampleYAML); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	return f.Close()
}

// SampleYAML is the starter configuration written by `ep-private init`.
const SampleYAML = `# ep-private configuration
server:
  http_addr: "127.0.0.1:8080"
  base_url: "http://localhost:8080"
  # trusted_proxies: ["127.0.0.1/32"]   # peers allowed to set X-Forwarded-For
  read_timeout: "15s"
  write_timeout: "30s"
  shutdown_timeout: "10s"

database:
  path: "./ep-private.db"

auth:
  cookie_name: "ep_private"
  cookie_secure: false        # set true behind HTTPS
  link_secret: "${EP_PRIVATE_LINK_SECRET}"   # at least 32 bytes
  admin_token: "${JOBS_ADMIN_TOKEN}"
  auth_path: "/private/auth"
  home_path: "/private"
  session_ttl: "168h"
  link_ttl: "15m"
  await_last_seen: false
  touch_timeout: "2s"
  lookup_timeout: "3s"

ratelimit:
  admin_per_minute: 30
  auth_per_minute: 20
  burst: 5

logging:
  level: "info"    # debug, info, warn, error
  format: "text"   # text, json
  # file: "/var/log/ep-private/ep-private.log"
  max_size_mb: 50
  max_backups: 3
  max_age_days: 28
`
