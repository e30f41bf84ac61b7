// Package config loads server settings from defaults, an optional YAML file
// and the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/webmcp/relay/internal/audit"
	"github.com/webmcp/relay/internal/redact"
	"github.com/webmcp/relay/internal/session"
)

// Config is the full server configuration.
type Config struct {
	Port           string   `yaml:"port"`
	LogLevel       string   `yaml:"log_level"`
	DataDir        string   `yaml:"data_dir"`
	SanitizeOutput bool     `yaml:"sanitize_output"`
	RedactKeys     []string `yaml:"redact_keys"`
	RiskPatterns   string   `yaml:"risk_patterns"`
	AuditCapacity  int      `yaml:"audit_capacity"`
	AdminKeyHash   string   `yaml:"admin_key_hash"`
	PostgresDSN    string   `yaml:"postgres_dsn"`
	ClickHouseDSN  string   `yaml:"clickhouse_dsn"`
	GRPCHealthPort string   `yaml:"grpc_health_port"`
	OTelMetrics    bool     `yaml:"otel_metrics"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:           "8787",
		LogLevel:       "info",
		SanitizeOutput: true,
		RedactKeys:     append([]string(nil), redact.DefaultKeys...),
		RiskPatterns:   "default",
		AuditCapacity:  audit.DefaultCapacity,
	}
}

// Load builds the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with an injectable environment lookup.
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := getenv("WEBMCP_CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	e := env(getenv)
	cfg.Port = e.str("PORT", cfg.Port)
	cfg.LogLevel = e.str("WEBMCP_LOG_LEVEL", cfg.LogLevel)
	cfg.DataDir = e.str("WEBMCP_DATA_DIR", cfg.DataDir)
	cfg.SanitizeOutput = e.boolean("WEBMCP_SANITIZE_OUTPUT", cfg.SanitizeOutput)
	if v := getenv("WEBMCP_REDACT_KEYS"); v != "" {
		cfg.RedactKeys = redact.ParseKeys(v)
	}
	cfg.RiskPatterns = e.str("WEBMCP_RISK_PATTERNS", cfg.RiskPatterns)
	cfg.AuditCapacity = e.integer("WEBMCP_AUDIT_CAPACITY", cfg.AuditCapacity)
	cfg.AdminKeyHash = e.str("WEBMCP_ADMIN_KEY_HASH", cfg.AdminKeyHash)
	cfg.PostgresDSN = e.str("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.ClickHouseDSN = e.str("CLICKHOUSE_DSN", cfg.ClickHouseDSN)
	cfg.GRPCHealthPort = e.str("WEBMCP_GRPC_HEALTH_PORT", cfg.GRPCHealthPort)
	cfg.OTelMetrics = e.boolean("WEBMCP_OTEL_METRICS", cfg.OTelMetrics)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("config: invalid port %q", c.Port)
	}
	if c.GRPCHealthPort != "" {
		if _, err := strconv.Atoi(c.GRPCHealthPort); err != nil {
			return fmt.Errorf("config: invalid grpc health port %q", c.GRPCHealthPort)
		}
	}
	if c.AuditCapacity < 1 {
		return fmt.Errorf("config: audit capacity must be positive, got %d", c.AuditCapacity)
	}
	switch c.RiskPatterns {
	case "default", "extended":
	default:
		return fmt.Errorf("config: unknown risk pattern table %q", c.RiskPatterns)
	}
	return nil
}

// SessionsPath is the session document path, or "" when file persistence is
// off.
func (c Config) SessionsPath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, session.FileName)
}

// AuditPath is the audit mirror path, or "" when file persistence is off.
func (c Config) AuditPath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, audit.FileName)
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	return nil
}

type env func(string) string

func (e env) str(key, def string) string {
	if v := e(key); v != "" {
		return v
	}
	return def
}

func (e env) integer(key string, def int) int {
	if v := e(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// boolean treats "false", "0", "no" and "off" as false and any other
// non-empty value as true.
func (e env) boolean(key string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(e(key)))
	switch v {
	case "":
		return def
	case "false", "0", "no", "off":
		return false
	default:
		return true
	}
}
