// Package config provides layered configuration loading for the key vault
// service: struct defaults overlaid with KEYVAULT_* environment variables,
// then validated. Load is the single configuration seam; nothing else in
// the codebase reads the environment.
package config

import (
	"encoding/base64"
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "KEYVAULT_"

// Config holds the merged runtime configuration for the vault service.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required,ip_port"`
	// DataDir holds the SQLite database.
	DataDir string `koanf:"data_dir" validate:"required,safe_path"`
	// EncryptionKey is the base64-encoded 256-bit master secret for the
	// AEAD engine. Never logged.
	EncryptionKey string `koanf:"encryption_key" validate:"required,enc_key"`
	// AuthSecret is the HS256 signing secret shared with the auth service.
	AuthSecret string `koanf:"auth_secret" validate:"required,min=16"`
	// Origins is the exact-match CORS allow-list.
	Origins []string `koanf:"origins"`
	// AllowDevOrigins admits localhost/127.0.0.1 origins on any port.
	AllowDevOrigins bool `koanf:"allow_dev_origins"`
	// RateWindow is the fixed rate-limit window shared by all actions.
	RateWindow time.Duration `koanf:"rate_window" validate:"gt=0"`
	// TestMax caps test-connection requests per identity per window.
	TestMax int `koanf:"test_max" validate:"gt=0"`
	// WriteMax caps save/status/revoke requests per identity per window.
	WriteMax int `koanf:"write_max" validate:"gt=0"`
	// ProbeTimeout bounds each upstream connectivity check.
	ProbeTimeout time.Duration `koanf:"probe_timeout" validate:"gt=0"`
	// ProbeURL, when set, is the provider endpoint keys are tested
	// against; when empty a shape-only check is used.
	ProbeURL string `koanf:"probe_url" validate:"omitempty,url"`
	// MetricsToken guards the /metrics snapshot; empty leaves it open.
	MetricsToken string `koanf:"metrics_token"`
	// JanitorInterval is the rate-limit window purge cadence.
	JanitorInterval time.Duration `koanf:"janitor_interval" validate:"gt=0"`
}

// DefaultAppConfig carries the secure, minimal sane defaults. The two
// secrets have no default and must come from the environment.
var DefaultAppConfig = Config{
	Addr:            ":8080",
	DataDir:         "./data",
	AllowDevOrigins: true,
	RateWindow:      time.Minute,
	TestMax:         10,
	WriteMax:        30,
	ProbeTimeout:    5 * time.Second,
	JanitorInterval: time.Minute,
}

// Load merges defaults with KEYVAULT_* environment variables and validates
// the result.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultAppConfig, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			// List-valued settings arrive as one comma-separated string
			// and must be split here; the decoder will not split them.
			if key == "origins" {
				return key, splitList(value)
			}
			return key, value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs structural validation on cfg. Exposed separately so tests
// and tooling can validate hand-built configs.
func Validate(cfg *Config) error {
	v := validator.New()
	for name, fn := range map[string]validator.Func{
		"ip_port":   validIPPort,
		"safe_path": validSafePath,
		"enc_key":   validEncryptionKey,
	} {
		if err := v.RegisterValidation(name, fn); err != nil {
			return fmt.Errorf("register validation %s: %w", name, err)
		}
	}
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// splitList turns a comma-separated env value into its trimmed non-empty
// elements.
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validIPPort accepts "[host]:port" where host is empty or a literal IP
// and port is 1..65535. Hostnames are rejected; bind addresses are IPs.
func validIPPort(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return false
	}
	if host == "" {
		return true
	}
	return net.ParseIP(host) != nil
}

// validSafePath rejects empty, root, and parent-traversing data paths.
func validSafePath(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if p == "" {
		return false
	}
	clean := path.Clean(p)
	if clean == "." || clean == "/" {
		return false
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// validEncryptionKey requires a base64 value decoding to exactly 32 bytes.
func validEncryptionKey(fl validator.FieldLevel) bool {
	raw, err := base64.StdEncoding.DecodeString(fl.Field().String())
	return err == nil && len(raw) == 32
}
