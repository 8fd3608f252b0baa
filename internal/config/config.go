// Package config loads datalink settings from defaults, a YAML file, a .env
// file and DATALINK_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/moasq/datalink/internal/integrations"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DATALINK_"

// Config holds the CLI configuration.
type Config struct {
	BackendURL string `yaml:"backend_url"`
	UserID     string `yaml:"user_id"`
	OrgID      string `yaml:"org_id"`

	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"` // 0 waits until the user gives up
	HTTPTimeout  time.Duration `yaml:"http_timeout"`

	// StateDir holds connections.json and the secrets fallback file.
	StateDir string `yaml:"state_dir"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text or json

	Providers map[string]ProviderConfig `yaml:"providers"`

	// Path is the config file that was read, empty if none was found.
	Path string `yaml:"-"`
}

// ProviderConfig holds per-provider overrides.
type ProviderConfig struct {
	LoadEndpoint string `yaml:"load_endpoint"`
}

// Defaults returns a Config with every field at its default.
func Defaults() *Config {
	return &Config{
		BackendURL:   "http://localhost:8000",
		PollInterval: 200 * time.Millisecond,
		HTTPTimeout:  30 * time.Second,
		StateDir:     DefaultStateDir(),
		LogLevel:     "warn",
		LogFormat:    "text",
		Providers:    map[string]ProviderConfig{},
	}
}

// DefaultStateDir is ~/.datalink, or .datalink when the home directory is unknown.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".datalink"
	}
	return filepath.Join(home, ".datalink")
}

// DefaultPath is the config file read when none is given.
func DefaultPath() string {
	return filepath.Join(DefaultStateDir(), "config.yaml")
}

// Load builds a Config. An explicit path must exist; the default path may be
// missing. Values from .env in the working directory never override real
// environment variables.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := cfg.mergeFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else {
		cfg.Path = path
	}

	dotenv, err := godotenv.Read(".env")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	cfg.StateDir = expandHome(cfg.StateDir)
	return cfg, nil
}

// mergeFile overlays the YAML file at path onto c.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"BACKEND_URL": &c.BackendURL,
		"USER_ID":     &c.UserID,
		"ORG_ID":      &c.OrgID,
		"STATE_DIR":   &c.StateDir,
		"LOG_LEVEL":   &c.LogLevel,
		"LOG_FORMAT":  &c.LogFormat,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	durations := map[string]*time.Duration{
		"POLL_INTERVAL": &c.PollInterval,
		"POLL_TIMEOUT":  &c.PollTimeout,
		"HTTP_TIMEOUT":  &c.HTTPTimeout,
	}
	for key, dst := range durations {
		v, ok := lookup(EnvPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s %q: %w", EnvPrefix, key, v, err)
		}
		*dst = d
	}
	return nil
}

// Validate reports every setting that would stop a connect flow from working.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.BackendURL) == "" {
		errs = append(errs, errors.New("backend_url is required"))
	}
	if strings.TrimSpace(c.UserID) == "" {
		errs = append(errs, errors.New("user_id is required (--user or DATALINK_USER_ID)"))
	}
	if strings.TrimSpace(c.OrgID) == "" {
		errs = append(errs, errors.New("org_id is required (--org or DATALINK_ORG_ID)"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.PollTimeout < 0 {
		errs = append(errs, fmt.Errorf("poll_timeout must not be negative, got %s", c.PollTimeout))
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Account is the key connections are stored under for this user and org.
func (c *Config) Account() string {
	return integrations.AccountKey(c.UserID, c.OrgID)
}

// LoadEndpoints returns the configured load endpoint overrides by provider.
func (c *Config) LoadEndpoints() map[integrations.ProviderID]string {
	out := make(map[integrations.ProviderID]string, len(c.Providers))
	for id, pc := range c.Providers {
		if pc.LoadEndpoint != "" {
			out[integrations.ProviderID(strings.ToLower(id))] = pc.LoadEndpoint
		}
	}
	return out
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
