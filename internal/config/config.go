// Package config loads taskgate settings.
//
// Precedence, lowest first: built-in defaults, the YAML file, a .env file
// (never overriding variables already set), TASKGATE_* environment
// variables, then command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/taskgate/internal/ratelimit"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Read     ReadConfig     `yaml:"read"`
	Audit    AuditConfig    `yaml:"audit"`
	Log      LogConfig      `yaml:"log"`
	Ops      OpsConfig      `yaml:"ops"`
	Model    ModelConfig    `yaml:"model"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RunLimit is a per-client budget for POST /run. Zero disables it.
	RunLimit ratelimit.Limit `yaml:"run_limit"`
}

type SandboxConfig struct {
	Root      string `yaml:"root"`
	DenyRules string `yaml:"deny_rules"`
	Watch     bool   `yaml:"watch"`
}

type DispatchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type ReadConfig struct {
	Confine bool `yaml:"confine"`
}

type AuditConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OpsConfig holds the fixed collaborator inputs of the operation handlers.
type OpsConfig struct {
	UserEmail      string        `yaml:"user_email"`
	DatagenScript  string        `yaml:"datagen_script"`
	APIURL         string        `yaml:"api_url"`
	RepoURL        string        `yaml:"repo_url"`
	ScrapeURL      string        `yaml:"scrape_url"`
	SQLQuery       string        `yaml:"sql_query"`
	FilterCategory string        `yaml:"filter_category"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
}

// ModelConfig configures the Gemini backend. An empty APIKey disables it.
type ModelConfig struct {
	APIKey         string `yaml:"api_key"`
	Name           string `yaml:"name"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// EnvFiles are the dotenv files Load consults, first found wins.
var EnvFiles = []string{".env"}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ShutdownTimeout: 5 * time.Second,
		},
		Sandbox: SandboxConfig{
			Root: "/data",
		},
		Dispatch: DispatchConfig{
			Timeout: 2 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Ops: OpsConfig{
			UserEmail:      "user@example.com",
			DatagenScript:  "datagen.py",
			APIURL:         "https://api.example.com/data",
			RepoURL:        "https://github.com/example/repo.git",
			ScrapeURL:      "https://example.com",
			SQLQuery:       "SELECT * FROM table_name",
			FilterCategory: "desired_category",
			HTTPTimeout:    30 * time.Second,
		},
		Model: ModelConfig{
			Name:           "gemini-2.5-flash",
			EmbeddingModel: "gemini-embedding-001",
		},
	}
}

// Load builds the configuration. An empty path or a missing file skips the
// YAML layer; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for _, p := range EnvFiles {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	// GEMINI_API_KEY comes before TASKGATE_MODEL_API_KEY so the latter wins.
	for _, o := range []struct {
		key string
		dst *string
	}{
		{"TASKGATE_ADDR", &c.Server.Addr},
		{"TASKGATE_ROOT", &c.Sandbox.Root},
		{"TASKGATE_DENY_RULES", &c.Sandbox.DenyRules},
		{"TASKGATE_AUDIT_LOG", &c.Audit.Path},
		{"TASKGATE_LOG_LEVEL", &c.Log.Level},
		{"TASKGATE_LOG_FORMAT", &c.Log.Format},
		{"TASKGATE_USER_EMAIL", &c.Ops.UserEmail},
		{"TASKGATE_API_URL", &c.Ops.APIURL},
		{"TASKGATE_REPO_URL", &c.Ops.RepoURL},
		{"TASKGATE_SCRAPE_URL", &c.Ops.ScrapeURL},
		{"TASKGATE_SQL_QUERY", &c.Ops.SQLQuery},
		{"TASKGATE_FILTER_CATEGORY", &c.Ops.FilterCategory},
		{"TASKGATE_MODEL", &c.Model.Name},
		{"GEMINI_API_KEY", &c.Model.APIKey},
		{"TASKGATE_MODEL_API_KEY", &c.Model.APIKey},
	} {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}

	if v := os.Getenv("TASKGATE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TASKGATE_TIMEOUT: %w", err)
		}
		c.Dispatch.Timeout = d
	}
	if v := os.Getenv("TASKGATE_RUN_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TASKGATE_RUN_LIMIT: %w", err)
		}
		c.Server.RunLimit.MaxRequests = n
	}
	if v := os.Getenv("TASKGATE_RUN_LIMIT_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TASKGATE_RUN_LIMIT_WINDOW: %w", err)
		}
		c.Server.RunLimit.Window = d
	}
	for key, dst := range map[string]*bool{
		"TASKGATE_READ_CONFINE": &c.Read.Confine,
		"TASKGATE_WATCH_RULES":  &c.Sandbox.Watch,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if !filepath.IsAbs(c.Sandbox.Root) {
		errs = append(errs, fmt.Errorf("sandbox.root must be absolute, got %q", c.Sandbox.Root))
	}
	if c.Dispatch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.timeout must be positive, got %s", c.Dispatch.Timeout))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if c.Server.RunLimit.MaxRequests < 0 || c.Server.RunLimit.Window < 0 {
		errs = append(errs, fmt.Errorf("server.run_limit must not be negative, got %d per %s",
			c.Server.RunLimit.MaxRequests, c.Server.RunLimit.Window))
	}
	if c.Ops.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ops.http_timeout must be positive, got %s", c.Ops.HTTPTimeout))
	}
	return errors.Join(errs...)
}
