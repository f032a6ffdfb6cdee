// internal/config/config.go
//
// This package handles configuration and the .keyfactors directory structure.
// Every project that runs the workbench gets a .keyfactors/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// Dir is the name of the directory we create in each project.
	Dir = ".keyfactors"

	DefaultHost         = "127.0.0.1"
	DefaultPort         = 8765
	DefaultRateLimit    = 10.0
	DefaultBurst        = 5
	DefaultTimeoutSecs  = 15
	DefaultDebounceMS   = 400
	DefaultPreviewSecs  = 10
	DefaultLayout       = "detailed"
	DefaultLogLevel     = "info"
	defaultStorageFile  = "keyfactors.db"
	defaultFixturesPath = "fixtures"
)

const defaultProjectConfigYAML = `# key factors workbench configuration
version: 1

# Platform API. Point base_url at a running "keyfactors serve" or the real platform.
api:
  base_url: http://127.0.0.1:8765
  rate_limit: 10
  burst: 5
  timeout_seconds: 15

# Acting user for submissions and votes.
user:
  id: 1

# Local development server.
server:
  enabled: true
  host: 127.0.0.1
  port: 8765

storage:
  path: data/keyfactors.db

# YAML post descriptors and canned suggestions served by the local backend.
fixtures:
  dir: fixtures

preview:
  enabled: true
  debounce_ms: 400
  timeout_seconds: 10

workbench:
  post: 0
  layout: detailed

logging:
  level: info
`

// APIConfig points the workbench at a platform.
type APIConfig struct {
	BaseURL        string  `yaml:"base_url"`
	RateLimit      float64 `yaml:"rate_limit"`
	Burst          int     `yaml:"burst"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// UserConfig identifies the acting user.
type UserConfig struct {
	ID int64 `yaml:"id"`
}

// ServerConfig configures the local API server.
type ServerConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// FixturesConfig locates the fixtures directory.
type FixturesConfig struct {
	Dir string `yaml:"dir"`
}

// PreviewConfig tunes news preview fetching.
type PreviewConfig struct {
	Enabled        *bool `yaml:"enabled,omitempty"`
	DebounceMS     int   `yaml:"debounce_ms"`
	TimeoutSeconds int   `yaml:"timeout_seconds"`
}

// WorkbenchConfig holds TUI preferences.
type WorkbenchConfig struct {
	Post   int64  `yaml:"post"`
	Layout string `yaml:"layout"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ProjectConfig models .keyfactors/config.yaml.
type ProjectConfig struct {
	Version   int             `yaml:"version"`
	API       APIConfig       `yaml:"api"`
	User      UserConfig      `yaml:"user"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Fixtures  FixturesConfig  `yaml:"fixtures"`
	Preview   PreviewConfig   `yaml:"preview"`
	Workbench WorkbenchConfig `yaml:"workbench"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EnvOverrides are KEYFACTORS_* variables applied after the config file.
type EnvOverrides struct {
	APIURL        string  `env:"KEYFACTORS_API_URL"`
	UserID        int64   `env:"KEYFACTORS_USER_ID"`
	ServerEnabled *bool   `env:"KEYFACTORS_SERVER_ENABLED"`
	ServerHost    string  `env:"KEYFACTORS_SERVER_HOST"`
	ServerPort    int     `env:"KEYFACTORS_SERVER_PORT"`
	StoragePath   string  `env:"KEYFACTORS_STORAGE_PATH"`
	FixturesDir   string  `env:"KEYFACTORS_FIXTURES_DIR"`
	Post          int64   `env:"KEYFACTORS_POST"`
	Layout        string  `env:"KEYFACTORS_LAYOUT"`
	LogLevel      string  `env:"KEYFACTORS_LOG_LEVEL"`
	RateLimit     float64 `env:"KEYFACTORS_RATE_LIMIT"`
}

// Config holds the runtime configuration.
type Config struct {
	// ProjectDir is the directory the command ran from.
	ProjectDir string

	// StateDir is ProjectDir/.keyfactors
	StateDir string

	Project ProjectConfig
}

// InitDir creates the .keyfactors directory structure and writes the default
// config file when none exists.
//
// .keyfactors/
// ├── config.yaml
// ├── logs/
// ├── data/
// └── fixtures/
func InitDir(projectDir string) error {
	root := filepath.Join(projectDir, Dir)
	for _, dir := range []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "data"),
		filepath.Join(root, defaultFixturesPath),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig loads .keyfactors/config.yaml (if present) and applies
// environment overrides.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir: projectDir,
		StateDir:   filepath.Join(projectDir, Dir),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Project.normalize(cfg.StateDir)
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// StoragePath returns the SQLite database path.
func (c *Config) StoragePath() string {
	return c.Project.Storage.Path
}

// FixturesDir returns the fixtures directory.
func (c *Config) FixturesDir() string {
	return c.Project.Fixtures.Dir
}

// APITimeout returns the HTTP client timeout.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.Project.API.TimeoutSeconds) * time.Second
}

// PreviewEnabled reports whether news previews are fetched.
func (c *Config) PreviewEnabled() bool {
	return c.Project.Preview.Enabled == nil || *c.Project.Preview.Enabled
}

// PreviewDebounce returns the delay before a preview fetch starts.
func (c *Config) PreviewDebounce() time.Duration {
	return time.Duration(c.Project.Preview.DebounceMS) * time.Millisecond
}

// PreviewTimeout bounds a single article fetch.
func (c *Config) PreviewTimeout() time.Duration {
	return time.Duration(c.Project.Preview.TimeoutSeconds) * time.Second
}

// ServerEnabled reports whether the local server may start.
func (c *Config) ServerEnabled() bool {
	return c.Project.Server.Enabled == nil || *c.Project.Server.Enabled
}

// SetDefaultPost persists the post the workbench opens by default.
func (c *Config) SetDefaultPost(id int64) error {
	if id <= 0 {
		return fmt.Errorf("config: post id must be positive")
	}
	c.Project.Workbench.Post = id
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.Project = parsed
	return nil
}

func (c *Config) applyEnv() error {
	var overrides EnvOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	p := &c.Project
	if v := strings.TrimSpace(overrides.APIURL); v != "" {
		p.API.BaseURL = v
	}
	if overrides.UserID != 0 {
		p.User.ID = overrides.UserID
	}
	if overrides.ServerEnabled != nil {
		p.Server.Enabled = overrides.ServerEnabled
	}
	if v := strings.TrimSpace(overrides.ServerHost); v != "" {
		p.Server.Host = v
	}
	if isValidPort(overrides.ServerPort) {
		p.Server.Port = overrides.ServerPort
	}
	if v := strings.TrimSpace(overrides.StoragePath); v != "" {
		p.Storage.Path = v
	}
	if v := strings.TrimSpace(overrides.FixturesDir); v != "" {
		p.Fixtures.Dir = v
	}
	if overrides.Post > 0 {
		p.Workbench.Post = overrides.Post
	}
	if v := strings.TrimSpace(overrides.Layout); v != "" {
		p.Workbench.Layout = v
	}
	if v := strings.TrimSpace(overrides.LogLevel); v != "" {
		p.Logging.Level = v
	}
	if overrides.RateLimit > 0 {
		p.API.RateLimit = overrides.RateLimit
	}
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		API: APIConfig{
			BaseURL:        "http://127.0.0.1:8765",
			RateLimit:      DefaultRateLimit,
			Burst:          DefaultBurst,
			TimeoutSeconds: DefaultTimeoutSecs,
		},
		User:      UserConfig{ID: 1},
		Server:    ServerConfig{Host: DefaultHost, Port: DefaultPort},
		Storage:   StorageConfig{Path: filepath.Join("data", defaultStorageFile)},
		Fixtures:  FixturesConfig{Dir: defaultFixturesPath},
		Preview:   PreviewConfig{DebounceMS: DefaultDebounceMS, TimeoutSeconds: DefaultPreviewSecs},
		Workbench: WorkbenchConfig{Layout: DefaultLayout},
		Logging:   LoggingConfig{Level: DefaultLogLevel},
	}
}

func (pc *ProjectConfig) normalize(base string) {
	if pc.Version == 0 {
		pc.Version = 1
	}
	pc.API.BaseURL = strings.TrimRight(strings.TrimSpace(pc.API.BaseURL), "/")
	if pc.API.RateLimit <= 0 {
		pc.API.RateLimit = DefaultRateLimit
	}
	if pc.API.Burst <= 0 {
		pc.API.Burst = DefaultBurst
	}
	if pc.API.TimeoutSeconds <= 0 {
		pc.API.TimeoutSeconds = DefaultTimeoutSecs
	}
	pc.Server.Host = strings.TrimSpace(pc.Server.Host)
	if pc.Server.Host == "" {
		pc.Server.Host = DefaultHost
	}
	if !isValidPort(pc.Server.Port) {
		pc.Server.Port = DefaultPort
	}
	if strings.TrimSpace(pc.Storage.Path) == "" {
		pc.Storage.Path = filepath.Join("data", defaultStorageFile)
	}
	pc.Storage.Path = resolvePath(base, pc.Storage.Path)
	if strings.TrimSpace(pc.Fixtures.Dir) == "" {
		pc.Fixtures.Dir = defaultFixturesPath
	}
	pc.Fixtures.Dir = resolvePath(base, pc.Fixtures.Dir)
	if pc.Preview.DebounceMS < 0 {
		pc.Preview.DebounceMS = DefaultDebounceMS
	}
	if pc.Preview.TimeoutSeconds <= 0 {
		pc.Preview.TimeoutSeconds = DefaultPreviewSecs
	}
	pc.Workbench.Layout = strings.ToLower(strings.TrimSpace(pc.Workbench.Layout))
	if pc.Workbench.Layout == "" {
		pc.Workbench.Layout = DefaultLayout
	}
	pc.Logging.Level = strings.ToLower(strings.TrimSpace(pc.Logging.Level))
	if pc.Logging.Level == "" {
		pc.Logging.Level = DefaultLogLevel
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.API.BaseURL != "" {
		u, err := url.Parse(pc.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("api.base_url must be an http(s) URL")
		}
	}
	if pc.User.ID < 0 {
		return fmt.Errorf("user.id must not be negative")
	}
	if pc.Workbench.Post < 0 {
		return fmt.Errorf("workbench.post must not be negative")
	}
	switch pc.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}
	return nil
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure state dir: %w", err)
	}
	saved := c.Project
	saved.Storage.Path = relativeTo(c.StateDir, saved.Storage.Path)
	saved.Fixtures.Dir = relativeTo(c.StateDir, saved.Fixtures.Dir)
	data, err := yaml.Marshal(saved)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}

func relativeTo(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
