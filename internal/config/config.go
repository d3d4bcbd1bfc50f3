package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	CorpusDir   string `toml:"corpus_dir"`
	StateDir    string `toml:"state_dir"`
	SourcesFile string `toml:"sources_file"`
}

// History configures the version-control history miner.
type History struct {
	Enabled      bool   `toml:"enabled"`
	GitBinary    string `toml:"git_binary"`
	CacheDir     string `toml:"cache_dir"`     // empty keeps the cache in memory for one run
	MaxRevisions int    `toml:"max_revisions"` // 0 walks every revision
}

// Web configures the catalog page fetcher.
type Web struct {
	Enabled           bool   `toml:"enabled"`
	Concurrency       int    `toml:"concurrency"`
	RequestIntervalMS int    `toml:"request_interval_ms"`
	RequestTimeout    int    `toml:"request_timeout"`
	UserAgent         string `toml:"user_agent"`
	MaxBodyBytes      int64  `toml:"max_body_bytes"`
}

// Issues configures the issue tracker fetcher.
type Issues struct {
	Enabled           bool   `toml:"enabled"`
	BaseURL           string `toml:"base_url"`
	Token             string `toml:"token"`
	Concurrency       int    `toml:"concurrency"`
	RequestIntervalMS int    `toml:"request_interval_ms"`
	RequestTimeout    int    `toml:"request_timeout"`
	PerPage           int    `toml:"per_page"`
	MaxPages          int    `toml:"max_pages"`
	IncludeReleases   bool   `toml:"include_releases"`
	IncludePulls      bool   `toml:"include_pulls"`
}

// Merge configures candidate acceptance.
type Merge struct {
	Cap      int  `toml:"cap"`
	Reverify bool `toml:"reverify"`
}

// Run configures the wall-clock budget of one reconciliation run.
type Run struct {
	BudgetSeconds        int `toml:"budget_seconds"`
	MaxFindingsPerSource int `toml:"max_findings_per_source"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	OnSuccess      bool   `toml:"on_success"`
	OnFailure      bool   `toml:"on_failure"`
}

// MQTT configures publication of run summaries to a broker.
type MQTT struct {
	Enabled        bool   `toml:"enabled"`
	Broker         string `toml:"broker"`
	Topic          string `toml:"topic"`
	ClientID       string `toml:"client_id"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Metrics configures run metric export.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
	InfluxURL    string `toml:"influx_url"`
	InfluxToken  string `toml:"influx_token"`
	InfluxOrg    string `toml:"influx_org"`
	InfluxBucket string `toml:"influx_bucket"`
}

// Config encapsulates all configuration values for fpsync.
//
// Configuration sections by subsystem:
//   - Paths: record corpus, state directory, source catalog override
//   - History, Web, Issues: the three collectors
//   - Merge: growth cap and category re-verification
//   - Run: wall-clock budget
//   - Logging: log format and level
//   - Notifications, MQTT, Metrics: optional run-summary sinks
type Config struct {
	Paths         Paths         `toml:"paths"`
	History       History       `toml:"history"`
	Web           Web           `toml:"web"`
	Issues        Issues        `toml:"issues"`
	Merge         Merge         `toml:"merge"`
	Run           Run           `toml:"run"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	MQTT          MQTT          `toml:"mqtt"`
	Metrics       Metrics       `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("fpsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state directory and, when configured, the
// persistent history cache directory. The corpus directory is never created:
// a missing corpus is a fatal run error.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.ReportsDir()}
	if c.History.CacheDir != "" {
		dirs = append(dirs, c.History.CacheDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ReportsDir is where JSON run reports are written.
func (c *Config) ReportsDir() string {
	return filepath.Join(c.Paths.StateDir, "reports")
}

// LockPath is the single-run lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "fpsync.lock")
}

// RunLogPath is the SQLite run ledger.
func (c *Config) RunLogPath() string {
	return filepath.Join(c.Paths.StateDir, "runs.db")
}

// RunBudget returns the wall-clock budget for one run.
func (c *Config) RunBudget() time.Duration {
	return time.Duration(c.Run.BudgetSeconds) * time.Second
}

// WebRequestInterval returns the minimum spacing between web requests.
func (c *Config) WebRequestInterval() time.Duration {
	return time.Duration(c.Web.RequestIntervalMS) * time.Millisecond
}

// IssuesRequestInterval returns the minimum spacing between issue tracker requests.
func (c *Config) IssuesRequestInterval() time.Duration {
	return time.Duration(c.Issues.RequestIntervalMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
