package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCollectors(); err != nil {
		return err
	}
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateSinks(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.CorpusDir == "" {
		return errors.New("paths.corpus_dir must be set (or FPSYNC_CORPUS_DIR)")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateCollectors() error {
	if err := ensurePositiveMap(map[string]int{
		"web.concurrency":        c.Web.Concurrency,
		"web.request_timeout":    c.Web.RequestTimeout,
		"issues.concurrency":     c.Issues.Concurrency,
		"issues.request_timeout": c.Issues.RequestTimeout,
		"issues.per_page":        c.Issues.PerPage,
		"issues.max_pages":       c.Issues.MaxPages,
		"run.budget_seconds":     c.Run.BudgetSeconds,
	}); err != nil {
		return err
	}
	if c.Web.Concurrency > maxConcurrency || c.Issues.Concurrency > maxConcurrency {
		return fmt.Errorf("collector concurrency must not exceed %d", maxConcurrency)
	}
	if c.Issues.PerPage > maxIssuesPerPage {
		return fmt.Errorf("issues.per_page must not exceed %d", maxIssuesPerPage)
	}
	if c.Web.RequestIntervalMS < 0 || c.Issues.RequestIntervalMS < 0 {
		return errors.New("request_interval_ms must not be negative")
	}
	if c.History.MaxRevisions < 0 {
		return errors.New("history.max_revisions must not be negative")
	}
	if c.Run.MaxFindingsPerSource < 0 {
		return errors.New("run.max_findings_per_source must not be negative")
	}
	if c.Issues.Enabled && !strings.HasPrefix(c.Issues.BaseURL, "http") {
		return fmt.Errorf("issues.base_url must be an http(s) url, got %q", c.Issues.BaseURL)
	}
	return nil
}

func (c *Config) validateMerge() error {
	if c.Merge.Cap <= 0 {
		return errors.New("merge.cap must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateSinks() error {
	if c.Notifications.NtfyTopic != "" && c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.broker must be set when mqtt.enabled is true")
		}
		if c.MQTT.TimeoutSeconds <= 0 {
			return errors.New("mqtt.timeout_seconds must be positive")
		}
	}
	if c.Metrics.InfluxURL != "" {
		if c.Metrics.InfluxOrg == "" || c.Metrics.InfluxBucket == "" {
			return errors.New("metrics.influx_org and metrics.influx_bucket must be set when metrics.influx_url is set")
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
