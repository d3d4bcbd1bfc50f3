package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeHistory()
	c.normalizeWeb()
	c.normalizeIssues()
	c.normalizeLogging()
	c.normalizeSinks()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("FPSYNC_CORPUS_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.CorpusDir = value
	}
	var err error
	if c.Paths.CorpusDir, err = expandPath(strings.TrimSpace(c.Paths.CorpusDir)); err != nil {
		return fmt.Errorf("paths.corpus_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.SourcesFile, err = expandPath(strings.TrimSpace(c.Paths.SourcesFile)); err != nil {
		return fmt.Errorf("paths.sources_file: %w", err)
	}
	if c.History.CacheDir, err = expandPath(strings.TrimSpace(c.History.CacheDir)); err != nil {
		return fmt.Errorf("history.cache_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeHistory() {
	c.History.GitBinary = strings.TrimSpace(c.History.GitBinary)
	if c.History.GitBinary == "" {
		c.History.GitBinary = defaultGitBinary
	}
}

func (c *Config) normalizeWeb() {
	c.Web.UserAgent = strings.TrimSpace(c.Web.UserAgent)
	if c.Web.UserAgent == "" {
		c.Web.UserAgent = defaultWebUserAgent
	}
	if c.Web.MaxBodyBytes <= 0 {
		c.Web.MaxBodyBytes = defaultWebMaxBodyBytes
	}
}

func (c *Config) normalizeIssues() {
	// The environment wins over the file so CI secrets never need to be written to disk.
	if value, ok := os.LookupEnv("GITHUB_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Issues.Token = value
	}
	c.Issues.Token = strings.TrimSpace(c.Issues.Token)
	c.Issues.BaseURL = strings.TrimRight(strings.TrimSpace(c.Issues.BaseURL), "/")
	if c.Issues.BaseURL == "" {
		c.Issues.BaseURL = defaultIssuesBaseURL
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeSinks() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if value, ok := os.LookupEnv("FPSYNC_MQTT_PASSWORD"); ok && value != "" {
		c.MQTT.Password = value
	}
	c.MQTT.Broker = strings.TrimSpace(c.MQTT.Broker)
	c.MQTT.Topic = strings.Trim(strings.TrimSpace(c.MQTT.Topic), "/")
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = defaultMQTTTopic
	}
	if strings.TrimSpace(c.MQTT.ClientID) == "" {
		c.MQTT.ClientID = defaultMQTTClientID
	}
	if value, ok := os.LookupEnv("INFLUX_TOKEN"); ok && value != "" {
		c.Metrics.InfluxToken = value
	}
	c.Metrics.InfluxURL = strings.TrimRight(strings.TrimSpace(c.Metrics.InfluxURL), "/")
	c.Metrics.TextfilePath = strings.TrimSpace(c.Metrics.TextfilePath)
}
