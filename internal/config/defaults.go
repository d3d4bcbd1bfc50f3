package config

const (
	defaultConfigPath            = "~/.config/fpsync/config.toml"
	defaultCorpusDir             = "drivers"
	defaultStateDir              = "~/.local/share/fpsync"
	defaultGitBinary             = "git"
	defaultWebConcurrency        = 4
	defaultWebRequestIntervalMS  = 750
	defaultWebRequestTimeout     = 20
	defaultWebUserAgent          = "fpsync/dev (+fingerprint reconciliation)"
	defaultWebMaxBodyBytes       = 4 << 20
	defaultIssuesBaseURL         = "https://api.github.com"
	defaultIssuesConcurrency     = 3
	defaultIssuesIntervalMS      = 500
	defaultIssuesRequestTimeout  = 20
	defaultIssuesPerPage         = 100
	defaultIssuesMaxPages        = 10
	defaultMergeCap              = 50
	defaultRunBudgetSeconds      = 900
	defaultMaxFindingsPerSource  = 20000
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultNotifyRequestTimeout  = 10
	defaultMQTTTopic             = "fpsync/runs"
	defaultMQTTClientID          = "fpsync"
	defaultMQTTTimeoutSeconds    = 10
	defaultInfluxBucket          = "fpsync"
	maxConcurrency               = 16
	maxIssuesPerPage             = 100
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CorpusDir: defaultCorpusDir,
			StateDir:  defaultStateDir,
		},
		History: History{
			Enabled:   true,
			GitBinary: defaultGitBinary,
		},
		Web: Web{
			Enabled:           true,
			Concurrency:       defaultWebConcurrency,
			RequestIntervalMS: defaultWebRequestIntervalMS,
			RequestTimeout:    defaultWebRequestTimeout,
			UserAgent:         defaultWebUserAgent,
			MaxBodyBytes:      defaultWebMaxBodyBytes,
		},
		Issues: Issues{
			Enabled:           true,
			BaseURL:           defaultIssuesBaseURL,
			Concurrency:       defaultIssuesConcurrency,
			RequestIntervalMS: defaultIssuesIntervalMS,
			RequestTimeout:    defaultIssuesRequestTimeout,
			PerPage:           defaultIssuesPerPage,
			MaxPages:          defaultIssuesMaxPages,
			IncludeReleases:   true,
			IncludePulls:      true,
		},
		Merge: Merge{
			Cap: defaultMergeCap,
		},
		Run: Run{
			BudgetSeconds:        defaultRunBudgetSeconds,
			MaxFindingsPerSource: defaultMaxFindingsPerSource,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			OnSuccess:      true,
			OnFailure:      true,
		},
		MQTT: MQTT{
			Topic:          defaultMQTTTopic,
			ClientID:       defaultMQTTClientID,
			TimeoutSeconds: defaultMQTTTimeoutSeconds,
		},
		Metrics: Metrics{
			InfluxBucket: defaultInfluxBucket,
		},
	}
}
