package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"fpsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Network collectors are disabled so tests never leave the machine unless an
// option points them at a test server.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.CorpusDir = filepath.Join(base, "corpus")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.History.Enabled = false
	cfgVal.Web.Enabled = false
	cfgVal.Issues.Enabled = false
	cfgVal.Web.RequestIntervalMS = 0
	cfgVal.Issues.RequestIntervalMS = 0
	cfgVal.Run.BudgetSeconds = 30

	if err := os.MkdirAll(cfgVal.Paths.CorpusDir, 0o755); err != nil {
		t.Fatalf("mkdir corpus: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithMergeCap sets the per-record growth cap.
func WithMergeCap(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Merge.Cap = limit
	}
}

// WithIssuesServer enables the issue tracker collector against baseURL.
func WithIssuesServer(baseURL string, repos ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Issues.Enabled = true
		b.cfg.Issues.BaseURL = baseURL
		b.cfg.Issues.Token = "test-token"
		if len(repos) > 0 {
			b.writeSources(nil, nil, repos)
		}
	}
}

// WithWebPages enables the web collector against the given catalog URLs.
func WithWebPages(catalogURLs []string, searchTemplates []string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Web.Enabled = true
		b.writeSources(catalogURLs, searchTemplates, nil)
	}
}

// WithHistory enables the history collector with a persistent cache under
// the temp directory.
func WithHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = true
		b.cfg.History.CacheDir = filepath.Join(b.baseDir, "cache", "history")
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, git is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"git"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// writeSources merges the given entries into a sources.yaml under the temp
// directory and points the config at it.
func (b *configBuilder) writeSources(catalogURLs, templates, repos []string) {
	path := filepath.Join(b.baseDir, "sources.yaml")
	catalog := &config.SourceCatalog{}
	if b.cfg.Paths.SourcesFile != "" {
		existing, err := config.LoadSourceCatalog(b.cfg.Paths.SourcesFile)
		if err != nil {
			b.t.Fatalf("reload test sources: %v", err)
		}
		catalog = existing
	}
	for i, u := range catalogURLs {
		catalog.Catalogs = append(catalog.Catalogs, config.CatalogPage{Name: "catalog-" + string(rune('a'+i)), URL: u})
	}
	for i, u := range templates {
		catalog.SearchTemplates = append(catalog.SearchTemplates, config.SearchTemplate{Name: "search-" + string(rune('a'+i)), URL: u})
	}
	catalog.Repositories = append(catalog.Repositories, repos...)
	WriteSourceCatalog(b.t, path, catalog)
	b.cfg.Paths.SourcesFile = path
}
