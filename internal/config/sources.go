package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed sources.yaml
var defaultSources []byte

// TokenPlaceholder is substituted with a query-escaped product token in search templates.
const TokenPlaceholder = "{token}"

var repositoryPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// CatalogPage is a fixed page fetched once per run.
type CatalogPage struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// SearchTemplate is a URL containing TokenPlaceholder.
type SearchTemplate struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// SourceCatalog lists the external locations the web and issue tracker
// collectors query.
type SourceCatalog struct {
	Catalogs        []CatalogPage    `yaml:"catalogs"`
	SearchTemplates []SearchTemplate `yaml:"search_templates"`
	Repositories    []string         `yaml:"repositories"`
}

// LoadSourceCatalog reads the catalog from path, or the embedded default when
// path is empty.
func LoadSourceCatalog(path string) (*SourceCatalog, error) {
	data := defaultSources
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read source catalog: %w", err)
		}
		data = raw
	}
	return ParseSourceCatalog(data)
}

// ParseSourceCatalog decodes and validates a YAML catalog document.
func ParseSourceCatalog(data []byte) (*SourceCatalog, error) {
	var catalog SourceCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse source catalog: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// Validate checks URLs, template placeholders and repository identifiers.
func (s *SourceCatalog) Validate() error {
	var problems []error
	for i, page := range s.Catalogs {
		if err := checkHTTPURL(page.URL); err != nil {
			problems = append(problems, fmt.Errorf("catalogs[%d] %q: %w", i, page.Name, err))
		}
	}
	for i, tmpl := range s.SearchTemplates {
		if !strings.Contains(tmpl.URL, TokenPlaceholder) {
			problems = append(problems, fmt.Errorf("search_templates[%d] %q: missing %s placeholder", i, tmpl.Name, TokenPlaceholder))
			continue
		}
		if err := checkHTTPURL(strings.ReplaceAll(tmpl.URL, TokenPlaceholder, "TS0601")); err != nil {
			problems = append(problems, fmt.Errorf("search_templates[%d] %q: %w", i, tmpl.Name, err))
		}
	}
	for i, repo := range s.Repositories {
		if !repositoryPattern.MatchString(repo) {
			problems = append(problems, fmt.Errorf("repositories[%d]: %q is not owner/name", i, repo))
		}
	}
	return errors.Join(problems...)
}

// Expand substitutes token into the template URL.
func (t SearchTemplate) Expand(token string) string {
	return strings.ReplaceAll(t.URL, TokenPlaceholder, url.QueryEscape(token))
}

func checkHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
