package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"fpsync/internal/config"
)

// RecordFixture is a minimal record document for tests.
type RecordFixture struct {
	ID                 string   `json:"id"`
	Category           *string  `json:"category"`
	Class              string   `json:"class,omitempty"`
	ManufacturerTokens []string `json:"manufacturerTokens"`
	ProductTokens      []string `json:"productTokens"`
	Capabilities       []string `json:"capabilities"`
	Clusters           []int    `json:"clusters"`
}

// Category returns a pointer suitable for RecordFixture.Category.
func Category(value string) *string {
	return &value
}

// WriteRecord writes fixture to <dir>/<id>/driver.json and returns the path.
func WriteRecord(t testing.TB, dir string, fixture RecordFixture) string {
	t.Helper()

	if fixture.ManufacturerTokens == nil {
		fixture.ManufacturerTokens = []string{}
	}
	if fixture.ProductTokens == nil {
		fixture.ProductTokens = []string{}
	}
	if fixture.Capabilities == nil {
		fixture.Capabilities = []string{}
	}
	if fixture.Clusters == nil {
		fixture.Clusters = []int{}
	}
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		t.Fatalf("marshal fixture %s: %v", fixture.ID, err)
	}
	path := filepath.Join(dir, fixture.ID, "driver.json")
	WriteRaw(t, path, append(data, '\n'))
	return path
}

// WriteRaw writes data to path, creating parent directories.
func WriteRaw(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// ReadRecord decodes the raw JSON document at path.
func ReadRecord(t testing.TB, path string) map[string]any {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return doc
}

// WriteSourceCatalog writes catalog as YAML.
func WriteSourceCatalog(t testing.TB, path string, catalog *config.SourceCatalog) {
	t.Helper()

	data, err := yaml.Marshal(catalog)
	if err != nil {
		t.Fatalf("marshal source catalog: %v", err)
	}
	WriteRaw(t, path, data)
}
