package recordstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"fpsync/internal/device"
	"fpsync/internal/fileutil"
	"fpsync/internal/logging"
)

const recordFileMode = 0o644

// LoadProblem describes a corpus file that could not be loaded.
type LoadProblem struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

func (p LoadProblem) Error() string {
	return fmt.Sprintf("%s: %v", p.Path, p.Err)
}

// Store reads and writes the record corpus rooted at one directory.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	files map[string]string // record id -> file path
}

// New creates a store for dir. Nothing is read until Load.
func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		dir:    dir,
		logger: logging.NewComponentLogger(logger, "recordstore"),
		files:  make(map[string]string),
	}
}

// Dir returns the corpus directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load decodes every *.json file below the corpus directory. Records are
// returned sorted by id. The error is non-nil only when the directory itself
// cannot be read; it wraps fs.ErrNotExist when the directory is missing.
func (s *Store) Load() ([]*device.DeviceRecord, []LoadProblem, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("stat corpus: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("corpus %q is not a directory: %w", s.dir, fs.ErrNotExist)
	}

	var (
		records  []*device.DeviceRecord
		problems []LoadProblem
		files    = make(map[string]string)
	)
	walkErr := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.dir {
				return err
			}
			problems = append(problems, LoadProblem{Path: path, Err: err})
			return nil
		}
		if d.IsDir() {
			if path != s.dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			problems = append(problems, LoadProblem{Path: path, Err: err})
			return nil
		}
		record, err := Decode(data)
		if err != nil {
			problems = append(problems, LoadProblem{Path: path, Err: err})
			return nil
		}
		if prior, dup := files[record.ID]; dup {
			problems = append(problems, LoadProblem{
				Path: path,
				Err:  fmt.Errorf("%w: duplicate id %q (first seen in %s)", ErrSchema, record.ID, prior),
			})
			return nil
		}
		files[record.ID] = path
		records = append(records, record)
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("walk corpus: %w", walkErr)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	s.mu.Lock()
	s.files = files
	s.mu.Unlock()

	for _, problem := range problems {
		s.logger.Warn("record skipped",
			logging.String(logging.FieldEventType, "record_load_failed"),
			logging.String("path", problem.Path),
			logging.Error(problem.Err),
			logging.String(logging.FieldErrorHint, "fix the record file; it is left untouched"),
			logging.String(logging.FieldImpact, "record excluded from this run"))
	}
	s.logger.Debug("corpus loaded",
		logging.Int("records", len(records)),
		logging.Int("problems", len(problems)))
	return records, problems, nil
}

// Save validates record and atomically rewrites its file. A record that was
// not loaded from disk is written to <dir>/<id>.json.
func (s *Store) Save(record *device.DeviceRecord) error {
	if err := ValidateSchema(record); err != nil {
		return err
	}
	data, err := Encode(record)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", record.ID, err)
	}
	path := s.PathFor(record.ID)
	if err := fileutil.WriteFileAtomic(path, data, recordFileMode); err != nil {
		return fmt.Errorf("write record %s: %w", record.ID, err)
	}
	s.mu.Lock()
	s.files[record.ID] = path
	s.mu.Unlock()
	return nil
}

// PathFor returns the file backing id.
func (s *Store) PathFor(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path, ok := s.files[id]; ok {
		return path
	}
	return filepath.Join(s.dir, id+".json")
}

// Decode parses and validates one record document.
func Decode(data []byte) (*device.DeviceRecord, error) {
	var record device.DeviceRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if err := ValidateSchema(&record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Encode renders record as indented JSON with a trailing newline.
func Encode(record *device.DeviceRecord) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}
	compact, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
