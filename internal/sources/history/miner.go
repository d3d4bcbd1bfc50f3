// Package history mines the version-control history of the record corpus
// for identifier pairs that were once present in a record.
package history

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fpsync/internal/device"
	"fpsync/internal/historycache"
	"fpsync/internal/logging"
	"fpsync/internal/sources"
)

const sourceName = string(device.SourceHistory)

// Miner walks every revision touching the corpus directory, oldest first,
// and emits one finding per identifier pair per record the first time the
// pair is seen.
type Miner struct {
	binary       string
	corpusDir    string
	cache        *historycache.Cache
	exec         Executor
	maxRevisions int
	logger       *slog.Logger
}

var _ sources.Collector = (*Miner)(nil)

// Option configures a Miner.
type Option func(*Miner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(m *Miner) {
		if exec != nil {
			m.exec = exec
		}
	}
}

// WithBinary overrides the git binary.
func WithBinary(binary string) Option {
	return func(m *Miner) {
		if strings.TrimSpace(binary) != "" {
			m.binary = strings.TrimSpace(binary)
		}
	}
}

// WithMaxRevisions limits mining to the most recent n revisions.
func WithMaxRevisions(n int) Option {
	return func(m *Miner) {
		if n > 0 {
			m.maxRevisions = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Miner) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a miner for corpusDir. The cache is owned by the caller and
// must stay open until Collect returns.
func New(corpusDir string, cache *historycache.Cache, opts ...Option) (*Miner, error) {
	corpusDir = strings.TrimSpace(corpusDir)
	if corpusDir == "" {
		return nil, errors.New("corpus directory required")
	}
	if cache == nil {
		return nil, errors.New("history cache required")
	}
	m := &Miner{
		binary:    "git",
		corpusDir: corpusDir,
		cache:     cache,
		exec:      commandExecutor{},
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "history")
	return m, nil
}

// Source identifies the collector.
func (m *Miner) Source() device.Source {
	return device.SourceHistory
}

// Collect mines history within budget.
func (m *Miner) Collect(ctx context.Context, budget sources.Budget) sources.Result {
	started := time.Now()
	if budget.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget.Timeout)
		defer cancel()
	}
	acc := sources.NewAccumulator(budget)
	result := sources.Result{Source: device.SourceHistory}
	finish := func(err error) sources.Result {
		result.Findings, result.Truncated = acc.Findings()
		result.Err = err
		result.Duration = time.Since(started)
		return result
	}

	top, rel, err := m.locate(ctx)
	result.Requests++
	if err != nil {
		return finish(sources.Wrap(sources.ErrUnavailable, sourceName, "locate repository", m.corpusDir, err))
	}

	revisions, err := m.revisions(ctx, top, rel)
	result.Requests++
	if err != nil {
		if ctx.Err() != nil {
			acc.MarkTruncated()
			return finish(nil)
		}
		return finish(sources.Wrap(sources.ErrUnavailable, sourceName, "list revisions", rel, err))
	}

	failures := sources.NewFailures(sourceName)
	seen := make(map[string]struct{})
	parseErrors := 0
	attempted := 0

revisionLoop:
	for _, rev := range revisions {
		if ctx.Err() != nil {
			acc.MarkTruncated()
			break
		}
		entries, calls, err := m.tree(ctx, top, rev, rel)
		result.Requests += calls
		attempted++
		if err != nil {
			if ctx.Err() != nil {
				acc.MarkTruncated()
				break
			}
			failures.Add(sources.Wrap(sources.ErrUnavailable, sourceName, "list tree", rev, err))
			continue
		}
		for _, entry := range entries {
			blob, calls, err := m.blob(ctx, top, entry.Blob)
			result.Requests += calls
			if err != nil {
				if ctx.Err() != nil {
					acc.MarkTruncated()
					break revisionLoop
				}
				attempted++
				failures.Add(sources.Wrap(sources.ErrUnavailable, sourceName, "read blob", entry.Blob, err))
				continue
			}
			if blob.Unparseable {
				parseErrors++
				continue
			}
			for _, pair := range blob.Pairs {
				key := blob.RecordID + "\x00" + pair.String()
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				finding := device.SourceFinding{
					Source:   device.SourceHistory,
					OriginID: shortRevision(rev) + ":" + entry.Path,
					RecordID: blob.RecordID,
					RawText:  pair.ManufacturerToken + " " + pair.ProductToken,
				}
				if !acc.Add(finding) {
					break revisionLoop
				}
			}
		}
	}

	m.logger.Debug("history mined",
		logging.Int("revisions", len(revisions)),
		logging.Int("pairs", len(seen)),
		logging.Int("parse_errors", parseErrors))
	return finish(failures.Err(attempted))
}

// locate resolves the repository root and the corpus path relative to it.
func (m *Miner) locate(ctx context.Context) (string, string, error) {
	out, err := m.exec.Output(ctx, m.corpusDir, m.binary, []string{"rev-parse", "--show-toplevel"})
	if err != nil {
		return "", "", err
	}
	top := strings.TrimSpace(string(out))
	if top == "" {
		return "", "", errors.New("empty repository root")
	}
	rel, err := relativeTo(top, m.corpusDir)
	if err != nil {
		return "", "", err
	}
	return top, rel, nil
}

func relativeTo(top, dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(absDir); err == nil {
		absDir = resolved
	}
	if resolved, err := filepath.EvalSymlinks(top); err == nil {
		top = resolved
	}
	rel, err := filepath.Rel(top, absDir)
	if err != nil {
		return "", fmt.Errorf("corpus outside repository: %w", err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("corpus %s is outside repository %s", absDir, top)
	}
	return filepath.ToSlash(rel), nil
}

func (m *Miner) revisions(ctx context.Context, top, rel string) ([]string, error) {
	args := []string{"log", "--format=%H"}
	if m.maxRevisions > 0 {
		args = append(args, "-n", strconv.Itoa(m.maxRevisions))
	}
	args = append(args, "--reverse", "--", rel)
	out, err := m.exec.Output(ctx, top, m.binary, args)
	if err != nil {
		return nil, err
	}
	var revs []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			revs = append(revs, line)
		}
	}
	return revs, nil
}

func (m *Miner) tree(ctx context.Context, top, rev, rel string) ([]historycache.TreeEntry, int, error) {
	if entries, ok := m.cache.LookupTree(rev, rel); ok {
		return entries, 0, nil
	}
	out, err := m.exec.Output(ctx, top, m.binary, []string{"ls-tree", "-r", rev, "--", rel})
	if err != nil {
		return nil, 1, err
	}
	entries := parseTree(out)
	if err := m.cache.StoreTree(rev, rel, entries); err != nil {
		m.logger.Debug("tree not cached", logging.String("revision", rev), logging.Error(err))
	}
	return entries, 1, nil
}

// parseTree reads `git ls-tree -r` output and keeps JSON blobs.
func parseTree(out []byte) []historycache.TreeEntry {
	entries := []historycache.TreeEntry{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		meta, filePath, ok := strings.Cut(scanner.Text(), "\t")
		if !ok {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) != 3 || fields[1] != "blob" {
			continue
		}
		if !strings.EqualFold(path.Ext(filePath), ".json") {
			continue
		}
		entries = append(entries, historycache.TreeEntry{Path: filePath, Blob: fields[2]})
	}
	return entries
}

func (m *Miner) blob(ctx context.Context, top, hash string) (historycache.BlobEntry, int, error) {
	if entry, ok := m.cache.LookupBlob(hash); ok {
		return entry, 0, nil
	}
	out, err := m.exec.Output(ctx, top, m.binary, []string{"cat-file", "blob", hash})
	if err != nil {
		return historycache.BlobEntry{}, 1, err
	}
	entry := parseBlob(out)
	if err := m.cache.StoreBlob(hash, entry); err != nil {
		m.logger.Debug("blob not cached", logging.String("blob", hash), logging.Error(err))
	}
	return entry, 1, nil
}

// parseBlob extracts the record id and every manufacturer/product
// combination from a historical record document. Historical records are not
// schema checked; malformed tokens are simply ignored.
func parseBlob(data []byte) historycache.BlobEntry {
	var record device.DeviceRecord
	if err := json.Unmarshal(data, &record); err != nil || strings.TrimSpace(record.ID) == "" {
		return historycache.BlobEntry{Unparseable: true}
	}
	entry := historycache.BlobEntry{RecordID: record.ID}
	for _, mfr := range record.ManufacturerTokens.Values() {
		if !device.IsManufacturerToken(mfr) {
			continue
		}
		for _, product := range record.ProductTokens.Values() {
			if !device.IsProductToken(product) {
				continue
			}
			entry.Pairs = append(entry.Pairs, device.NewIdentifierPair(mfr, product))
		}
	}
	return entry
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
