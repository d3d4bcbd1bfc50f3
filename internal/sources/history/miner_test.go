package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"fpsync/internal/extract"
	"fpsync/internal/historycache"
	"fpsync/internal/sources"
)

type stubGit struct {
	mu      sync.Mutex
	outputs map[string]string
	calls   map[string]int
}

func newStubGit(outputs map[string]string) *stubGit {
	return &stubGit{outputs: outputs, calls: make(map[string]int)}
}

func (s *stubGit) Output(ctx context.Context, dir, binary string, args []string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(args) > 0 {
		s.calls[args[0]]++
	}
	out, ok := s.outputs[strings.Join(args, " ")]
	if !ok {
		return nil, errors.New("unexpected git call: " + strings.Join(args, " "))
	}
	return []byte(out), nil
}

func setupRepo(t *testing.T) (string, string) {
	t.Helper()
	top := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(top); err == nil {
		top = resolved
	}
	corpus := filepath.Join(top, "drivers")
	if err := os.MkdirAll(corpus, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return top, corpus
}

func gitOutputs(top string) map[string]string {
	out := make(map[string]string)
	out["rev-parse --show-toplevel"] = top + "\n"
	out["log --format=%H --reverse -- drivers"] = "r1\nr2\n"
	out["ls-tree -r r1 -- drivers"] = "100644 blob b1\tdrivers/switch/driver.json\n"
	out["ls-tree -r r2 -- drivers"] = "100644 blob b2\tdrivers/switch/driver.json\n" +
		"100644 blob b3\tdrivers/broken/driver.json\n" +
		"100644 blob b4\tdrivers/switch/icon.svg\n"
	out["cat-file blob b1"] = `{"id":"switch","manufacturerTokens":["_TZ3000_aaaaaaaa"],"productTokens":["TS0012"]}`
	out["cat-file blob b2"] = `{"id":"switch","manufacturerTokens":["_TZ3000_aaaaaaaa","_TZ3000_bbbbbbbb","junk"],"productTokens":["TS0012"]}`
	out["cat-file blob b3"] = `{"id":`
	return out
}

func TestCollectEmitsEachPairOnceOldestFirst(t *testing.T) {
	top, corpus := setupRepo(t)
	cache, err := historycache.Open("", nil)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	git := newStubGit(gitOutputs(top))
	miner, err := New(corpus, cache, WithExecutor(git))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := miner.Collect(context.Background(), sources.Budget{})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	var got []string
	for _, f := range res.Findings {
		if f.RecordID != "switch" {
			t.Fatalf("expected record id switch, got %q", f.RecordID)
		}
		extracted := extract.Extract(f)
		if !extracted.Accepted() {
			t.Fatalf("expected history finding to extract cleanly: %q", f.RawText)
		}
		got = append(got, extracted.ExtractedPair.String()+"@"+f.OriginID)
	}
	want := []string{
		"_TZ3000_aaaaaaaa/TS0012@r1:drivers/switch/driver.json",
		"_TZ3000_bbbbbbbb/TS0012@r2:drivers/switch/driver.json",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("findings mismatch (-want +got):\n%s", diff)
	}

	// A second pass is served from the cache.
	git.calls = make(map[string]int)
	again := miner.Collect(context.Background(), sources.Budget{})
	if len(again.Findings) != 2 {
		t.Fatalf("expected same findings on second pass, got %d", len(again.Findings))
	}
	if git.calls["cat-file"] != 0 || git.calls["ls-tree"] != 0 {
		t.Fatalf("expected cached objects, got calls %v", git.calls)
	}
}

func TestCollectRespectsMaxItems(t *testing.T) {
	top, corpus := setupRepo(t)
	cache, err := historycache.Open("", nil)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	miner, err := New(corpus, cache, WithExecutor(newStubGit(gitOutputs(top))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := miner.Collect(context.Background(), sources.Budget{MaxItems: 1})
	if len(res.Findings) != 1 || !res.Truncated {
		t.Fatalf("expected one truncated finding, got %d truncated=%v", len(res.Findings), res.Truncated)
	}
}

func TestCollectReportsMissingRepository(t *testing.T) {
	_, corpus := setupRepo(t)
	cache, err := historycache.Open("", nil)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	miner, err := New(corpus, cache, WithExecutor(newStubGit(map[string]string{})))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := miner.Collect(context.Background(), sources.Budget{})
	if !errors.Is(res.Err, sources.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", res.Err)
	}
	if len(res.Findings) != 0 {
		t.Fatalf("expected no findings, got %d", len(res.Findings))
	}
}

func TestParseTreeKeepsJSONBlobs(t *testing.T) {
	out := []byte("100644 blob aa\tdrivers/a/driver.json\n040000 tree bb\tdrivers/a\n100644 blob cc\tdrivers/a/x.png\n")
	got := parseTree(out)
	want := []historycache.TreeEntry{{Path: "drivers/a/driver.json", Blob: "aa"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
}
