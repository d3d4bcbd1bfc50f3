package historycache

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"fpsync/internal/device"
)

func TestBlobAndTreeRoundTripAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cache, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	blob := BlobEntry{
		RecordID: "wall_switch",
		Pairs:    []device.IdentifierPair{device.NewIdentifierPair("_TZ3000_gjnozsaz", "TS0012")},
	}
	if err := cache.StoreBlob("abc123", blob); err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}
	tree := []TreeEntry{{Path: "drivers/wall_switch/driver.json", Blob: "abc123"}}
	if err := cache.StoreTree("rev1", "drivers", tree); err != nil {
		t.Fatalf("StoreTree: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	gotBlob, ok := reopened.LookupBlob("abc123")
	if !ok {
		t.Fatal("expected blob hit after reopen")
	}
	if diff := cmp.Diff(blob, gotBlob); diff != "" {
		t.Fatalf("blob mismatch (-want +got):\n%s", diff)
	}
	gotTree, ok := reopened.LookupTree("rev1", "drivers")
	if !ok {
		t.Fatal("expected tree hit after reopen")
	}
	if diff := cmp.Diff(tree, gotTree); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
	if _, ok := reopened.LookupBlob("missing"); ok {
		t.Fatal("unexpected hit")
	}

	stats, err := reopened.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Blobs != 1 || stats.Trees != 1 || !stats.Persistent || stats.Hits != 2 || stats.Misses != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestInMemoryCacheAndClear(t *testing.T) {
	cache, err := Open("", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cache.Close()

	if err := cache.StoreBlob("h1", BlobEntry{Unparseable: true}); err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}
	if err := cache.StoreTree("rev", "drivers", nil); err != nil {
		t.Fatalf("StoreTree: %v", err)
	}
	entries, ok := cache.LookupTree("rev", "drivers")
	if !ok || len(entries) != 0 {
		t.Fatalf("expected empty tree hit, got %v %v", entries, ok)
	}
	if err := cache.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	stats, err := cache.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Blobs != 0 || stats.Trees != 0 || stats.Persistent {
		t.Fatalf("expected empty in-memory cache, got %+v", stats)
	}
	if err := cache.StoreBlob("", BlobEntry{}); err == nil {
		t.Fatal("expected empty hash to fail")
	}
}
