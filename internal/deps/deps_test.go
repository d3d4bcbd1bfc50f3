package deps

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestProbe(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub")
	}
	present := filepath.Join(t.TempDir(), "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	tests := []struct {
		name      string
		binary    string
		available bool
		detail    string
	}{
		{name: "present", binary: present, available: true},
		{name: "missing", binary: "clearly-not-present-binary", detail: `binary "clearly-not-present-binary" not found`},
		{name: "blank", binary: "  ", detail: "command not configured"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status := Probe(context.Background(), tc.name, tc.binary)
			if status.Available != tc.available || status.Detail != tc.detail {
				t.Fatalf("unexpected status %#v", status)
			}
		})
	}
}

func TestCheckGitReportsVersion(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub")
	}
	stub := filepath.Join(t.TempDir(), "git")
	script := []byte("#!/bin/sh\nprintf 'git version 2.45.1\\nextra\\n'\n")
	if err := os.WriteFile(stub, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	status := CheckGit(context.Background(), stub)
	if !status.Available {
		t.Fatalf("expected git available, got %#v", status)
	}
	if status.Detail != "git version 2.45.1" {
		t.Fatalf("unexpected detail: %q", status.Detail)
	}
}

func TestCheckGitFailingBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub")
	}
	stub := filepath.Join(t.TempDir(), "git")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 3\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	status := CheckGit(context.Background(), stub)
	if status.Available || status.Detail == "" {
		t.Fatalf("expected failure with detail, got %#v", status)
	}
}

func TestCheckGitMissing(t *testing.T) {
	status := CheckGit(context.Background(), "clearly-not-present-git")
	if status.Available {
		t.Fatal("expected missing git to be unavailable")
	}
}
