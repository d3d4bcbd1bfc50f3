package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"fpsync/internal/config"
	"fpsync/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckGitRepository verifies that dir sits inside a git work tree.
func CheckGitRepository(ctx context.Context, gitBinary, dir string) Result {
	const name = "Corpus history"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(checkCtx, gitBinary, "-C", dir, "rev-parse", "--is-inside-work-tree").Output()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s is not a git work tree (%v)", dir, err)}
	}
	if strings.TrimSpace(string(out)) != "true" {
		return Result{Name: name, Detail: fmt.Sprintf("%s is not a git work tree", dir)}
	}
	return Result{Name: name, Passed: true, Detail: "git history available"}
}

// CheckIssuesAPI verifies the issue tracker API is reachable and, when a
// token is configured, that it authenticates.
func CheckIssuesAPI(ctx context.Context, baseURL, token string) Result {
	const name = "Issue tracker API"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing base url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/rate_limit", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		detail := "Reachable"
		if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
			detail = fmt.Sprintf("Reachable (%s requests remaining)", remaining)
		}
		if token == "" {
			detail += ", unauthenticated"
		}
		return Result{Name: name, Passed: true, Detail: detail}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid token)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%d)", resp.StatusCode)}
	}
}

// CheckSystemDeps evaluates the binaries required by enabled collectors.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	if cfg == nil || !cfg.History.Enabled {
		return nil
	}
	return []deps.Status{deps.CheckGit(ctx, cfg.History.GitBinary)}
}
