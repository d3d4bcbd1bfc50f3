package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const probeTimeout = 5 * time.Second

// Status reports whether an external binary can be used.
type Status struct {
	Name      string
	Command   string
	Available bool
	// Detail is the first line of the version output on success and the
	// failure reason otherwise.
	Detail string
}

// Probe resolves binary on PATH and, when versionArgs are given, runs it with
// them. A binary that resolves but exits non-zero is unavailable.
func Probe(ctx context.Context, name, binary string, versionArgs ...string) Status {
	status := Status{Name: name, Command: strings.TrimSpace(binary)}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	if len(versionArgs) == 0 {
		status.Available = true
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, versionArgs...).Output()
	if err != nil {
		status.Detail = fmt.Sprintf("%s %s failed: %v", status.Command, strings.Join(versionArgs, " "), err)
		return status
	}
	status.Available = true
	status.Detail, _, _ = strings.Cut(strings.TrimSpace(string(out)), "\n")
	return status
}

// CheckGit probes the git binary the history miner shells out to.
func CheckGit(ctx context.Context, binary string) Status {
	if strings.TrimSpace(binary) == "" {
		binary = "git"
	}
	return Probe(ctx, "git", binary, "--version")
}
