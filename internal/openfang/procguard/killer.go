//go:build !windows

// Package procguard implements a process-tree killer and a dual-timeout
// subprocess wait contract, for children that aren't wrapped in a
// container (MCP stdio servers, shell tools invoked directly).
package procguard

import (
	"errors"
	"os"
	"syscall"
	"time"
)

// MaxGraceMillis caps the grace period a caller may request.
const MaxGraceMillis = 60_000

// KillProcessTree sends a graceful signal to the process group, waits up to
// graceMillis (capped at MaxGraceMillis), then force-kills if the process is
// still alive. Returns whether the process was observed alive before
// termination began.
func KillProcessTree(pid int, graceMillis int) (wasAlive bool, err error) {
	if graceMillis > MaxGraceMillis {
		graceMillis = MaxGraceMillis
	}
	if graceMillis < 0 {
		graceMillis = 0
	}

	wasAlive = processAlive(pid)
	if !wasAlive {
		return false, nil
	}

	_ = signalGroup(pid, syscall.SIGTERM)

	deadline := time.Now().Add(time.Duration(graceMillis) * time.Millisecond)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return true, nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	if processAlive(pid) {
		_ = signalGroup(pid, syscall.SIGKILL)
		_ = signalPid(pid, syscall.SIGKILL)
	}
	return true, nil
}

func signalGroup(pid int, sig syscall.Signal) error {
	// Negative pid targets the whole process group, which exists only if
	// the child was started in its own group (Setpgid); otherwise this
	// signal fails and only the later SIGKILL of pid takes effect.
	return syscall.Kill(-pid, sig)
}

func signalPid(pid int, sig syscall.Signal) error {
	return syscall.Kill(pid, sig)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0: existence check only, no actual signal delivered.
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, os.ErrPermission)
}
