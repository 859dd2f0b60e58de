// Package recovery implements the Recovery Coordinator (C6): parsing
// runner-id liveness claims and transitioning abandoned in-flight
// attempts to the orphaned terminal state.
package recovery

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Liveness is the outcome of probing a runner id.
type Liveness int

const (
	// LivenessUnknown means the scheme cannot be probed directly; the
	// coordinator falls back to age alone.
	LivenessUnknown Liveness = iota
	LivenessAlive
	LivenessDead
)

// ProbeRunner classifies runnerID per the scheme table: pid:<n> is
// probed with a signal-0 kill(2); gha:run:<id> and k8s:pod:<name> (and
// any other scheme) are not probed and report LivenessUnknown.
func ProbeRunner(runnerID string) Liveness {
	scheme, rest, ok := strings.Cut(runnerID, ":")
	if !ok {
		return LivenessUnknown
	}
	if scheme != "pid" {
		return LivenessUnknown
	}
	pid, err := strconv.Atoi(rest)
	if err != nil || pid <= 0 {
		return LivenessUnknown
	}
	return probePID(pid)
}

// probePID sends signal 0, which performs error checking (does the
// process exist, do we have permission to signal it) without actually
// delivering a signal — the standard liveness-probe idiom.
func probePID(pid int) Liveness {
	err := unix.Kill(pid, 0)
	if err == nil {
		return LivenessAlive
	}
	if err == unix.ESRCH {
		return LivenessDead
	}
	if err == unix.EPERM {
		// process exists but we can't signal it: still alive.
		return LivenessAlive
	}
	return LivenessUnknown
}
