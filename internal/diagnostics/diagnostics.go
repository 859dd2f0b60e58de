// Package diagnostics synthesizes best-effort Event rows from a
// captured command's output text, generalizing the desire-mining
// categorizer's pattern-based approach (one regexp set per failure
// shape) from a single "environment need" category to the fuller set
// of event types a store's format-aware readers care about.
package diagnostics

import (
	"regexp"
	"strings"

	"github.com/scbrown/irs/internal/idgen"
	"github.com/scbrown/irs/internal/model"
)

// Event type constants this package may synthesize.
const (
	EventTypeMissingCommand = "missing_command"
	EventTypeCompileError   = "compile_error"
	EventTypeTestFailure    = "test_failure"
	EventTypePanic          = "panic"
)

var (
	reShellNotFound   = regexp.MustCompile(`(?:bash|sh|/bin/\w+):\s+(\S+):\s+(?:command )?not found`)
	reCmdNotFound     = regexp.MustCompile(`command not found:\s+(\S+)`)
	reNotFoundInPath  = regexp.MustCompile(`(\S+):\s+not found in PATH`)
	reExit127         = regexp.MustCompile(`exit (?:code |status )?127\b`)
	reCompileError    = regexp.MustCompile(`(?m)^(.+?):(\d+):(\d+)?:?\s*(?:fatal )?error:\s*(.+)$`)
	reTestFail        = regexp.MustCompile(`(?im)^(?:FAIL|--- FAIL:|FAILED)\s+(\S+)`)
	rePanic           = regexp.MustCompile(`(?m)^panic:\s*(.+)$`)
)

// Synthesize scans text (an attempt's combined or stderr output) and
// returns the events a heuristic reader would derive from it. It
// never fabricates an event type it can't pin to a concrete pattern
// match; absence of any match yields an empty, non-nil-error result.
func Synthesize(text string) []model.Event {
	var events []model.Event

	if cmd := missingCommand(text); cmd != "" {
		events = append(events, model.Event{
			ID:        idgen.New(),
			Severity:  model.SeverityError,
			EventType: EventTypeMissingCommand,
			Message:   "command not found: " + cmd,
			ErrorCode: "ENOENT",
			ToolName:  cmd,
		})
	}

	for _, m := range reCompileError.FindAllStringSubmatch(text, -1) {
		events = append(events, model.Event{
			ID:        idgen.New(),
			Severity:  model.SeverityError,
			EventType: EventTypeCompileError,
			RefFile:   m[1],
			RefLine:   atoi(m[2]),
			RefColumn: atoi(m[3]),
			Message:   strings.TrimSpace(m[4]),
		})
	}

	for _, m := range reTestFail.FindAllStringSubmatch(text, -1) {
		events = append(events, model.Event{
			ID:         idgen.New(),
			Severity:   model.SeverityError,
			EventType:  EventTypeTestFailure,
			TestName:   m[1],
			TestStatus: "failed",
			Message:    "test failed: " + m[1],
		})
	}

	if m := rePanic.FindStringSubmatch(text); m != nil {
		events = append(events, model.Event{
			ID:        idgen.New(),
			Severity:  model.SeverityError,
			EventType: EventTypePanic,
			Message:   strings.TrimSpace(m[1]),
		})
	}

	return events
}

// missingCommand detects "command not found"/exit-127 style failures
// and extracts the offending command name where possible.
func missingCommand(text string) string {
	if m := reShellNotFound.FindStringSubmatch(text); len(m) >= 2 {
		return m[1]
	}
	if m := reCmdNotFound.FindStringSubmatch(text); len(m) >= 2 {
		return m[1]
	}
	if m := reNotFoundInPath.FindStringSubmatch(text); len(m) >= 2 {
		return m[1]
	}
	if reExit127.MatchString(text) {
		return "(unknown)"
	}
	return ""
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
