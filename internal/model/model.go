// Package model provides the data types shared by the transcript, store and
// lifecycle packages.
package model

import (
	"sort"
	"time"
)

// ContentBlock models a portion of a message payload.
type ContentBlock struct {
	Type string
	Text string
}

// UnknownAgentType is reported when no correlation strategy could resolve the
// subagent's type.
const UnknownAgentType = "unknown"

// StartContext is captured when a subagent starts and consumed when it stops.
type StartContext struct {
	AgentID     string    `json:"agentId"`
	AgentType   string    `json:"agentType"`
	SessionID   string    `json:"sessionId"`
	Timestamp   time.Time `json:"timestamp"`
	Prompt      string    `json:"prompt"`
	Description string    `json:"description,omitempty"`
	ToolUseID   string    `json:"toolUseId,omitempty"`
	CWD         string    `json:"cwd,omitempty"`
}

// FileOps holds the paths a transcript created, edited and deleted.
// Each map is used as a set.
type FileOps struct {
	Created map[string]struct{}
	Edited  map[string]struct{}
	Deleted map[string]struct{}
}

// NewFileOps returns an empty FileOps with allocated sets.
func NewFileOps() FileOps {
	return FileOps{
		Created: make(map[string]struct{}),
		Edited:  make(map[string]struct{}),
		Deleted: make(map[string]struct{}),
	}
}

// Empty reports whether no file operation was recorded.
func (f FileOps) Empty() bool {
	return len(f.Created) == 0 && len(f.Edited) == 0 && len(f.Deleted) == 0
}

// SortedPaths returns the members of set in lexical order.
func SortedPaths(set map[string]struct{}) []string {
	if len(set) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Result describes what a stopped subagent did and where it came from.
type Result struct {
	SessionID           string     `json:"sessionId"`
	AgentID             string     `json:"agentId"`
	TranscriptPath      string     `json:"transcriptPath"`
	AgentTranscriptPath string     `json:"agentTranscriptPath"`
	AgentType           string     `json:"agentType"`
	Prompt              string     `json:"prompt"`
	Description         string     `json:"description,omitempty"`
	ToolUseID           string     `json:"toolUseId,omitempty"`
	Strategy            string     `json:"strategy"`
	AgentFile           string     `json:"agentFile,omitempty"`
	SkillFiles          []string   `json:"skillFiles"`
	Created             []string   `json:"created"`
	Edited              []string   `json:"edited"`
	Deleted             []string   `json:"deleted"`
	StartedAt           *time.Time `json:"startedAt,omitempty"`
	StoppedAt           *time.Time `json:"stoppedAt,omitempty"`
}

// SetFileOps copies ops into the result as sorted slices.
func (r *Result) SetFileOps(ops FileOps) {
	r.Created = SortedPaths(ops.Created)
	r.Edited = SortedPaths(ops.Edited)
	r.Deleted = SortedPaths(ops.Deleted)
}

// DurationSeconds returns the wall-clock run time of the subagent, or 0 when
// either bound is unknown.
func (r *Result) DurationSeconds() int {
	if r.StartedAt == nil || r.StoppedAt == nil || r.StoppedAt.Before(*r.StartedAt) {
		return 0
	}
	return int(r.StoppedAt.Sub(*r.StartedAt).Seconds())
}

// SetTimes records the run bounds. A zero time leaves its bound unset.
func (r *Result) SetTimes(started, stopped time.Time) {
	r.StartedAt = timeOrNil(started)
	r.StoppedAt = timeOrNil(stopped)
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
