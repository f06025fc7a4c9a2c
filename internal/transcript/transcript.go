// Package transcript wraps parsed transcript records with the indices the
// correlation engine needs: subagent identity, tool invocations and delegates.
package transcript

import (
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"agenthooks/internal/eventlog"
)

// DefaultDelegateTools are the tool names that launch a subagent.
var DefaultDelegateTools = []string{"Task", "Agent", "Delegate"}

// subagentName matches "agent-<id>.<ext>" anchored at the start of a basename.
var subagentName = regexp.MustCompile(`^agent-([A-Za-z0-9_-]+)\.[A-Za-z0-9]+$`)

// SubagentIDFromPath extracts the subagent id from a transcript filename.
func SubagentIDFromPath(path string) (string, bool) {
	m := subagentName.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Transcript is the ordered record sequence read from one log file.
type Transcript struct {
	Path       string
	SubagentID string
	Records    []eventlog.Record

	delegateTools []string
	invocations   []Invocation
	indexed       bool
}

// Load reads the transcript at path.
func Load(path string) (*Transcript, error) {
	records, err := eventlog.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(path, records), nil
}

// New builds a transcript from already parsed records.
func New(path string, records []eventlog.Record) *Transcript {
	t := &Transcript{Path: path, Records: records, delegateTools: DefaultDelegateTools}
	if id, ok := SubagentIDFromPath(path); ok {
		t.SubagentID = id
	}
	return t
}

// WithDelegateTools overrides the tool names treated as delegate invocations.
func (t *Transcript) WithDelegateTools(names []string) *Transcript {
	if len(names) > 0 {
		t.delegateTools = names
	}
	return t
}

// IsSidechain reports whether this is a subagent's own transcript.
func (t *Transcript) IsSidechain() bool {
	return t.SubagentID != ""
}

// First returns the first record of the transcript.
func (t *Transcript) First() (eventlog.Record, bool) {
	if len(t.Records) == 0 {
		return eventlog.Record{}, false
	}
	return t.Records[0], true
}

// Last returns the last record of the transcript.
func (t *Transcript) Last() (eventlog.Record, bool) {
	if len(t.Records) == 0 {
		return eventlog.Record{}, false
	}
	return t.Records[len(t.Records)-1], true
}

// StartedAt is the timestamp of the first record, or the zero time.
func (t *Transcript) StartedAt() time.Time {
	if first, ok := t.First(); ok {
		return first.Timestamp
	}
	return time.Time{}
}

// FirstPrompt returns the text of the first user record.
func (t *Transcript) FirstPrompt() string {
	for _, rec := range t.Records {
		if rec.Kind != eventlog.KindUser {
			continue
		}
		if text := rec.Text(); text != "" {
			return text
		}
	}
	return ""
}

// Invocations returns every tool invocation in file order.
func (t *Transcript) Invocations() []Invocation {
	t.index()
	return t.invocations
}

// Delegates returns the invocations that launch subagents.
func (t *Transcript) Delegates() []Invocation {
	var out []Invocation
	for _, inv := range t.Invocations() {
		if t.IsDelegate(inv) {
			out = append(out, inv)
		}
	}
	return out
}

// IsDelegate reports whether inv launches a subagent.
func (t *Transcript) IsDelegate(inv Invocation) bool {
	return slices.Contains(t.delegateTools, inv.Name)
}

// FindInvocation returns the invocation with the given tool-use id.
func (t *Transcript) FindInvocation(id string) (Invocation, bool) {
	if id == "" {
		return Invocation{}, false
	}
	for _, inv := range t.Invocations() {
		if inv.ID == id {
			return inv, true
		}
	}
	return Invocation{}, false
}

func (t *Transcript) index() {
	if t.indexed {
		return
	}
	t.indexed = true
	for i := range t.Records {
		rec := &t.Records[i]
		for _, use := range rec.ToolUses {
			t.invocations = append(t.invocations, Invocation{
				ToolUse:   use,
				Ordinal:   len(t.invocations),
				RecordID:  rec.UUID,
				Timestamp: rec.Timestamp,
			})
		}
	}
}

// InvocationForAgent finds the delegate invocation whose result names agentID.
// The link only exists once the delegate has returned.
func (t *Transcript) InvocationForAgent(agentID string) (Invocation, bool) {
	if agentID == "" {
		return Invocation{}, false
	}
	for _, rec := range t.Records {
		for _, res := range rec.ToolResults {
			if res.AgentID == agentID {
				return t.FindInvocation(res.ToolUseID)
			}
		}
	}
	return Invocation{}, false
}
