package transcript

import (
	"time"

	"agenthooks/internal/eventlog"
)

// Invocation is a tool use tagged with the record that carried it.
type Invocation struct {
	eventlog.ToolUse
	Ordinal   int
	RecordID  string
	Timestamp time.Time
}

// DelegateInput holds the arguments of a delegate invocation.
type DelegateInput struct {
	SubagentType string `json:"subagent_type"`
	Prompt       string `json:"prompt"`
	Description  string `json:"description"`
}

// Delegate decodes the invocation as a delegate call. Invocations whose
// arguments cannot be decoded yield an empty DelegateInput.
func (inv Invocation) Delegate() DelegateInput {
	var in DelegateInput
	_ = inv.DecodeInput(&in)
	return in
}

// pathInput covers the argument names file tools use for their target.
type pathInput struct {
	FilePath     string `json:"file_path"`
	NotebookPath string `json:"notebook_path"`
	Path         string `json:"path"`
	Command      string `json:"command"`
}

// FilePath returns the path argument of a file tool, if any.
func (inv Invocation) FilePath() string {
	var in pathInput
	if err := inv.DecodeInput(&in); err != nil {
		return ""
	}
	switch {
	case in.FilePath != "":
		return in.FilePath
	case in.NotebookPath != "":
		return in.NotebookPath
	default:
		return in.Path
	}
}

// Command returns the shell command argument, if any.
func (inv Invocation) Command() string {
	var in pathInput
	if err := inv.DecodeInput(&in); err != nil {
		return ""
	}
	return in.Command
}
