// Package hook implements the stdin/stdout envelope Claude Code uses to talk
// to hook processes.
package hook

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"agenthooks/internal/model"

	json "github.com/goccy/go-json"
)

// MaxInputBytes caps how much of stdin is read. Hook payloads are small JSON objects.
const MaxInputBytes = 1 << 20

// Hook event names.
const (
	EventSubagentStart = "SubagentStart"
	EventSubagentStop  = "SubagentStop"
)

// ErrEmptyInput is returned when stdin carried no payload.
var ErrEmptyInput = errors.New("hook input is empty")

// Input is the JSON object Claude Code writes to a hook's stdin.
type Input struct {
	SessionID           string `json:"session_id"`
	TranscriptPath      string `json:"transcript_path"`
	CWD                 string `json:"cwd"`
	HookEventName       string `json:"hook_event_name"`
	AgentID             string `json:"agent_id"`
	AgentType           string `json:"agent_type"`
	AgentTranscriptPath string `json:"agent_transcript_path"`
	ToolUseID           string `json:"tool_use_id"`
	StopHookActive      bool   `json:"stop_hook_active"`
}

// ReadInput decodes one payload from r, reading at most MaxInputBytes.
func ReadInput(r io.Reader) (Input, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxInputBytes))
	if err != nil {
		return Input{}, fmt.Errorf("read hook input: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Input{}, ErrEmptyInput
	}

	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return Input{}, fmt.Errorf("decode hook input: %w", err)
	}
	return in, nil
}

// Output is the JSON object a hook writes to stdout.
type Output struct {
	Continue           bool      `json:"continue"`
	SuppressOutput     bool      `json:"suppressOutput"`
	HookSpecificOutput *Specific `json:"hookSpecificOutput,omitempty"`
}

// Specific carries event-dependent output.
type Specific struct {
	HookEventName     string        `json:"hookEventName"`
	AdditionalContext string        `json:"additionalContext,omitempty"`
	Result            *model.Result `json:"result,omitempty"`
}

// Continue returns an output that lets Claude Code proceed silently.
func Continue(event string) Output {
	return Output{
		Continue:           true,
		SuppressOutput:     true,
		HookSpecificOutput: &Specific{HookEventName: event},
	}
}

// WithResult attaches a stop result to the output.
func (o Output) WithResult(res *model.Result) Output {
	if o.HookSpecificOutput == nil {
		o.HookSpecificOutput = &Specific{}
	}
	specific := *o.HookSpecificOutput
	specific.Result = res
	o.HookSpecificOutput = &specific
	return o
}

// WriteOutput writes out to w as a single JSON line.
func WriteOutput(w io.Writer, out Output) error {
	if err := json.NewEncoder(w).Encode(out); err != nil {
		return fmt.Errorf("write hook output: %w", err)
	}
	return nil
}
