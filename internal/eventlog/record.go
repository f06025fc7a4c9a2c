// Package eventlog reads Claude Code JSONL transcripts into typed records.
package eventlog

import (
	"fmt"
	"time"

	"agenthooks/internal/model"

	json "github.com/goccy/go-json"
)

// Kind represents the top-level "type" field of a transcript line.
type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
	KindSystem    Kind = "system"
)

// Known reports whether k is a record kind the reader keeps.
func (k Kind) Known() bool {
	switch k {
	case KindUser, KindAssistant, KindSystem:
		return true
	default:
		return false
	}
}

// ContentBlockType represents the "type" field in message content blocks.
type ContentBlockType string

const (
	ContentBlockTypeText       ContentBlockType = "text"
	ContentBlockTypeThinking   ContentBlockType = "thinking"
	ContentBlockTypeToolUse    ContentBlockType = "tool_use"
	ContentBlockTypeToolResult ContentBlockType = "tool_result"
)

// ToolUse is one tool invocation embedded in an assistant message.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// DecodeInput unmarshals the tool arguments into v.
func (t ToolUse) DecodeInput(v any) error {
	if len(t.Input) == 0 {
		return fmt.Errorf("tool %s (%s): empty input", t.Name, t.ID)
	}
	if err := json.Unmarshal(t.Input, v); err != nil {
		return fmt.Errorf("tool %s (%s): decode input: %w", t.Name, t.ID, err)
	}
	return nil
}

// ToolResult links a tool_result block back to its invocation. AgentID is set
// when the result came from a delegate tool and names the subagent it ran.
type ToolResult struct {
	ToolUseID string
	AgentID   string
}

// Record is a single line of a transcript.
type Record struct {
	Kind        Kind
	UUID        string
	ParentUUID  string
	SessionID   string
	CWD         string
	Timestamp   time.Time
	IsSidechain bool
	AgentID     string
	Subtype     string
	Role        string
	Content     []model.ContentBlock
	ToolUses    []ToolUse
	ToolResults []ToolResult
	Raw         string
}

// Text returns the concatenated text blocks of the record.
func (r Record) Text() string {
	var out string
	for _, block := range r.Content {
		if block.Type != string(ContentBlockTypeText) || block.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += block.Text
	}
	return out
}
