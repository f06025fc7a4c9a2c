package eventlog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"agenthooks/internal/model"

	json "github.com/goccy/go-json"
)

// MaxLineSize bounds a single transcript line. Longer lines are skipped.
const MaxLineSize = 16 * 1024 * 1024

var (
	errMissingFields = errors.New("missing required fields")
	errUnknownKind   = errors.New("unknown record kind")
)

// ReadFile parses every well-formed record in the transcript at path.
// Only a failure to open the file is reported as an error.
func ReadFile(path string) ([]Record, error) {
	records := make([]Record, 0, 64)
	err := Iterate(path, func(rec Record) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Iterate walks the transcript at path and calls fn for each decoded record.
func Iterate(path string, fn func(Record) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer file.Close() //nolint:errcheck

	return Parse(file, fn)
}

// Parse decodes records from r line by line. Malformed lines, lines of an
// unknown kind and lines longer than MaxLineSize are skipped. Returning an
// error from fn stops the walk and returns that error.
func Parse(r io.Reader, fn func(Record) error) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	for {
		line, readErr := readLine(reader)
		if len(line) > 0 {
			rec, err := ParseLine(line)
			if err == nil {
				if err := fn(rec); err != nil {
					return err
				}
			}
		}
		// EOF, or a read failure mid-file which is treated like a truncated log.
		if readErr != nil {
			return nil
		}
	}
}

// readLine returns the next line without its terminator. Lines exceeding
// MaxLineSize are consumed and returned empty.
func readLine(reader *bufio.Reader) ([]byte, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := reader.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > MaxLineSize {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if tooLong {
			return nil, err
		}
		return bytes.TrimSpace(buf), err
	}
}

type rawEntry struct {
	Type          string          `json:"type"`
	Subtype       string          `json:"subtype"`
	UUID          string          `json:"uuid"`
	ParentUUID    *string         `json:"parentUuid"`
	SessionID     string          `json:"sessionId"`
	CWD           string          `json:"cwd"`
	Timestamp     string          `json:"timestamp"`
	IsSidechain   bool            `json:"isSidechain"`
	AgentID       string          `json:"agentId"`
	Content       json.RawMessage `json:"content"`
	Message       json.RawMessage `json:"message"`
	ToolUseResult json.RawMessage `json:"toolUseResult"`
}

type toolUseResult struct {
	AgentID string `json:"agentId"`
}

type messagePayload struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
}

// ParseLine decodes a single transcript line.
func ParseLine(raw []byte) (Record, error) {
	var entry rawEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Record{}, fmt.Errorf("unmarshal entry: %w", err)
	}

	if entry.Type == "" || entry.UUID == "" || entry.Timestamp == "" || entry.SessionID == "" {
		return Record{}, errMissingFields
	}
	kind := Kind(entry.Type)
	if !kind.Known() {
		return Record{}, fmt.Errorf("%w: %s", errUnknownKind, entry.Type)
	}

	ts, err := parseTimestamp(entry.Timestamp)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		Kind:        kind,
		UUID:        entry.UUID,
		SessionID:   entry.SessionID,
		CWD:         entry.CWD,
		Timestamp:   ts,
		IsSidechain: entry.IsSidechain,
		AgentID:     entry.AgentID,
		Subtype:     entry.Subtype,
		Raw:         string(raw),
	}
	if entry.ParentUUID != nil {
		rec.ParentUUID = *entry.ParentUUID
	}

	switch kind {
	case KindUser, KindAssistant:
		if len(entry.Message) > 0 && !bytes.Equal(entry.Message, []byte("null")) {
			var msg messagePayload
			if err := json.Unmarshal(entry.Message, &msg); err != nil {
				return Record{}, fmt.Errorf("unmarshal message: %w", err)
			}
			rec.Role = msg.Role
			rec.Content, rec.ToolUses, rec.ToolResults = decodeContent(msg.Content)
		}
		if agentID := resultAgentID(entry.ToolUseResult); agentID != "" {
			for i := range rec.ToolResults {
				rec.ToolResults[i].AgentID = agentID
			}
		}
	case KindSystem:
		rec.Content, _, _ = decodeContent(entry.Content)
	}
	if rec.Role == "" {
		rec.Role = string(kind)
	}

	return rec, nil
}

func decodeContent(raw json.RawMessage) ([]model.ContentBlock, []ToolUse, []ToolResult) {
	if len(raw) == 0 {
		return nil, nil, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return []model.ContentBlock{{Type: string(ContentBlockTypeText), Text: asString}}, nil, nil
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return []model.ContentBlock{{Type: "json", Text: string(raw)}}, nil, nil
	}

	result := make([]model.ContentBlock, 0, len(blocks))
	var uses []ToolUse
	var results []ToolResult
	for _, block := range blocks {
		switch ContentBlockType(block.Type) {
		case ContentBlockTypeText:
			result = append(result, model.ContentBlock{Type: block.Type, Text: block.Text})
		case ContentBlockTypeThinking:
			result = append(result, model.ContentBlock{Type: block.Type, Text: block.Thinking})
		case ContentBlockTypeToolUse:
			uses = append(uses, ToolUse{ID: block.ID, Name: block.Name, Input: block.Input})
			text := fmt.Sprintf("Tool: %s (ID: %s)", block.Name, block.ID)
			if len(block.Input) > 0 {
				text += fmt.Sprintf("\nInput: %s", string(block.Input))
			}
			result = append(result, model.ContentBlock{Type: block.Type, Text: text})
		case ContentBlockTypeToolResult:
			results = append(results, ToolResult{ToolUseID: block.ToolUseID})
			text := fmt.Sprintf("Tool Result (ID: %s)", block.ToolUseID)
			if body := toolResultText(block.Content); body != "" {
				text += "\n" + body
			}
			result = append(result, model.ContentBlock{Type: block.Type, Text: text})
		default:
			result = append(result, model.ContentBlock{Type: "json", Text: string(raw)})
		}
	}
	return result, uses, results
}

// resultAgentID reads toolUseResult.agentId, which Claude Code records on the
// user line carrying a delegate tool's result. toolUseResult is not always an
// object, so decode failures are ignored.
func resultAgentID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return ""
	}
	var res toolUseResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return ""
	}
	return res.AgentID
}

func toolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var nested []contentBlock
	if err := json.Unmarshal(raw, &nested); err == nil {
		parts := make([]string, 0, len(nested))
		for _, nb := range nested {
			if nb.Text != "" {
				parts = append(parts, nb.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(raw)
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
