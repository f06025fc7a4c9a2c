package format

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"agenthooks/internal/eventlog"
	"agenthooks/internal/model"

	json "github.com/goccy/go-json"
)

// RenderRecordLines returns the formatted body lines for a transcript record.
func RenderRecordLines(rec eventlog.Record, wrapWidth int) []string {
	body := renderBlocks(rec.Content, wrapWidth)
	if body == "" {
		return nil
	}
	return strings.Split(body, "\n")
}

// RenderRecord converts a record into a printable string with a header line.
func RenderRecord(rec eventlog.Record, wrapWidth int) string {
	label := rec.Role
	if rec.Subtype != "" {
		label += "/" + rec.Subtype
	}
	if rec.IsSidechain {
		label += " (sidechain)"
	}
	return fmt.Sprintf("[%s][%s]\n%s", rec.Timestamp.Format(time.RFC3339), label, strings.Join(RenderRecordLines(rec, wrapWidth), "\n"))
}

// renderBlocks joins content blocks into a printable string with optional wrapping.
func renderBlocks(blocks []model.ContentBlock, wrapWidth int) string {
	if len(blocks) == 0 {
		return ""
	}
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		switch eventlog.ContentBlockType(block.Type) {
		case eventlog.ContentBlockTypeText:
			parts = append(parts, wrapBody(strings.TrimSpace(block.Text), wrapWidth))
		case eventlog.ContentBlockTypeThinking:
			parts = append(parts, "[thinking] "+wrapBody(strings.TrimSpace(block.Text), wrapWidth))
		case eventlog.ContentBlockTypeToolUse:
			parts = append(parts, renderToolUse(block.Text))
		case eventlog.ContentBlockTypeToolResult:
			parts = append(parts, strings.TrimRight(block.Text, "\n"))
		case "json":
			parts = append(parts, formatJSON(block.Text))
		default:
			prefix := fmt.Sprintf("[%s] ", block.Type)
			parts = append(parts, prefix+wrapBody(strings.TrimSpace(block.Text), wrapWidth))
		}
	}
	return strings.Join(parts, "\n")
}

// renderToolUse pretty-prints the "Input:" line the reader attaches to tool_use blocks.
func renderToolUse(text string) string {
	head, input, ok := strings.Cut(text, "\nInput: ")
	if !ok {
		return text
	}
	formatted := formatJSON(input)
	if formatted == input {
		return head + "\nInput: " + input
	}
	return head + "\nInput:\n" + formatted
}

func wrapBody(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}

	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			if len(current)+1+len(word) > width {
				out = append(out, current)
				current = word
			} else {
				current += " " + word
			}
		}
		out = append(out, current)
	}
	return strings.Join(out, "\n")
}

func formatJSON(raw string) string {
	if raw == "" {
		return raw
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err == nil {
		return buf.String()
	}
	return raw
}
