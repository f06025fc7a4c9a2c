package format

import (
	"agenthooks/internal/model"
	"fmt"
	"io"
	"strings"
	"time"
)

// WriteResult writes a stop result as aligned key/value text or JSON.
func WriteResult(w io.Writer, res *model.Result, format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		return writeResultText(w, res)
	case "json":
		return writeJSON(w, res)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeResultText(w io.Writer, res *model.Result) error {
	started, stopped := "-", "-"
	if res.StartedAt != nil {
		started = res.StartedAt.Format(time.RFC3339)
	}
	if res.StoppedAt != nil {
		stopped = res.StoppedAt.Format(time.RFC3339)
	}

	rows := [][2]string{
		{"Agent ID", res.AgentID},
		{"Agent Type", res.AgentType},
		{"Session ID", orDash(res.SessionID)},
		{"Strategy", res.Strategy},
		{"Tool Use ID", orDash(res.ToolUseID)},
		{"Description", orDash(res.Description)},
		{"Started", started},
		{"Stopped", stopped},
		{"Duration", formatDuration(res.DurationSeconds())},
		{"Transcript", orDash(res.TranscriptPath)},
		{"Agent Transcript", res.AgentTranscriptPath},
		{"Agent File", orDash(res.AgentFile)},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%-17s %s\n", row[0]+":", row[1]); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "%-17s %s\n", "Prompt:", orDash(escapeNewlines(res.Prompt))); err != nil {
		return err
	}

	sections := []struct {
		label string
		paths []string
	}{
		{"Skills", res.SkillFiles},
		{"Created", res.Created},
		{"Edited", res.Edited},
		{"Deleted", res.Deleted},
	}
	for _, sec := range sections {
		if _, err := fmt.Fprintf(w, "%s (%d)\n", sec.label, len(sec.paths)); err != nil {
			return err
		}
		for _, p := range sec.paths {
			if _, err := fmt.Fprintf(w, "  %s\n", p); err != nil {
				return err
			}
		}
	}
	return nil
}
