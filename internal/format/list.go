// Package format provides formatting and rendering functions for transcripts,
// start contexts and stop results.
package format

import (
	"agenthooks/internal/model"
	"agenthooks/internal/store"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"
)

// SummaryWidth bounds the summary and prompt columns of tables.
const SummaryWidth = 60

// WriteTranscripts writes transcript summaries to w in the requested format.
func WriteTranscripts(w io.Writer, items []store.TranscriptSummary, includeHeader bool, format string) error {
	switch strings.ToLower(format) {
	case "", "table":
		return writeTranscriptsTable(w, items, includeHeader)
	case "plain":
		return writeTranscriptsPlain(w, items, includeHeader)
	case "json":
		return writeJSON(w, items)
	case "jsonl":
		return writeJSONL(w, items)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeTranscriptsPlain(w io.Writer, items []store.TranscriptSummary, includeHeader bool) error {
	if includeHeader {
		if _, err := fmt.Fprintln(w, "timestamp\tid\tkind\tcwd\tduration\trecords\tdelegates\tsummary"); err != nil {
			return err
		}
	}

	for _, item := range items {
		line := fmt.Sprintf(
			"%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s",
			item.StartedAt.Format(time.RFC3339),
			item.ID,
			kindLabel(item),
			item.CWD,
			formatDuration(item.DurationSeconds),
			item.RecordCount,
			item.Delegates,
			escapeNewlines(item.Summary),
		)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeTranscriptsTable(w io.Writer, items []store.TranscriptSummary, includeHeader bool) error {
	tw := newTable(w)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignCenter, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignCenter, AlignHeader: text.AlignCenter},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 7, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
	})

	if includeHeader {
		tw.AppendHeader(table.Row{"Timestamp", "ID", "Kind", "Duration", "Records", "Delegates", "Summary"})
	}

	for _, item := range items {
		tw.AppendRow(table.Row{
			item.StartedAt.Format(time.RFC3339),
			item.ID,
			kindLabel(item),
			formatDuration(item.DurationSeconds),
			item.RecordCount,
			item.Delegates,
			Clip(escapeNewlines(item.Summary), SummaryWidth),
		})
	}

	if len(items) == 0 {
		tw.AppendRow(table.Row{"-", "(no transcripts)", "-", "00:00:00", 0, 0, "-"})
	}

	_ = tw.Render()
	return nil
}

func kindLabel(item store.TranscriptSummary) string {
	if item.Sidechain() {
		return "subagent"
	}
	return "session"
}

// WriteContexts writes pending start contexts to w, oldest first.
func WriteContexts(w io.Writer, contexts map[string]model.StartContext, includeHeader bool, format string) error {
	items := make([]model.StartContext, 0, len(contexts))
	for id, sc := range contexts {
		if sc.AgentID == "" {
			sc.AgentID = id
		}
		items = append(items, sc)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].AgentID < items[j].AgentID
		}
		return items[i].Timestamp.Before(items[j].Timestamp)
	})

	switch strings.ToLower(format) {
	case "", "table":
		return writeContextsTable(w, items, includeHeader)
	case "plain":
		return writeContextsPlain(w, items, includeHeader)
	case "json":
		return writeJSON(w, items)
	case "jsonl":
		return writeJSONL(w, items)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeContextsPlain(w io.Writer, items []model.StartContext, includeHeader bool) error {
	if includeHeader {
		if _, err := fmt.Fprintln(w, "timestamp\tagent_id\tagent_type\tsession_id\ttool_use_id\tprompt"); err != nil {
			return err
		}
	}
	for _, sc := range items {
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s",
			sc.Timestamp.Format(time.RFC3339),
			sc.AgentID,
			sc.AgentType,
			sc.SessionID,
			sc.ToolUseID,
			escapeNewlines(sc.Prompt),
		)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeContextsTable(w io.Writer, items []model.StartContext, includeHeader bool) error {
	tw := newTable(w)
	if includeHeader {
		tw.AppendHeader(table.Row{"Started", "Agent ID", "Type", "Session ID", "Tool Use ID", "Prompt"})
	}
	for _, sc := range items {
		tw.AppendRow(table.Row{
			sc.Timestamp.Format(time.RFC3339),
			sc.AgentID,
			orDash(sc.AgentType),
			orDash(sc.SessionID),
			orDash(sc.ToolUseID),
			Clip(escapeNewlines(sc.Prompt), SummaryWidth),
		})
	}
	if len(items) == 0 {
		tw.AppendRow(table.Row{"-", "(no pending subagents)", "-", "-", "-", "-"})
	}
	_ = tw.Render()
	return nil
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = true
	tw.Style().Options.SeparateHeader = true
	tw.Style().Options.DrawBorder = true
	return tw
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONL[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

// Clip shortens s to at most width terminal cells, marking the cut with an ellipsis.
func Clip(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

func escapeNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "00:00:00"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
