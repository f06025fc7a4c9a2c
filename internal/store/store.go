// Package store enumerates transcripts in Claude Code's project log directory
// and locates a subagent's parent session log.
package store

import (
	"agenthooks/internal/transcript"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var errStop = errors.New("stop iteration")

// TranscriptSummary describes one transcript file.
type TranscriptSummary struct {
	ID              string    `json:"id"` // agent id for subagent logs, session id otherwise
	SessionID       string    `json:"sessionId"`
	AgentID         string    `json:"agentId,omitempty"`
	Path            string    `json:"path"`
	CWD             string    `json:"cwd"`
	StartedAt       time.Time `json:"startedAt"`
	Summary         string    `json:"summary"`
	RecordCount     int       `json:"recordCount"`
	Delegates       int       `json:"delegates"`
	DurationSeconds int       `json:"durationSeconds"`
}

// Sidechain reports whether the summary is of a subagent's own log.
func (s TranscriptSummary) Sidechain() bool {
	return s.AgentID != ""
}

// ListOptions controls how transcripts are enumerated.
type ListOptions struct {
	Root       string
	CWD        string
	ExactCWD   bool
	SessionID  string
	Subagents  bool // include agent-<id> logs
	After      *time.Time
	Before     *time.Time
	Limit      int
	MaxSummary int
}

// ListResult contains transcript summaries and non-fatal warnings.
type ListResult struct {
	Summaries []TranscriptSummary
	Warnings  []error
}

// ListTranscripts enumerates transcripts under Root according to options.
func ListTranscripts(opts ListOptions) (ListResult, error) {
	root := opts.Root
	if root == "" {
		return ListResult{}, errors.New("root directory is required")
	}

	var result ListResult

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			result.Warnings = append(result.Warnings, fmt.Errorf("walk %s: %w", path, walkErr))
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}

		agentID, sidechain := transcript.SubagentIDFromPath(path)
		if sidechain && !opts.Subagents {
			return nil
		}

		t, err := transcript.Load(path)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Errorf("read %s: %w", path, err))
			return nil
		}
		first, ok := t.First()
		if !ok {
			result.Warnings = append(result.Warnings, fmt.Errorf("read %s: no records", path))
			return nil
		}

		if opts.SessionID != "" && first.SessionID != opts.SessionID {
			return nil
		}
		if opts.CWD != "" {
			if opts.ExactCWD {
				if first.CWD != opts.CWD {
					return nil
				}
			} else if !strings.HasPrefix(first.CWD, opts.CWD) {
				return nil
			}
		}
		if opts.After != nil && first.Timestamp.Before(*opts.After) {
			return nil
		}
		if opts.Before != nil && first.Timestamp.After(*opts.Before) {
			return nil
		}

		summaryText := collapse(t.FirstPrompt())
		if opts.MaxSummary > 0 {
			summaryText = truncate(summaryText, opts.MaxSummary)
		}

		last, _ := t.Last()
		id := first.SessionID
		if sidechain {
			id = agentID
		}
		result.Summaries = append(result.Summaries, TranscriptSummary{
			ID:              id,
			SessionID:       first.SessionID,
			AgentID:         agentID,
			Path:            path,
			CWD:             first.CWD,
			StartedAt:       first.Timestamp,
			Summary:         summaryText,
			RecordCount:     len(t.Records),
			Delegates:       len(t.Delegates()),
			DurationSeconds: durationSeconds(first.Timestamp, last.Timestamp),
		})
		return nil
	})
	if err != nil {
		return result, err
	}

	sort.SliceStable(result.Summaries, func(i, j int) bool {
		return result.Summaries[i].StartedAt.After(result.Summaries[j].StartedAt)
	})

	if opts.Limit > 0 && len(result.Summaries) > opts.Limit {
		result.Summaries = result.Summaries[:opts.Limit]
	}

	return result, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

// FindSessionPath searches root for the main transcript of session id.
func FindSessionPath(root, id string) (string, error) {
	if root == "" {
		return "", errors.New("root directory is required")
	}
	if id == "" {
		return "", errors.New("session id is required")
	}

	var matched string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() || d.Name() != id+".jsonl" {
			return nil
		}
		matched = path
		return errStop
	})

	if matched != "" {
		return matched, nil
	}
	if err != nil && !errors.Is(err, errStop) {
		return "", err
	}
	return "", fmt.Errorf("session id %s not found under %s", id, root)
}

// ParentPath locates the session transcript a subagent log belongs to. The
// session log sits next to agent-<id>.jsonl, or two levels up when the
// subagent log lives in <session>/subagents/.
func ParentPath(agentPath, sessionID string) (string, bool) {
	if sessionID == "" {
		return "", false
	}
	dir := filepath.Dir(agentPath)
	name := sessionID + ".jsonl"

	candidates := []string{filepath.Join(dir, name)}
	if filepath.Base(dir) == "subagents" {
		candidates = append(candidates, filepath.Join(dir, "..", "..", name))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return filepath.Clean(c), true
		}
	}
	return "", false
}

// ProjectLogDir returns the directory Claude Code writes a project's
// transcripts to. $CLAUDE_CONFIG_DIR overrides ~/.claude.
func ProjectLogDir(projectDir string) (string, error) {
	base := os.Getenv("CLAUDE_CONFIG_DIR")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		base = filepath.Join(home, ".claude")
	}
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return "", fmt.Errorf("resolve project directory: %w", err)
	}
	return filepath.Join(base, "projects", encodeProjectPath(abs)), nil
}

// encodeProjectPath mirrors Claude Code's directory naming: every character
// outside [A-Za-z0-9-] becomes '-'.
func encodeProjectPath(p string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, p)
}

func durationSeconds(start, end time.Time) int {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Seconds())
}
