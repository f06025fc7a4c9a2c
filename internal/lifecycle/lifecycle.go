// Package lifecycle implements the subagent start and stop entry points.
// Start captures a context for the subagent; stop correlates the finished
// subagent with its delegate invocation and reports the files it touched.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"agenthooks/internal/agentdef"
	"agenthooks/internal/correlate"
	"agenthooks/internal/fileops"
	"agenthooks/internal/logging"
	"agenthooks/internal/model"
	"agenthooks/internal/startctx"
	"agenthooks/internal/store"
	"agenthooks/internal/transcript"

	json "github.com/goccy/go-json"
)

// ErrInvalidTranscriptKind is returned when the stop entry point is handed a
// path that is not named agent-<id>.<ext>.
var ErrInvalidTranscriptKind = errors.New("not a subagent transcript")

// Options tunes tool recognition and result publishing.
type Options struct {
	DelegateTools []string
	FileOps       fileops.Options
	// ResultsLog receives one JSON line per stop result when set.
	ResultsLog string
}

// DefaultOptions recognises Claude Code's built-in tools and publishes nothing.
func DefaultOptions() Options {
	return Options{
		DelegateTools: transcript.DefaultDelegateTools,
		FileOps:       fileops.DefaultOptions(),
	}
}

// Coordinator wires the store, correlator and agent lookup together.
type Coordinator struct {
	Store   *startctx.Store
	Agents  agentdef.Lookup
	Options Options
	Logger  *slog.Logger

	now func() time.Time
}

// New returns a Coordinator. A nil logger means the package default.
func New(st *startctx.Store, agents agentdef.Lookup, opts Options, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Default().Logger
	}
	return &Coordinator{
		Store:   st,
		Agents:  agents,
		Options: opts,
		Logger:  logger,
		now:     time.Now,
	}
}

// StartInput is what the host reports when a subagent starts.
type StartInput struct {
	AgentID   string
	AgentType string
	SessionID string
	CWD       string
	// TranscriptPath is the parent session transcript.
	TranscriptPath string
	ToolUseID      string
}

// OnSubagentStart saves a start context for the subagent. It never fails:
// problems are logged, and a missing context only weakens correlation at stop.
func (c *Coordinator) OnSubagentStart(ctx context.Context, in StartInput) error {
	log := c.Logger.With("agent_id", in.AgentID, "session_id", in.SessionID)
	if in.AgentID == "" {
		log.Warn("subagent start without agent id, nothing saved")
		return nil
	}

	now := c.now()
	sc := model.StartContext{
		AgentID:   in.AgentID,
		AgentType: in.AgentType,
		SessionID: in.SessionID,
		Timestamp: now,
		ToolUseID: in.ToolUseID,
		CWD:       in.CWD,
	}

	parent := c.loadParent(log, in.TranscriptPath)
	m := correlate.Correlate(correlate.Input{
		AgentID:   in.AgentID,
		Parent:    parent,
		AgentType: in.AgentType,
		ToolUseID: in.ToolUseID,
		StartedAt: now,
		Exclude:   c.claimedToolUses(in.AgentID),
	}, correlate.AtStart()...)

	if m.Strategy != correlate.StrategyNone {
		if sc.AgentType == "" {
			sc.AgentType = m.AgentType
		}
		sc.Prompt = m.Prompt
		sc.Description = m.Description
		sc.ToolUseID = m.ToolUseID
	}
	log.Debug("start correlation", "strategy", m.Strategy, "tool_use_id", sc.ToolUseID, "agent_type", sc.AgentType)

	if err := c.Store.Save(ctx, in.AgentID, sc); err != nil {
		log.Warn("failed to save start context", "error", err, "store", c.Store.Path())
	}
	return nil
}

// claimedToolUses returns the invocation ids other pending subagents own.
func (c *Coordinator) claimedToolUses(agentID string) map[string]struct{} {
	claimed := make(map[string]struct{})
	for id, sc := range c.Store.All() {
		if id != agentID && sc.ToolUseID != "" {
			claimed[sc.ToolUseID] = struct{}{}
		}
	}
	return claimed
}

// StopInput is what the host reports when a subagent stops. Only
// AgentTranscriptPath is required; the rest are hints.
type StopInput struct {
	AgentTranscriptPath string
	AgentID             string
	AgentType           string
	SessionID           string
	TranscriptPath      string
}

// OnSubagentStop correlates the finished subagent, deletes its start context
// and returns what it did. Only a wrongly named transcript is an error.
func (c *Coordinator) OnSubagentStop(ctx context.Context, in StopInput) (*model.Result, error) {
	res, err := c.resolve(in)
	if err != nil {
		return nil, err
	}

	log := c.Logger.With("agent_id", res.AgentID, "session_id", res.SessionID)
	if err := c.Store.Delete(ctx, res.AgentID); err != nil {
		log.Warn("failed to delete start context", "error", err)
	}
	if c.Options.ResultsLog != "" {
		if err := appendResult(c.Options.ResultsLog, res); err != nil {
			log.Warn("failed to append result", "error", err, "path", c.Options.ResultsLog)
		}
	}
	log.Info("subagent stopped",
		"agent_type", res.AgentType,
		"strategy", res.Strategy,
		"created", len(res.Created),
		"edited", len(res.Edited),
		"deleted", len(res.Deleted),
	)
	return res, nil
}

// Inspect computes the stop result for a subagent transcript without
// consuming its start context.
func (c *Coordinator) Inspect(path string) (*model.Result, error) {
	return c.resolve(StopInput{AgentTranscriptPath: path})
}

func (c *Coordinator) resolve(in StopInput) (*model.Result, error) {
	path := in.AgentTranscriptPath
	agentID, ok := transcript.SubagentIDFromPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTranscriptKind, path)
	}

	log := c.Logger.With("agent_id", agentID)
	if in.AgentID != "" && in.AgentID != agentID {
		log.Debug("agent id hint differs from transcript name", "hint", in.AgentID)
	}

	res := &model.Result{
		SessionID:           in.SessionID,
		AgentID:             agentID,
		AgentTranscriptPath: path,
		SkillFiles:          []string{},
	}

	sub, err := transcript.Load(path)
	if err != nil {
		log.Warn("failed to read subagent transcript", "error", err, "path", path)
		sub = transcript.New(path, nil)
	}
	var startedAt, stoppedAt time.Time
	if first, ok := sub.First(); ok {
		res.SessionID = first.SessionID
		startedAt = first.Timestamp
	}
	if last, ok := sub.Last(); ok {
		stoppedAt = last.Timestamp
	} else {
		stoppedAt = c.now()
	}

	var start *model.StartContext
	if sc, found := c.Store.Load(agentID); found {
		start = &sc
		if res.SessionID == "" {
			res.SessionID = sc.SessionID
		}
		if startedAt.IsZero() {
			startedAt = sc.Timestamp
		}
	}
	res.SetTimes(startedAt, stoppedAt)

	parentPath, ok := store.ParentPath(path, res.SessionID)
	if !ok && in.TranscriptPath != "" {
		parentPath = in.TranscriptPath
	}
	parent := c.loadParent(log, parentPath)
	if parent != nil {
		res.TranscriptPath = parent.Path
	}

	m := correlate.Correlate(correlate.Input{
		AgentID:   agentID,
		Parent:    parent,
		Start:     start,
		AgentType: in.AgentType,
		StartedAt: startedAt,
	}, correlate.Default()...)
	res.AgentType = m.AgentType
	res.Prompt = m.Prompt
	res.Description = m.Description
	res.ToolUseID = m.ToolUseID
	res.Strategy = m.Strategy

	res.SetFileOps(fileops.Extract(sub, c.Options.FileOps))

	if c.Agents != nil {
		if def, ok := c.Agents.Find(res.AgentType); ok {
			res.AgentFile = def.Path
			if len(def.SkillFiles) > 0 {
				res.SkillFiles = def.SkillFiles
			}
		}
	}
	return res, nil
}

func (c *Coordinator) loadParent(log *slog.Logger, path string) *transcript.Transcript {
	if path == "" {
		log.Debug("no parent transcript path")
		return nil
	}
	t, err := transcript.Load(path)
	if err != nil {
		log.Warn("failed to read parent transcript", "error", err, "path", path)
		return nil
	}
	return t.WithDelegateTools(c.Options.DelegateTools)
}

// appendResult writes res as one JSON line at the end of path.
func appendResult(path string, res *model.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open results log: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("write results log: %w", err)
	}
	return f.Close()
}
