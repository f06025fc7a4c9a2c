package lifecycle

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agenthooks/internal/agentdef"
	"agenthooks/internal/correlate"
	"agenthooks/internal/model"
	"agenthooks/internal/startctx"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	logDir      = filepath.Join("..", "..", "testdata", "projects", "-Users-test-project")
	parentPath  = filepath.Join(logDir, "s1.jsonl")
	explorePath = filepath.Join(logDir, "agent-abc123.jsonl")
	planPath    = filepath.Join(logDir, "s1", "subagents", "agent-def456.jsonl")
)

func at(hms string) time.Time {
	t, err := time.Parse(time.RFC3339, "2025-06-01T"+hms+"Z")
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func newCoordinator(t *testing.T) (*Coordinator, string) {
	t.Helper()
	project := t.TempDir()
	st := startctx.New(startctx.DefaultPath(project), startctx.WithTTL(0))
	c := New(st, agentdef.NewDir(project), DefaultOptions(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.now = func() time.Time { return at("10:00:02") }
	return c, project
}

func TestStartThenStop(t *testing.T) {
	c, _ := newCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.OnSubagentStart(ctx, StartInput{
		AgentID:        "abc123",
		AgentType:      "Explore",
		SessionID:      "s1",
		CWD:            "/Users/test/project",
		TranscriptPath: parentPath,
	}))
	c.now = func() time.Time { return at("10:00:06") }
	require.NoError(t, c.OnSubagentStart(ctx, StartInput{
		AgentID:        "def456",
		AgentType:      "Plan",
		SessionID:      "s1",
		TranscriptPath: parentPath,
	}))

	saved, ok := c.Store.Load("abc123")
	require.True(t, ok)
	assert.Equal(t, "tu_1", saved.ToolUseID)
	assert.Equal(t, "find tests that fail intermittently", saved.Prompt)
	assert.Equal(t, at("10:00:02"), saved.Timestamp)

	saved, ok = c.Store.Load("def456")
	require.True(t, ok)
	assert.Equal(t, "tu_2", saved.ToolUseID)

	res, err := c.OnSubagentStop(ctx, StopInput{AgentTranscriptPath: explorePath})
	require.NoError(t, err)
	assert.Equal(t, &model.Result{
		SessionID:           "s1",
		AgentID:             "abc123",
		TranscriptPath:      parentPath,
		AgentTranscriptPath: explorePath,
		AgentType:           "Explore",
		Prompt:              "find tests that fail intermittently",
		Description:         "Find flaky tests",
		ToolUseID:           "tu_1",
		Strategy:            correlate.StrategyToolUseID,
		SkillFiles:          []string{},
		Created:             []string{"/Users/test/project/FLAKY.md"},
		Edited:              []string{"/Users/test/project/store_test.go"},
		Deleted:             []string{"/Users/test/project/tmp.out"},
		StartedAt:           ptr(at("10:00:02")),
		StoppedAt:           ptr(at("10:02:00")),
	}, res)

	_, ok = c.Store.Load("abc123")
	assert.False(t, ok, "start context must be consumed")
	_, ok = c.Store.Load("def456")
	assert.True(t, ok)

	res, err = c.OnSubagentStop(ctx, StopInput{AgentTranscriptPath: planPath})
	require.NoError(t, err)
	assert.Equal(t, "Plan", res.AgentType)
	assert.Equal(t, parentPath, res.TranscriptPath)
	assert.Equal(t, []string{"docs/plan.md"}, res.Created)
	assert.Empty(t, res.Edited)
	assert.Empty(t, c.Store.All())
}

func TestStop_InvalidTranscriptKind(t *testing.T) {
	c, _ := newCoordinator(t)

	for _, p := range []string{parentPath, "/logs/myagent-123.jsonl", ""} {
		_, err := c.OnSubagentStop(context.Background(), StopInput{AgentTranscriptPath: p})
		assert.ErrorIs(t, err, ErrInvalidTranscriptKind, p)
	}
}

func TestStop_WithoutStartContextFallsBack(t *testing.T) {
	c, _ := newCoordinator(t)

	res, err := c.OnSubagentStop(context.Background(), StopInput{AgentTranscriptPath: planPath})
	require.NoError(t, err)
	assert.Equal(t, correlate.StrategyFallback, res.Strategy)
	assert.Equal(t, "Plan", res.AgentType)
	assert.Equal(t, "draft a plan to stabilise the tests", res.Prompt)

	res, err = c.OnSubagentStop(context.Background(), StopInput{AgentTranscriptPath: explorePath})
	require.NoError(t, err)
	assert.Equal(t, correlate.StrategyToolUseID, res.Strategy, "result link in parent identifies the delegate")
	assert.Equal(t, "tu_1", res.ToolUseID)
}

func TestStop_UnreadableTranscriptDegrades(t *testing.T) {
	c, _ := newCoordinator(t)
	missing := filepath.Join(t.TempDir(), "agent-zzz.jsonl")

	res, err := c.OnSubagentStop(context.Background(), StopInput{AgentTranscriptPath: missing})
	require.NoError(t, err)
	assert.Equal(t, "zzz", res.AgentID)
	assert.Equal(t, model.UnknownAgentType, res.AgentType)
	assert.Equal(t, correlate.StrategyNone, res.Strategy)
	assert.Empty(t, res.Prompt)
	assert.Equal(t, []string{}, res.Created)
	assert.Nil(t, res.StartedAt)
	require.NotNil(t, res.StoppedAt)
	assert.Equal(t, at("10:00:02"), *res.StoppedAt)
}

func TestStop_ParentFromHint(t *testing.T) {
	c, _ := newCoordinator(t)
	dir := t.TempDir()
	data, err := os.ReadFile(planPath)
	require.NoError(t, err)
	moved := filepath.Join(dir, "agent-def456.jsonl")
	require.NoError(t, os.WriteFile(moved, data, 0o644))

	res, err := c.OnSubagentStop(context.Background(), StopInput{AgentTranscriptPath: moved, TranscriptPath: parentPath})
	require.NoError(t, err)
	assert.Equal(t, parentPath, res.TranscriptPath)
	assert.Equal(t, "Plan", res.AgentType)
}

func TestStart_MissingParentStillSaves(t *testing.T) {
	c, _ := newCoordinator(t)

	err := c.OnSubagentStart(context.Background(), StartInput{
		AgentID:        "abc123",
		AgentType:      "Explore",
		SessionID:      "s1",
		TranscriptPath: filepath.Join(t.TempDir(), "s1.jsonl"),
	})
	require.NoError(t, err)

	saved, ok := c.Store.Load("abc123")
	require.True(t, ok)
	assert.Equal(t, "Explore", saved.AgentType)
	assert.Empty(t, saved.Prompt)
	assert.Empty(t, saved.ToolUseID)

	res, err := c.OnSubagentStop(context.Background(), StopInput{AgentTranscriptPath: filepath.Join(t.TempDir(), "agent-abc123.jsonl")})
	require.NoError(t, err)
	assert.Equal(t, correlate.StrategyStartContext, res.Strategy)
	assert.Equal(t, "Explore", res.AgentType)
	assert.Equal(t, "s1", res.SessionID)
}

func TestStart_NeverFails(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	st := startctx.New(filepath.Join(blocker, "contexts.json"))
	c := New(st, nil, DefaultOptions(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.NoError(t, c.OnSubagentStart(context.Background(), StartInput{AgentID: "abc123", TranscriptPath: parentPath}))
	assert.NoError(t, c.OnSubagentStart(context.Background(), StartInput{}))
}

func TestInspect_DoesNotConsume(t *testing.T) {
	c, _ := newCoordinator(t)
	require.NoError(t, c.OnSubagentStart(context.Background(), StartInput{
		AgentID:        "def456",
		AgentType:      "Plan",
		SessionID:      "s1",
		TranscriptPath: parentPath,
	}))

	res, err := c.Inspect(planPath)
	require.NoError(t, err)
	assert.Equal(t, "Plan", res.AgentType)

	_, ok := c.Store.Load("def456")
	assert.True(t, ok)

	_, err = c.Inspect(parentPath)
	assert.ErrorIs(t, err, ErrInvalidTranscriptKind)
}

func TestStop_AgentDefinitionAndSkills(t *testing.T) {
	c, project := newCoordinator(t)
	agents := agentdef.NewDir(project)
	require.NoError(t, os.MkdirAll(filepath.Dir(agents.AgentPath("Plan")), 0o755))
	require.NoError(t, os.WriteFile(agents.AgentPath("Plan"), []byte("---\nname: Plan\nskills: test-strategy\n---\nPlan carefully.\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Dir(agents.SkillPath("test-strategy")), 0o755))
	require.NoError(t, os.WriteFile(agents.SkillPath("test-strategy"), []byte("# Test strategy\n"), 0o644))

	res, err := c.OnSubagentStop(context.Background(), StopInput{AgentTranscriptPath: planPath})
	require.NoError(t, err)
	assert.Equal(t, agents.AgentPath("Plan"), res.AgentFile)
	assert.Equal(t, []string{agents.SkillPath("test-strategy")}, res.SkillFiles)
}

func TestStop_AppendsResultsLog(t *testing.T) {
	c, project := newCoordinator(t)
	c.Options.ResultsLog = filepath.Join(project, ".claude", "state", "results.jsonl")

	for _, p := range []string{explorePath, planPath} {
		_, err := c.OnSubagentStop(context.Background(), StopInput{AgentTranscriptPath: p})
		require.NoError(t, err)
	}

	f, err := os.Open(c.Options.ResultsLog)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var res model.Result
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &res))
		ids = append(ids, res.AgentID)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"abc123", "def456"}, ids)
}

func TestStop_CallerTypeWithMixedDelegates(t *testing.T) {
	c, _ := newCoordinator(t)
	dir := t.TempDir()
	parent := filepath.Join(dir, "sx.jsonl")
	require.NoError(t, os.WriteFile(parent, []byte(
		`{"type":"user","uuid":"u1","sessionId":"sx","timestamp":"2025-06-01T10:00:00Z","message":{"role":"user","content":"go"}}`+"\n"+
			`{"type":"assistant","uuid":"a1","sessionId":"sx","timestamp":"2025-06-01T10:00:01Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"tu_plan","name":"Task","input":{"subagent_type":"Plan","prompt":"plan it"}}]}}`+"\n"+
			`{"type":"assistant","uuid":"a2","sessionId":"sx","timestamp":"2025-06-01T10:00:03Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"tu_exp","name":"Task","input":{"subagent_type":"Explore","prompt":"explore it"}}]}}`+"\n",
	), 0o644))
	agent := filepath.Join(dir, "agent-zz9.jsonl")
	require.NoError(t, os.WriteFile(agent, []byte(
		`{"type":"user","uuid":"z1","sessionId":"sx","agentId":"zz9","isSidechain":true,"timestamp":"2025-06-01T10:00:04Z","message":{"role":"user","content":"plan it"}}`+"\n",
	), 0o644))

	res, err := c.OnSubagentStop(context.Background(), StopInput{AgentTranscriptPath: agent, AgentType: "Plan"})
	require.NoError(t, err)
	assert.Equal(t, "Plan", res.AgentType)
	assert.Equal(t, "tu_plan", res.ToolUseID)
	assert.Equal(t, "plan it", res.Prompt)
	assert.Equal(t, parent, res.TranscriptPath)
}

func TestStop_EmptyStartContextStillFallsBack(t *testing.T) {
	c, _ := newCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.OnSubagentStart(ctx, StartInput{AgentID: "def456"}))
	_, ok := c.Store.Load("def456")
	require.True(t, ok)

	res, err := c.OnSubagentStop(ctx, StopInput{AgentTranscriptPath: planPath})
	require.NoError(t, err)
	assert.Equal(t, correlate.StrategyFallback, res.Strategy)
	assert.Equal(t, "Plan", res.AgentType)
	assert.Equal(t, "tu_2", res.ToolUseID)
}
