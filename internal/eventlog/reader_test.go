package eventlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userLine      = `{"type":"user","uuid":"u1","parentUuid":null,"sessionId":"s1","cwd":"/repo","timestamp":"2025-06-01T10:00:00Z","message":{"role":"user","content":"please explore"}}`
	delegateLine  = `{"type":"assistant","uuid":"a1","parentUuid":"u1","sessionId":"s1","cwd":"/repo","timestamp":"2025-06-01T10:00:01.250Z","message":{"role":"assistant","content":[{"type":"text","text":"delegating"},{"type":"tool_use","id":"tu_1","name":"Delegate","input":{"subagent_type":"Explore","prompt":"find tests"}}]}}`
	systemLine    = `{"type":"system","subtype":"turn_duration","uuid":"sy1","sessionId":"s1","timestamp":"2025-06-01T10:00:02Z","content":"turn finished"}`
	summaryLine   = `{"type":"summary","summary":"Rotated","leafUuid":"a1"}`
	noSessionLine = `{"type":"user","uuid":"u9","timestamp":"2025-06-01T10:00:03Z","message":{"role":"user","content":"orphan"}}`
)

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "s1.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))
	return path
}

func TestReadFile_DelegateInvocation(t *testing.T) {
	path := writeLog(t, userLine, delegateLine)

	records, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, KindUser, records[0].Kind)
	assert.Equal(t, "please explore", records[0].Text())
	assert.Empty(t, records[0].ParentUUID)

	asst := records[1]
	assert.Equal(t, KindAssistant, asst.Kind)
	assert.Equal(t, "u1", asst.ParentUUID)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 1, 250_000_000, time.UTC), asst.Timestamp)
	require.Len(t, asst.ToolUses, 1)

	use := asst.ToolUses[0]
	assert.Equal(t, "tu_1", use.ID)
	assert.Equal(t, "Delegate", use.Name)

	var input struct {
		SubagentType string `json:"subagent_type"`
		Prompt       string `json:"prompt"`
	}
	require.NoError(t, use.DecodeInput(&input))
	assert.Equal(t, "Explore", input.SubagentType)
	assert.Equal(t, "find tests", input.Prompt)
}

func TestReadFile_SkipsMalformedLinesInOrder(t *testing.T) {
	path := writeLog(t,
		userLine,
		`{not json at all`,
		noSessionLine,
		delegateLine,
		"",
		systemLine,
	)

	records, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "u1", records[0].UUID)
	assert.Equal(t, "a1", records[1].UUID)
	assert.Equal(t, "sy1", records[2].UUID)
	assert.Equal(t, "turn finished", records[2].Text())
}

func TestReadFile_DropsUnknownKinds(t *testing.T) {
	path := writeLog(t, summaryLine, userLine, `{"type":"file-history-snapshot","uuid":"f1","sessionId":"s1","timestamp":"2025-06-01T10:00:00Z"}`)

	records, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, KindUser, records[0].Kind)
}

func TestReadFile_EmptyFile(t *testing.T) {
	path := writeLog(t)

	records, err := ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReadFile_TrailingPartialLine(t *testing.T) {
	partial := delegateLine[:len(delegateLine)/2]
	path := writeLog(t, userLine, systemLine, partial)

	records, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "u1", records[0].UUID)
	assert.Equal(t, "sy1", records[1].UUID)
}

func TestReadFile_LastLineWithoutNewlineIsKept(t *testing.T) {
	path := writeLog(t, userLine, delegateLine)

	records, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a1", records[1].UUID)
}

func TestReadFile_MissingFile(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadFile_Idempotent(t *testing.T) {
	path := writeLog(t, userLine, delegateLine, systemLine)

	first, err := ReadFile(path)
	require.NoError(t, err)
	second, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParse_SkipsOversizedLine(t *testing.T) {
	huge := `{"type":"user","uuid":"big","sessionId":"s1","timestamp":"2025-06-01T10:00:00Z","message":{"role":"user","content":"` +
		strings.Repeat("x", MaxLineSize) + `"}}`
	input := strings.Join([]string{userLine, huge, systemLine}, "\n")

	var ids []string
	err := Parse(strings.NewReader(input), func(rec Record) error {
		ids = append(ids, rec.UUID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "sy1"}, ids)
}

func TestParseLine_SidechainFields(t *testing.T) {
	line := `{"type":"user","uuid":"x1","sessionId":"s1","isSidechain":true,"agentId":"abc123","timestamp":"2025-06-01T10:00:00+02:00","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu_9","content":[{"type":"text","text":"done"}]}]}}`

	rec, err := ParseLine([]byte(line))
	require.NoError(t, err)
	assert.True(t, rec.IsSidechain)
	assert.Equal(t, "abc123", rec.AgentID)
	require.Len(t, rec.Content, 1)
	assert.Equal(t, "Tool Result (ID: tu_9)\ndone", rec.Content[0].Text)
	assert.Equal(t, time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC), rec.Timestamp.UTC())
}

func TestParseLine_RejectsBadTimestamp(t *testing.T) {
	_, err := ParseLine([]byte(`{"type":"user","uuid":"x1","sessionId":"s1","timestamp":"yesterday"}`))
	assert.Error(t, err)
}

func TestParseLine_ToolResultAgentLink(t *testing.T) {
	line := `{"type":"user","uuid":"r1","sessionId":"s1","timestamp":"2025-06-01T10:05:00Z","toolUseResult":{"status":"completed","agentId":"abc123"},"message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu_1","content":"report"}]}}`

	rec, err := ParseLine([]byte(line))
	require.NoError(t, err)
	require.Len(t, rec.ToolResults, 1)
	assert.Equal(t, ToolResult{ToolUseID: "tu_1", AgentID: "abc123"}, rec.ToolResults[0])

	plain := `{"type":"user","uuid":"r2","sessionId":"s1","timestamp":"2025-06-01T10:05:00Z","toolUseResult":"Error: file not found","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu_2","content":"oops"}]}}`
	rec, err = ParseLine([]byte(plain))
	require.NoError(t, err)
	require.Len(t, rec.ToolResults, 1)
	assert.Empty(t, rec.ToolResults[0].AgentID)
}
