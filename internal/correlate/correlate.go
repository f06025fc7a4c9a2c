// Package correlate matches a subagent to the delegate invocation in its
// parent transcript that launched it.
package correlate

import (
	"time"

	"agenthooks/internal/model"
	"agenthooks/internal/transcript"
)

// Strategy names reported in a Match.
const (
	StrategyToolUseID    = "tool-use-id"
	StrategyTemporal     = "temporal"
	StrategyFallback     = "fallback"
	StrategyStartContext = "start-context"
	StrategyNone         = "none"
)

// Input is everything a strategy may consult.
type Input struct {
	// AgentID is the subagent being correlated.
	AgentID string
	// Parent is the session transcript holding the delegate invocations.
	// Strategies never match when it is nil.
	Parent *transcript.Transcript
	// Start is the saved start context, nil when none was found.
	Start *model.StartContext
	// AgentType is the type reported by the caller, if any.
	AgentType string
	// ToolUseID is the invocation id reported by the caller, if any.
	ToolUseID string
	// StartedAt bounds the search: a subagent cannot start before its
	// delegate invocation. Zero means unbounded.
	StartedAt time.Time
	// Exclude holds invocation ids already attributed to other subagents.
	Exclude map[string]struct{}
}

// Match is the outcome of a correlation.
type Match struct {
	AgentType   string
	Prompt      string
	Description string
	ToolUseID   string
	Strategy    string
}

// Strategy is one step of the correlation cascade.
type Strategy interface {
	Name() string
	Match(in Input) (Match, bool)
}

// Default is the full cascade used when a subagent stops.
func Default() []Strategy {
	return []Strategy{ToolUseID{}, Temporal{}, Fallback{}}
}

// AtStart is the cascade available while a subagent is starting.
func AtStart() []Strategy {
	return []Strategy{ToolUseID{}, Temporal{}}
}

// Correlate runs strategies in order and returns the first match. Without a
// match the saved start context is reported as-is; without one of those the
// type is unknown and the prompt empty.
func Correlate(in Input, strategies ...Strategy) Match {
	for _, s := range strategies {
		if m, ok := s.Match(in); ok {
			return m
		}
	}
	if in.Start != nil && (in.Start.AgentType != "" || in.Start.Prompt != "") {
		return Match{
			AgentType:   orUnknown(in.Start.AgentType),
			Prompt:      in.Start.Prompt,
			Description: in.Start.Description,
			ToolUseID:   in.Start.ToolUseID,
			Strategy:    StrategyStartContext,
		}
	}
	return Match{AgentType: model.UnknownAgentType, Strategy: StrategyNone}
}

// ToolUseID looks up the exact invocation named by the start context, or by
// the caller when no context exists. Once the delegate has returned, the
// parent also links its result to the subagent id, which is used when no id
// was recorded.
type ToolUseID struct{}

func (ToolUseID) Name() string { return StrategyToolUseID }

func (s ToolUseID) Match(in Input) (Match, bool) {
	if in.Parent == nil {
		return Match{}, false
	}
	id := in.ToolUseID
	if in.Start != nil && in.Start.ToolUseID != "" {
		id = in.Start.ToolUseID
	}
	if inv, ok := in.Parent.FindInvocation(id); ok && in.Parent.IsDelegate(inv) {
		return fromInvocation(inv, expectedType(in), s.Name()), true
	}
	if inv, ok := in.Parent.InvocationForAgent(in.AgentID); ok && in.Parent.IsDelegate(inv) {
		return fromInvocation(inv, expectedType(in), s.Name()), true
	}
	return Match{}, false
}

// Temporal picks the latest delegate of the expected type issued at or before
// the subagent started. It needs a known type.
type Temporal struct{}

func (Temporal) Name() string { return StrategyTemporal }

func (s Temporal) Match(in Input) (Match, bool) {
	typ := expectedType(in)
	if in.Parent == nil || typ == "" {
		return Match{}, false
	}
	inv, ok := latestDelegate(in, typ)
	if !ok {
		return Match{}, false
	}
	return fromInvocation(inv, typ, s.Name()), true
}

// Fallback runs only when no usable start context exists. It takes the most
// recent delegate at or before the subagent start, restricted to the caller's
// type when one was given. Several same-type delegates issued back to back can
// be misattributed.
type Fallback struct{}

func (Fallback) Name() string { return StrategyFallback }

func (s Fallback) Match(in Input) (Match, bool) {
	if in.Parent == nil || identifies(in.Start) {
		return Match{}, false
	}
	typ := usableType(in.AgentType)
	inv, ok := latestDelegate(in, typ)
	if !ok {
		return Match{}, false
	}
	return fromInvocation(inv, typ, s.Name()), true
}

// latestDelegate returns the delegate with the greatest timestamp not after
// in.StartedAt. Equal timestamps resolve to the later invocation in the file.
// An empty typ matches every delegate.
func latestDelegate(in Input, typ string) (transcript.Invocation, bool) {
	var (
		best  transcript.Invocation
		found bool
	)
	for _, inv := range in.Parent.Delegates() {
		if _, claimed := in.Exclude[inv.ID]; claimed {
			continue
		}
		if !in.StartedAt.IsZero() && inv.Timestamp.After(in.StartedAt) {
			continue
		}
		if typ != "" && inv.Delegate().SubagentType != typ {
			continue
		}
		if !found || !inv.Timestamp.Before(best.Timestamp) {
			best, found = inv, true
		}
	}
	return best, found
}

// identifies reports whether a start context carries a type or an invocation
// id. A context saved with neither is treated as absent.
func identifies(sc *model.StartContext) bool {
	return sc != nil && (usableType(sc.AgentType) != "" || sc.ToolUseID != "")
}

func expectedType(in Input) string {
	if in.Start != nil {
		if typ := usableType(in.Start.AgentType); typ != "" {
			return typ
		}
	}
	return usableType(in.AgentType)
}

func usableType(typ string) string {
	if typ == model.UnknownAgentType {
		return ""
	}
	return typ
}

func fromInvocation(inv transcript.Invocation, typ, strategy string) Match {
	d := inv.Delegate()
	if d.SubagentType != "" {
		typ = d.SubagentType
	}
	return Match{
		AgentType:   orUnknown(typ),
		Prompt:      d.Prompt,
		Description: d.Description,
		ToolUseID:   inv.ID,
		Strategy:    strategy,
	}
}

func orUnknown(typ string) string {
	if typ == "" {
		return model.UnknownAgentType
	}
	return typ
}
