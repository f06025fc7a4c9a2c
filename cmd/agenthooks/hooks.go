package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"agenthooks/internal/agentdef"
	"agenthooks/internal/config"
	"agenthooks/internal/fileops"
	"agenthooks/internal/hook"
	"agenthooks/internal/lifecycle"
	"agenthooks/internal/logging"
	"agenthooks/internal/startctx"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const flushTimeout = 2 * time.Second

// env is what one hook invocation runs with.
type env struct {
	coordinator *lifecycle.Coordinator
	log         *slog.Logger
}

func newSubagentStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "subagent-start",
		Short:        "SubagentStart hook: record the subagent's start context",
		Hidden:       true,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			in, readErr := hook.ReadInput(cmd.InOrStdin())
			e := setup(cmd, hook.EventSubagentStart, in)
			defer logging.Flush(flushTimeout)
			wrote := false
			defer func() {
				if r := recover(); r != nil {
					err = answerAfterPanic(cmd, e.log, hook.EventSubagentStart, r, wrote)
				}
			}()

			if readErr != nil {
				e.log.Warn("unreadable hook input, nothing recorded", "error", readErr)
			} else {
				_ = e.coordinator.OnSubagentStart(commandContext(cmd), lifecycle.StartInput{
					AgentID:        in.AgentID,
					AgentType:      in.AgentType,
					SessionID:      in.SessionID,
					CWD:            in.CWD,
					TranscriptPath: in.TranscriptPath,
					ToolUseID:      in.ToolUseID,
				})
			}
			wrote = true
			return hook.WriteOutput(cmd.OutOrStdout(), hook.Continue(hook.EventSubagentStart))
		},
	}
}

func newSubagentStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "subagent-stop",
		Short:        "SubagentStop hook: correlate the subagent and report its file operations",
		Hidden:       true,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			in, readErr := hook.ReadInput(cmd.InOrStdin())
			e := setup(cmd, hook.EventSubagentStop, in)
			defer logging.Flush(flushTimeout)
			wrote := false
			defer func() {
				if r := recover(); r != nil {
					err = answerAfterPanic(cmd, e.log, hook.EventSubagentStop, r, wrote)
				}
			}()

			if readErr != nil {
				e.log.Error("unreadable hook input", "error", readErr)
				return readErr
			}

			res, err := e.coordinator.OnSubagentStop(commandContext(cmd), lifecycle.StopInput{
				AgentTranscriptPath: in.AgentTranscriptPath,
				AgentID:             in.AgentID,
				AgentType:           in.AgentType,
				SessionID:           in.SessionID,
				TranscriptPath:      in.TranscriptPath,
			})
			if err != nil {
				e.log.Error("subagent stop failed", "error", err, "agent_transcript_path", in.AgentTranscriptPath)
				if errors.Is(err, lifecycle.ErrInvalidTranscriptKind) {
					return err
				}
				wrote = true
				return hook.WriteOutput(cmd.OutOrStdout(), hook.Continue(hook.EventSubagentStop))
			}
			wrote = true
			return hook.WriteOutput(cmd.OutOrStdout(), hook.Continue(hook.EventSubagentStop).WithResult(res))
		},
	}
}

// setup resolves the project, loads its config and wires a coordinator.
// Config and logging problems never stop a hook; they fall back to defaults.
func setup(cmd *cobra.Command, event string, in hook.Input) env {
	projectDir := config.ResolveProjectDir(projectDirFlag, in.CWD)
	cfg, cfgErr := config.Load(projectDir)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	}
	if cfg.ProjectDir != "" && projectDirFlag == "" {
		projectDir = cfg.ProjectDir
	}

	logErr := logging.Init(logging.Config{
		Level:     logging.ParseLevel(cfg.Log.Level),
		SentryDSN: cfg.Log.SentryDSN,
		Env:       cfg.Log.Env,
		Version:   version,
		LogFile:   cfg.LogFilePath(projectDir),
		Output:    cmd.ErrOrStderr(),
	})
	if logErr != nil {
		_ = logging.Init(logging.Config{Level: logging.ParseLevel(cfg.Log.Level), Output: cmd.ErrOrStderr()})
	}

	log := logging.With(
		"invocation_id", uuid.NewString(),
		"event", event,
		"session_id", in.SessionID,
	)
	if cfgErr != nil {
		log.Warn("failed to load config, using defaults", "error", cfgErr, "path", config.Path(projectDir))
	}
	if logErr != nil {
		log.Warn("failed to initialise logging", "error", logErr)
	}

	return env{
		coordinator: newCoordinator(projectDir, cfg, log),
		log:         log,
	}
}

func newCoordinator(projectDir string, cfg *config.Config, log *slog.Logger) *lifecycle.Coordinator {
	st := startctx.New(cfg.StorePath(projectDir),
		startctx.WithLockTimeout(cfg.Store.LockTimeout),
		startctx.WithTTL(cfg.Store.TTL),
	)
	opts := lifecycle.Options{
		DelegateTools: cfg.Tools.Delegate,
		FileOps: fileops.Options{
			Create: cfg.Tools.Create,
			Modify: cfg.Tools.Modify,
			Delete: cfg.Tools.Delete,
			Shell:  cfg.Tools.Shell,
		},
		ResultsLog: cfg.ResultsLogPath(projectDir),
	}
	return lifecycle.New(st, agentdef.NewDir(projectDir), opts, log)
}

// answerAfterPanic logs a recovered panic and, unless output was already
// written, answers Claude Code with a plain continue.
func answerAfterPanic(cmd *cobra.Command, log *slog.Logger, event string, r any, wrote bool) error {
	logging.CapturePanic(r, "event", event)
	log.Error("hook recovered from panic", "panic_type", fmt.Sprintf("%T", r))
	if wrote {
		return nil
	}
	return hook.WriteOutput(cmd.OutOrStdout(), hook.Continue(event))
}

// commandContext returns the command's context, or a background one when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
