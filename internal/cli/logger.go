package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/aretw0/moments/internal/config"
	"github.com/aretw0/moments/internal/logging"
	"github.com/aretw0/moments/pkg/domain"
)

// NewLogger configures the application logger. Logs go to Stderr so they never
// mix with command output or MCP JSON-RPC on Stdout.
func NewLogger(cfg config.LogConfig, debug bool) *slog.Logger {
	level := logging.ParseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	}
	if cfg.Format == "json" {
		return logging.NewJSON(os.Stderr, level)
	}
	return logging.New(level)
}

// DebugHooks logs every lifecycle event at debug level.
func DebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(ctx context.Context, e *domain.StateEvent) {
			logger.Debug("Session state", "session_id", e.SessionID, "from", e.From, "to", e.To)
		},
		OnPipeline: func(ctx context.Context, e *domain.PipelineEvent) {
			logger.Debug("Pipeline step", "session_id", e.SessionID, "step", e.Step, "err", e.Err)
		},
		OnAction: func(ctx context.Context, e *domain.ActionEvent) {
			logger.Debug("Action", "session_id", e.SessionID, "name", e.Name, "err", e.Err)
		},
		OnAutosave: func(ctx context.Context, e *domain.AutosaveEvent) {
			logger.Debug("Autosave", "session_id", e.SessionID, "trigger", e.Trigger, "outcome", e.Outcome, "bytes", e.Bytes)
		},
		OnRecovery: func(ctx context.Context, e *domain.RecoveryEvent) {
			logger.Debug("Recovery", "session_id", e.SessionID, "decision", e.Decision)
		},
	}
}
