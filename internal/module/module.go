package module

import (
	"context"
	"time"

	"github.com/hitherto/hitherto/internal/signal"
)

// Context is the per-cycle input a module sees: routed signals from the
// previous stage keyed by "{origin}_{message_type}", plus the regime
// broadcast under "regime".
type Context map[string]signal.Signal

// Result is what a module execution produces. Signals are forwarded to the
// router on success; Errors and Warnings surface in the cycle summary.
type Result struct {
	Module   string          `json:"module"`
	Success  bool            `json:"success"`
	Signals  []signal.Signal `json:"signals,omitempty"`
	Errors   []string        `json:"errors,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
	Elapsed  time.Duration   `json:"elapsed"`
}

// Module is implemented by every analyzer. Initialize receives the module's
// raw config block and must fail fast on bad input. Process must be safe to
// call repeatedly and should honor ctx cancellation.
type Module interface {
	Name() string
	Initialize(cfg map[string]any) error
	Process(ctx context.Context, in Context) ([]signal.Signal, error)
	Cleanup() error
	SubscribedMessageTypes() []signal.MessageType
}
