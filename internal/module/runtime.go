package module

import (
	"context"
	"fmt"
	"time"

	"github.com/hitherto/hitherto/internal/observ"
	"github.com/hitherto/hitherto/internal/signal"
	"github.com/rs/zerolog"
)

// Status tracks a module's operational state within the registry.
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusInactive    Status = "INACTIVE"
	StatusError       Status = "ERROR"
	StatusMaintenance Status = "MAINTENANCE"
)

// Health is a point-in-time snapshot of a module's runtime state.
type Health struct {
	Module        string    `json:"module"`
	Status        Status    `json:"status"`
	Executions    int       `json:"executions"`
	LastExecution time.Time `json:"last_execution,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// runtime wraps a Module with execution bookkeeping and fault isolation.
// A panic or error in Process marks the module ERROR without affecting
// anything else in the registry.
type runtime struct {
	mod        Module
	status     Status
	executions int
	lastRun    time.Time
	lastErr    string
}

func (r *runtime) execute(ctx context.Context, in Context, log zerolog.Logger) (res Result) {
	start := time.Now()
	res = Result{Module: r.mod.Name()}

	defer func() {
		if p := recover(); p != nil {
			r.status = StatusError
			r.lastErr = fmt.Sprintf("panic: %v", p)
			res.Success = false
			res.Errors = append(res.Errors, r.lastErr)
			log.Error().Str("module", r.mod.Name()).Interface("panic", p).Msg("module panicked")
		}
		res.Elapsed = time.Since(start)
		r.executions++
		r.lastRun = time.Now()
		outcome := "ok"
		if !res.Success {
			outcome = "error"
		}
		observ.ModuleExecutions.WithLabelValues(r.mod.Name(), outcome).Inc()
		observ.ModuleDuration.WithLabelValues(r.mod.Name()).Observe(res.Elapsed.Seconds())
	}()

	sigs, err := r.mod.Process(ctx, in)
	if err != nil {
		r.status = StatusError
		r.lastErr = err.Error()
		res.Errors = append(res.Errors, err.Error())
		log.Error().Err(err).Str("module", r.mod.Name()).Msg("module execution failed")
		return res
	}
	res.Success = true
	res.Signals = sigs
	for _, s := range sigs {
		observ.SignalsEmitted.WithLabelValues(string(s.Type)).Inc()
	}
	return res
}

func (r *runtime) health() Health {
	return Health{
		Module:        r.mod.Name(),
		Status:        r.status,
		Executions:    r.executions,
		LastExecution: r.lastRun,
		LastError:     r.lastErr,
	}
}

// contextKey builds the Context key a signal is stored under.
func contextKey(s signal.Signal) string {
	return fmt.Sprintf("%s_%s", s.Origin, s.Type)
}
