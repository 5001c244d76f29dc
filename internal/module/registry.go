package module

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitherto/hitherto/internal/bus"
	"github.com/rs/zerolog"
)

// Registry owns the analyzer modules and runs them in registration order.
// Execution is strictly sequential; a failing module never blocks the rest.
type Registry struct {
	mu       sync.Mutex
	order    []string
	runtimes map[string]*runtime
	router   *bus.Router
	log      zerolog.Logger
}

func NewRegistry(router *bus.Router, log zerolog.Logger) *Registry {
	return &Registry{
		runtimes: map[string]*runtime{},
		router:   router,
		log:      log.With().Str("component", "registry").Logger(),
	}
}

// Register initializes and activates a module. Duplicate names and
// initialization failures are rejected.
func (r *Registry) Register(mod Module, cfg map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := mod.Name()
	if _, ok := r.runtimes[name]; ok {
		return fmt.Errorf("module %q already registered", name)
	}
	if err := mod.Initialize(cfg); err != nil {
		return fmt.Errorf("initialize module %q: %w", name, err)
	}
	r.runtimes[name] = &runtime{mod: mod, status: StatusActive}
	r.order = append(r.order, name)
	r.log.Info().Str("module", name).Msg("module registered")
	return nil
}

// Unregister runs the module's Cleanup and removes it from the registry.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.runtimes[name]
	if !ok {
		return fmt.Errorf("module %q not registered", name)
	}
	if err := rt.mod.Cleanup(); err != nil {
		r.log.Warn().Err(err).Str("module", name).Msg("module cleanup failed")
	}
	delete(r.runtimes, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.log.Info().Str("module", name).Msg("module unregistered")
	return nil
}

// SetStatus flips a module between ACTIVE and MAINTENANCE/INACTIVE.
// ExecuteAll skips anything not ACTIVE.
func (r *Registry) SetStatus(name string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.runtimes[name]
	if !ok {
		return fmt.Errorf("module %q not registered", name)
	}
	rt.status = status
	return nil
}

// Names returns the registered module names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ExecuteAll runs every ACTIVE module once, in registration order. Each module
// receives the shared base context plus its routed messages; emitted signals
// are published to the router and threaded into the context for downstream
// modules in the same pass.
func (r *Registry) ExecuteAll(ctx context.Context, base Context) []Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	results := make([]Result, 0, len(r.order))
	for _, name := range r.order {
		rt := r.runtimes[name]
		if rt.status != StatusActive {
			r.log.Debug().Str("module", name).Str("status", string(rt.status)).Msg("module skipped")
			continue
		}
		if err := ctx.Err(); err != nil {
			results = append(results, Result{
				Module: name,
				Errors: []string{err.Error()},
			})
			continue
		}

		in := Context{}
		for k, v := range base {
			in[k] = v
		}
		for _, msg := range r.router.MessagesFor(name) {
			in[contextKey(msg)] = msg
		}

		res := rt.execute(ctx, in, r.log)
		if res.Success {
			for _, s := range res.Signals {
				if s.Timestamp.IsZero() {
					s.Timestamp = time.Now().UTC()
				}
				if s.Origin == "" {
					s.Origin = name
				}
				r.router.Publish(s)
				base[contextKey(s)] = s
			}
		}
		results = append(results, res)
	}
	return results
}

// HealthCheckAll reports the runtime state of every registered module.
func (r *Registry) HealthCheckAll() []Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Health, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.runtimes[name].health())
	}
	return out
}
