package execution

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hitherto/hitherto/internal/config"
	"github.com/hitherto/hitherto/internal/observ"
	"github.com/hitherto/hitherto/internal/signal"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Guard is a pre-submission check evaluated immediately before each order is
// handed to the broker. A non-nil error cancels the order.
type Guard func() error

// Engine turns approved proposals into broker orders. Broker calls run behind
// a circuit breaker and an order-rate limiter; a tripped internal breaker
// halts all order flow until an operator clears it.
type Engine struct {
	mu            sync.Mutex
	cfg           config.Execution
	broker        Broker
	book          *PositionBook
	cb            *gobreaker.CircuitBreaker
	limiter       *rate.Limiter
	breaker       bool
	breakerReason string
	log           zerolog.Logger
}

func NewEngine(cfg config.Execution, broker Broker, log zerolog.Logger) *Engine {
	st := gobreaker.Settings{Name: "broker"}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 3 }
	st.Timeout = 30 * time.Second

	perMin := cfg.MaxOrdersPerMinute
	if perMin <= 0 {
		perMin = 60
	}
	return &Engine{
		cfg:     cfg,
		broker:  broker,
		book:    NewPositionBook(),
		cb:      gobreaker.NewCircuitBreaker(st),
		limiter: rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin),
		log:     log.With().Str("component", "execution").Logger(),
	}
}

// ActivateCircuitBreaker halts order flow. Like the risk kill switch it fails
// closed and only an explicit operator call clears it.
func (e *Engine) ActivateCircuitBreaker(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.breaker = true
	e.breakerReason = reason
	observ.CircuitBreakerActive.Set(1)
	e.log.Warn().Str("reason", reason).Msg("execution circuit breaker activated")
}

func (e *Engine) DeactivateCircuitBreaker() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.breaker = false
	e.breakerReason = ""
	observ.CircuitBreakerActive.Set(0)
	e.log.Info().Msg("execution circuit breaker deactivated")
}

// CircuitBreaker reports the breaker state and activation reason.
func (e *Engine) CircuitBreaker() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.breaker, e.breakerReason
}

// executable reports whether the proposal's status admits order placement.
// Downgraded proposals execute their adjusted actions.
func executable(p *signal.TradeProposal) bool {
	if p.RequiresHuman {
		return false
	}
	switch p.Status {
	case signal.StatusAutoApproved, signal.StatusApproved, signal.StatusDowngraded:
		return true
	}
	return false
}

// Execute places orders for the proposal's effective actions. Each order is
// isolated: one failure never aborts the batch. Returns one report per
// non-HOLD action; after the batch, risk limits are re-checked against the
// resulting account state.
func (e *Engine) Execute(ctx context.Context, p *signal.TradeProposal, guard Guard) []Report {
	if !executable(p) {
		e.log.Info().
			Str("proposal_id", p.ID).
			Str("status", string(p.Status)).
			Bool("requires_human", p.RequiresHuman).
			Msg("proposal not executable, skipping")
		return nil
	}
	if active, reason := e.CircuitBreaker(); active {
		e.log.Warn().Str("proposal_id", p.ID).Str("reason", reason).Msg("circuit breaker active, skipping proposal")
		return nil
	}

	var reports []Report
	for _, a := range p.EffectiveActions() {
		if a.Action == signal.Hold {
			continue
		}
		rep := e.submit(ctx, a, guard)
		reports = append(reports, rep)
		observ.OrdersTotal.WithLabelValues(string(rep.Status)).Inc()
		e.book.ApplyFill(rep)
	}

	e.MonitorRiskLimits(ctx)
	return reports
}

func (e *Engine) submit(ctx context.Context, a signal.TradeAction, guard Guard) Report {
	order := NewOrder(a.Asset, a.Action, a.Size)

	if err := e.limiter.Wait(ctx); err != nil {
		order.Status = OrderCancelled
		return Report{OrderID: order.ID, Asset: a.Asset, Side: a.Action, Quantity: a.Size,
			Status: OrderCancelled, Error: fmt.Sprintf("rate limit wait: %v", err)}
	}
	if guard != nil {
		if err := guard(); err != nil {
			e.log.Warn().Err(err).Str("asset", a.Asset).Msg("order blocked by pre-submission guard")
			return Report{OrderID: order.ID, Asset: a.Asset, Side: a.Action, Quantity: a.Size,
				Status: OrderCancelled, Error: err.Error()}
		}
	}
	if active, reason := e.CircuitBreaker(); active {
		return Report{OrderID: order.ID, Asset: a.Asset, Side: a.Action, Quantity: a.Size,
			Status: OrderCancelled, Error: fmt.Sprintf("circuit breaker active: %s", reason)}
	}

	order.Status = OrderSubmitted
	order.SubmittedAt = time.Now().UTC()

	submitCtx := ctx
	if e.cfg.SubmitTimeoutMs > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.SubmitTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	out, err := e.cb.Execute(func() (interface{}, error) {
		return e.broker.SubmitOrder(submitCtx, order)
	})
	if err != nil {
		e.log.Error().Err(err).Str("asset", a.Asset).Str("order_id", order.ID).Msg("broker submission failed")
		return Report{OrderID: order.ID, Asset: a.Asset, Side: a.Action, Quantity: a.Size,
			Status: OrderRejected, Error: err.Error()}
	}
	rep := out.(Report)
	if rep.Status == OrderFilled {
		e.log.Info().
			Str("order_id", rep.OrderID).
			Str("asset", rep.Asset).
			Str("side", string(rep.Side)).
			Float64("qty", rep.Quantity).
			Float64("price", rep.FillPrice).
			Msg("order filled")
	} else {
		e.log.Warn().
			Str("order_id", rep.OrderID).
			Str("asset", rep.Asset).
			Str("error", rep.Error).
			Msg("order not filled")
	}
	return rep
}

// MonitorRiskLimits checks post-trade account state against the daily-loss
// and concentration limits and trips the breaker on a breach.
func (e *Engine) MonitorRiskLimits(ctx context.Context) {
	if !e.cfg.EnableCircuitBreaker {
		return
	}
	if loss := e.book.DailyPnL(); loss < -e.cfg.MaxDailyLoss {
		e.ActivateCircuitBreaker(fmt.Sprintf("daily loss %.2f exceeds limit %.2f", -loss, e.cfg.MaxDailyLoss))
		return
	}

	positions := e.broker.Positions()
	if len(positions) < 2 {
		return
	}
	var total float64
	for _, qty := range positions {
		total += math.Abs(qty)
	}
	if total == 0 {
		return
	}
	for asset, qty := range positions {
		if share := math.Abs(qty) / total; share > e.cfg.MaxConcentration {
			e.ActivateCircuitBreaker(fmt.Sprintf("position %s concentration %.2f exceeds limit %.2f", asset, share, e.cfg.MaxConcentration))
			return
		}
	}
}

// Book exposes the engine's position book for status reporting.
func (e *Engine) Book() *PositionBook { return e.book }
