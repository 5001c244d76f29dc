package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/hitherto/hitherto/internal/config"
	"github.com/hitherto/hitherto/internal/signal"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExecConfig() config.Execution {
	return config.Execution{
		Slippage:             0.001,
		CommissionRate:       0.001,
		InitialCash:          100000,
		MaxDailyLoss:         5000,
		MaxConcentration:     0.9,
		MaxOrdersPerMinute:   600,
		EnableCircuitBreaker: true,
	}
}

func newTestEngine(cfg config.Execution) (*Engine, *MockBroker) {
	broker := NewMockBroker(cfg.InitialCash, cfg.Slippage, cfg.CommissionRate, nil)
	return NewEngine(cfg, broker, zerolog.Nop()), broker
}

func approvedProposal(actions ...signal.TradeAction) *signal.TradeProposal {
	return &signal.TradeProposal{
		ID:      "p-1",
		Regime:  "BULL",
		Actions: actions,
		Status:  signal.StatusAutoApproved,
	}
}

func TestExecute_FillsApprovedProposal(t *testing.T) {
	e, broker := newTestEngine(testExecConfig())
	p := approvedProposal(signal.TradeAction{Asset: "AAPL", Action: signal.Buy, Size: 10})

	reports := e.Execute(context.Background(), p, nil)
	require.Len(t, reports, 1)
	assert.Equal(t, OrderFilled, reports[0].Status)
	assert.Greater(t, reports[0].FillPrice, 0.0)
	assert.Greater(t, reports[0].Commission, 0.0)
	assert.Equal(t, 10.0, broker.Positions()["AAPL"])
}

func TestExecute_GatesOnStatus(t *testing.T) {
	for _, status := range []signal.ProposalStatus{
		signal.StatusDraft,
		signal.StatusPendingReview,
		signal.StatusRejected,
		signal.StatusExecuted,
	} {
		t.Run(string(status), func(t *testing.T) {
			e, _ := newTestEngine(testExecConfig())
			p := approvedProposal(signal.TradeAction{Asset: "AAPL", Action: signal.Buy, Size: 10})
			p.Status = status
			assert.Nil(t, e.Execute(context.Background(), p, nil))
		})
	}
}

func TestExecute_RequiresHumanBlocks(t *testing.T) {
	e, _ := newTestEngine(testExecConfig())
	p := approvedProposal(signal.TradeAction{Asset: "AAPL", Action: signal.Buy, Size: 10})
	p.RequiresHuman = true
	assert.Nil(t, e.Execute(context.Background(), p, nil))
}

func TestExecute_DowngradedUsesAdjustedActions(t *testing.T) {
	e, broker := newTestEngine(testExecConfig())
	p := approvedProposal(signal.TradeAction{Asset: "AAPL", Action: signal.Buy, Size: 150})
	p.Status = signal.StatusDowngraded
	p.AdjustedActions = []signal.TradeAction{{Asset: "AAPL", Action: signal.Buy, Size: 100}}

	reports := e.Execute(context.Background(), p, nil)
	require.Len(t, reports, 1)
	assert.Equal(t, 100.0, reports[0].Quantity)
	assert.Equal(t, 100.0, broker.Positions()["AAPL"])
}

func TestExecute_BreakerBlocksProposal(t *testing.T) {
	e, _ := newTestEngine(testExecConfig())
	e.ActivateCircuitBreaker("post-loss halt")
	p := approvedProposal(signal.TradeAction{Asset: "AAPL", Action: signal.Buy, Size: 10})
	assert.Nil(t, e.Execute(context.Background(), p, nil))

	e.DeactivateCircuitBreaker()
	assert.Len(t, e.Execute(context.Background(), p, nil), 1)
}

func TestExecute_GuardCancelsOrders(t *testing.T) {
	e, broker := newTestEngine(testExecConfig())
	p := approvedProposal(signal.TradeAction{Asset: "AAPL", Action: signal.Buy, Size: 10})

	guard := func() error { return errors.New("kill switch active") }
	reports := e.Execute(context.Background(), p, guard)
	require.Len(t, reports, 1)
	assert.Equal(t, OrderCancelled, reports[0].Status)
	assert.Empty(t, broker.Positions())
}

func TestExecute_PerOrderIsolation(t *testing.T) {
	e, broker := newTestEngine(testExecConfig())
	p := approvedProposal(
		signal.TradeAction{Asset: "", Action: signal.Buy, Size: 10}, // invalid, rejected
		signal.TradeAction{Asset: "MSFT", Action: signal.Buy, Size: 5},
	)

	reports := e.Execute(context.Background(), p, nil)
	require.Len(t, reports, 2)
	assert.Equal(t, OrderRejected, reports[0].Status)
	assert.Equal(t, OrderFilled, reports[1].Status)
	assert.Equal(t, 5.0, broker.Positions()["MSFT"])
}

func TestExecute_HoldActionsProduceNoOrders(t *testing.T) {
	e, _ := newTestEngine(testExecConfig())
	p := approvedProposal(signal.TradeAction{Action: signal.Hold})
	assert.Empty(t, e.Execute(context.Background(), p, nil))
}

func TestMockBroker_InsufficientCash(t *testing.T) {
	broker := NewMockBroker(10, 0, 0, nil)
	rep, err := broker.SubmitOrder(context.Background(), NewOrder("AAPL", signal.Buy, 1000))
	require.NoError(t, err)
	assert.Equal(t, OrderRejected, rep.Status)
	assert.Contains(t, rep.Error, "insufficient cash")
}

func TestMockBroker_DeterministicPricing(t *testing.T) {
	a := basePrice("AAPL")
	assert.Equal(t, a, basePrice("AAPL"))
	assert.GreaterOrEqual(t, a, 50.0)
	assert.Less(t, a, 150.0)
}

func TestMockBroker_RoundTripBalance(t *testing.T) {
	ctx := context.Background()
	broker := NewMockBroker(100000, 0.001, 0.001, nil)

	buy, err := broker.SubmitOrder(ctx, NewOrder("AAPL", signal.Buy, 10))
	require.NoError(t, err)
	require.Equal(t, OrderFilled, buy.Status)

	sell, err := broker.SubmitOrder(ctx, NewOrder("AAPL", signal.Sell, 10))
	require.NoError(t, err)
	require.Equal(t, OrderFilled, sell.Status)

	bal, err := broker.AccountBalance(ctx)
	require.NoError(t, err)
	// slippage and commission leak value on the round trip
	assert.Less(t, bal.Cash, 100000.0)
	assert.Empty(t, broker.Positions())
}

func TestPositionBook_RealizedPnL(t *testing.T) {
	book := NewPositionBook()
	book.ApplyFill(Report{Asset: "AAPL", Side: signal.Buy, Status: OrderFilled, Quantity: 10, FillPrice: 100})
	book.ApplyFill(Report{Asset: "AAPL", Side: signal.Sell, Status: OrderFilled, Quantity: 10, FillPrice: 110})

	assert.InDelta(t, 100.0, book.RealizedPnL(), 1e-9)
	assert.InDelta(t, 100.0, book.DailyPnL(), 1e-9)
	assert.Empty(t, book.Snapshot())
}

func TestPositionBook_AvgEntryBlending(t *testing.T) {
	book := NewPositionBook()
	book.ApplyFill(Report{Asset: "AAPL", Side: signal.Buy, Status: OrderFilled, Quantity: 10, FillPrice: 100})
	book.ApplyFill(Report{Asset: "AAPL", Side: signal.Buy, Status: OrderFilled, Quantity: 10, FillPrice: 120})

	snap := book.Snapshot()
	require.Len(t, snap, 1)
	assert.InDelta(t, 110.0, snap[0].AvgEntry, 1e-9)
	assert.Equal(t, 20.0, snap[0].Quantity)
}

func TestMonitorRiskLimits_DailyLossTripsBreaker(t *testing.T) {
	cfg := testExecConfig()
	cfg.MaxDailyLoss = 50
	e, _ := newTestEngine(cfg)
	e.book.ApplyFill(Report{Asset: "AAPL", Side: signal.Buy, Status: OrderFilled, Quantity: 10, FillPrice: 100})
	e.book.ApplyFill(Report{Asset: "AAPL", Side: signal.Sell, Status: OrderFilled, Quantity: 10, FillPrice: 90})

	e.MonitorRiskLimits(context.Background())
	active, reason := e.CircuitBreaker()
	assert.True(t, active)
	assert.Contains(t, reason, "daily loss")
}

func TestMonitorRiskLimits_ConcentrationTripsBreaker(t *testing.T) {
	cfg := testExecConfig()
	cfg.MaxConcentration = 0.6
	e, broker := newTestEngine(cfg)
	ctx := context.Background()
	_, err := broker.SubmitOrder(ctx, NewOrder("AAPL", signal.Buy, 90))
	require.NoError(t, err)
	_, err = broker.SubmitOrder(ctx, NewOrder("MSFT", signal.Buy, 10))
	require.NoError(t, err)

	e.MonitorRiskLimits(ctx)
	active, reason := e.CircuitBreaker()
	assert.True(t, active)
	assert.Contains(t, reason, "concentration")
}
