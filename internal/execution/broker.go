package execution

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitherto/hitherto/internal/signal"
)

// OrderStatus tracks an order through its lifecycle.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderSubmitted OrderStatus = "SUBMITTED"
	OrderFilled    OrderStatus = "FILLED"
	OrderRejected  OrderStatus = "REJECTED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Order is a single unit of work handed to the broker.
type Order struct {
	ID          string        `json:"id"`
	Asset       string        `json:"asset"`
	Side        signal.Action `json:"side"`
	Quantity    float64       `json:"quantity"`
	Status      OrderStatus   `json:"status"`
	SubmittedAt time.Time     `json:"submitted_at,omitempty"`
}

func NewOrder(asset string, side signal.Action, qty float64) Order {
	return Order{
		ID:       uuid.NewString(),
		Asset:    asset,
		Side:     side,
		Quantity: qty,
		Status:   OrderPending,
	}
}

// Report is the broker's account of what happened to an order.
type Report struct {
	OrderID    string        `json:"order_id"`
	Asset      string        `json:"asset"`
	Side       signal.Action `json:"side"`
	Status     OrderStatus   `json:"status"`
	FillPrice  float64       `json:"fill_price,omitempty"`
	Quantity   float64       `json:"quantity"`
	Commission float64       `json:"commission,omitempty"`
	Error      string        `json:"error,omitempty"`
	FilledAt   time.Time     `json:"filled_at,omitempty"`
}

// Balance is a point-in-time account snapshot.
type Balance struct {
	Cash   float64 `json:"cash"`
	Equity float64 `json:"equity"`
}

// PriceSource quotes a current price for an asset.
type PriceSource interface {
	Price(ctx context.Context, asset string) (float64, error)
}

// Broker fills orders against some venue. The engine only talks to this
// interface; MockBroker is the simulated implementation.
type Broker interface {
	SubmitOrder(ctx context.Context, o Order) (Report, error)
	Positions() map[string]float64
	AccountBalance(ctx context.Context) (Balance, error)
}

// MockBroker simulates fills with deterministic pricing, fixed fractional
// slippage, and proportional commission. State is a cash balance plus signed
// position quantities.
type MockBroker struct {
	mu         sync.Mutex
	slippage   float64
	commission float64
	cash       float64
	positions  map[string]float64
	prices     PriceSource
}

func NewMockBroker(initialCash, slippage, commissionRate float64, prices PriceSource) *MockBroker {
	return &MockBroker{
		slippage:   slippage,
		commission: commissionRate,
		cash:       initialCash,
		positions:  map[string]float64{},
		prices:     prices,
	}
}

// basePrice derives a stable per-asset price in [50, 150) from the asset
// symbol so simulations are reproducible.
func basePrice(asset string) float64 {
	h := fnv.New32a()
	h.Write([]byte(asset))
	return 50 + float64(h.Sum32()%1000)/10
}

func (b *MockBroker) price(ctx context.Context, asset string) (float64, error) {
	if b.prices != nil {
		return b.prices.Price(ctx, asset)
	}
	return basePrice(asset), nil
}

func (b *MockBroker) SubmitOrder(ctx context.Context, o Order) (Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rep := Report{OrderID: o.ID, Asset: o.Asset, Side: o.Side, Quantity: o.Quantity}

	if o.Asset == "" || o.Quantity <= 0 {
		rep.Status = OrderRejected
		rep.Error = "invalid order"
		return rep, nil
	}
	px, err := b.price(ctx, o.Asset)
	if err != nil {
		rep.Status = OrderRejected
		rep.Error = fmt.Sprintf("no price for %s: %v", o.Asset, err)
		return rep, nil
	}

	switch o.Side {
	case signal.Buy:
		px *= 1 + b.slippage
	case signal.Sell:
		px *= 1 - b.slippage
	default:
		rep.Status = OrderRejected
		rep.Error = fmt.Sprintf("unsupported side %s", o.Side)
		return rep, nil
	}

	commission := o.Quantity * px * b.commission
	switch o.Side {
	case signal.Buy:
		cost := o.Quantity*px + commission
		if cost > b.cash {
			rep.Status = OrderRejected
			rep.Error = fmt.Sprintf("insufficient cash: need %.2f have %.2f", cost, b.cash)
			return rep, nil
		}
		b.cash -= cost
		b.positions[o.Asset] += o.Quantity
	case signal.Sell:
		b.cash += o.Quantity*px - commission
		b.positions[o.Asset] -= o.Quantity
	}

	rep.Status = OrderFilled
	rep.FillPrice = px
	rep.Commission = commission
	rep.FilledAt = time.Now().UTC()
	return rep, nil
}

func (b *MockBroker) Positions() map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]float64, len(b.positions))
	for k, v := range b.positions {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

func (b *MockBroker) AccountBalance(ctx context.Context) (Balance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	equity := b.cash
	for asset, qty := range b.positions {
		px, err := b.price(ctx, asset)
		if err != nil {
			return Balance{}, fmt.Errorf("mark %s: %w", asset, err)
		}
		equity += qty * px
	}
	return Balance{Cash: b.cash, Equity: equity}, nil
}

// MarketValue marks the current positions at broker prices, ignoring cash.
func (b *MockBroker) MarketValue(ctx context.Context) (float64, error) {
	bal, err := b.AccountBalance(ctx)
	if err != nil {
		return 0, err
	}
	return math.Abs(bal.Equity - bal.Cash), nil
}
