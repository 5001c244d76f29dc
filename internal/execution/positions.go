package execution

import (
	"sync"
	"time"

	"github.com/hitherto/hitherto/internal/signal"
)

// Position is a held lot with its volume-weighted entry price.
type Position struct {
	Asset    string  `json:"asset"`
	Quantity float64 `json:"quantity"`
	AvgEntry float64 `json:"avg_entry"`
}

// PositionBook mirrors fills into average-entry positions and realized P&L.
// It exists so the engine can monitor drawdown without asking the broker to
// reconstruct history.
type PositionBook struct {
	mu        sync.Mutex
	positions map[string]*Position
	realized  float64
	dayStart  time.Time
	dayPnL    float64
}

func NewPositionBook() *PositionBook {
	return &PositionBook{
		positions: map[string]*Position{},
		dayStart:  startOfDay(time.Now().UTC()),
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (pb *PositionBook) rollDayLocked(now time.Time) {
	if day := startOfDay(now); day.After(pb.dayStart) {
		pb.dayStart = day
		pb.dayPnL = 0
	}
}

// ApplyFill folds a filled report into the book. Buys extend the position at
// a blended entry price; sells realize P&L against it. Commission always
// counts against the day's P&L.
func (pb *PositionBook) ApplyFill(rep Report) {
	if rep.Status != OrderFilled {
		return
	}
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.rollDayLocked(time.Now().UTC())

	pos, ok := pb.positions[rep.Asset]
	if !ok {
		pos = &Position{Asset: rep.Asset}
		pb.positions[rep.Asset] = pos
	}

	switch rep.Side {
	case signal.Buy:
		newQty := pos.Quantity + rep.Quantity
		if newQty != 0 {
			pos.AvgEntry = (pos.AvgEntry*pos.Quantity + rep.FillPrice*rep.Quantity) / newQty
		}
		pos.Quantity = newQty
	case signal.Sell:
		closed := rep.Quantity
		if closed > pos.Quantity {
			closed = pos.Quantity
		}
		if closed > 0 {
			pnl := (rep.FillPrice - pos.AvgEntry) * closed
			pb.realized += pnl
			pb.dayPnL += pnl
		}
		pos.Quantity -= rep.Quantity
		if pos.Quantity == 0 {
			delete(pb.positions, rep.Asset)
		}
	}
	pb.realized -= rep.Commission
	pb.dayPnL -= rep.Commission
}

// DailyPnL is the realized P&L since UTC midnight, net of commission.
func (pb *PositionBook) DailyPnL() float64 {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.rollDayLocked(time.Now().UTC())
	return pb.dayPnL
}

// RealizedPnL is the cumulative realized P&L net of commission.
func (pb *PositionBook) RealizedPnL() float64 {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.realized
}

// Snapshot returns a copy of the open positions.
func (pb *PositionBook) Snapshot() []Position {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	out := make([]Position, 0, len(pb.positions))
	for _, p := range pb.positions {
		out = append(out, *p)
	}
	return out
}
