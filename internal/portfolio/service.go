// Package portfolio tracks net positions, equity and realized P&L for the
// paper account. Positions update per-symbol without a global lock so
// unrelated instruments never serialize on each other.
package portfolio

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"riptide/internal/pkg/decimalx"
	"riptide/internal/types"
)

// Position is the net exposure for one symbol. Quantity is signed: positive
// long, negative short.
type Position struct {
	Symbol    string
	Quantity  decimal.Decimal
	AvgEntry  decimal.Decimal
	UpdatedAt time.Time
}

// TradeRecord is one realized (position-reducing) fill.
type TradeRecord struct {
	Symbol      string
	Strategy    string
	Side        types.Side
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	RealizedPnL decimal.Decimal
	At          time.Time
}

// Summary aggregates the session's realized trades.
type Summary struct {
	Trades      int
	Wins        int
	WinRate     float64
	Expectancy  decimal.Decimal
	RealizedPnL decimal.Decimal
}

type positionEntry struct {
	mu  sync.Mutex
	pos Position
}

// Service owns the account state. Per-symbol entries carry their own lock;
// the aggregate fields (equity, anchors, realized log) share one small
// mutex touched only per fill and per snapshot.
type Service struct {
	positions sync.Map // symbol -> *positionEntry

	mu         sync.Mutex
	equity     decimal.Decimal
	dayDate    string
	dayAnchor  decimal.Decimal
	weekKey    string
	weekAnchor decimal.Decimal
	realized   []TradeRecord
	openCount  int
}

func NewService(startingEquity decimal.Decimal) *Service {
	return &Service{
		equity:     startingEquity,
		dayAnchor:  startingEquity,
		weekAnchor: startingEquity,
	}
}

func weekKeyOf(at time.Time) string {
	year, week := at.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// rollAnchors re-bases the daily/weekly P&L baselines when the fill or
// snapshot time enters a new UTC day or ISO week. Caller holds s.mu.
func (s *Service) rollAnchors(at time.Time) {
	date := at.UTC().Format("2006-01-02")
	if date != s.dayDate {
		s.dayDate = date
		s.dayAnchor = s.equity
	}
	wk := weekKeyOf(at)
	if wk != s.weekKey {
		s.weekKey = wk
		s.weekAnchor = s.equity
	}
}

func (s *Service) entry(symbol string) *positionEntry {
	if e, ok := s.positions.Load(symbol); ok {
		return e.(*positionEntry)
	}
	e, _ := s.positions.LoadOrStore(symbol, &positionEntry{pos: Position{Symbol: symbol}})
	return e.(*positionEntry)
}

// ApplyFill folds one fill into the position for its symbol and books any
// realized P&L into equity. Same-direction fills extend the position at a
// blended average entry; opposite-direction fills reduce it, flipping
// through zero when oversized.
func (s *Service) ApplyFill(fill types.Fill, strategyCode string) {
	price := decimalx.FromFloat(fill.Price)
	qty := fill.Quantity.Abs()
	if qty.IsZero() {
		return
	}
	signed := qty
	if fill.Side == types.SideSell {
		signed = qty.Neg()
	}

	e := s.entry(fill.Symbol)
	e.mu.Lock()
	cur := e.pos.Quantity
	realized := decimal.Zero
	reduced := false
	wasOpen := !cur.IsZero()

	switch {
	case cur.IsZero() || cur.Sign() == signed.Sign():
		total := cur.Abs().Add(qty)
		e.pos.AvgEntry = e.pos.AvgEntry.Mul(cur.Abs()).Add(price.Mul(qty)).Div(total)
		e.pos.Quantity = cur.Add(signed)
	default:
		reduced = true
		closing := decimal.Min(cur.Abs(), qty)
		if cur.Sign() > 0 {
			realized = price.Sub(e.pos.AvgEntry).Mul(closing)
		} else {
			realized = e.pos.AvgEntry.Sub(price).Mul(closing)
		}
		remaining := cur.Add(signed)
		e.pos.Quantity = remaining
		if remaining.Sign() == signed.Sign() && !remaining.IsZero() {
			// flipped through zero: remainder opens at the fill price
			e.pos.AvgEntry = price
		} else if remaining.IsZero() {
			e.pos.AvgEntry = decimal.Zero
		}
	}
	e.pos.UpdatedAt = fill.FilledAt
	isOpen := !e.pos.Quantity.IsZero()
	e.mu.Unlock()

	s.mu.Lock()
	s.rollAnchors(fill.FilledAt)
	if wasOpen != isOpen {
		if isOpen {
			s.openCount++
		} else {
			s.openCount--
		}
	}
	if !realized.IsZero() {
		s.equity = s.equity.Add(realized)
	}
	if reduced {
		s.realized = append(s.realized, TradeRecord{
			Symbol:      fill.Symbol,
			Strategy:    strategyCode,
			Side:        fill.Side,
			Quantity:    qty,
			Price:       price,
			RealizedPnL: realized,
			At:          fill.FilledAt,
		})
	}
	s.mu.Unlock()
}

func pctChange(cur, anchor decimal.Decimal) float64 {
	if anchor.IsZero() {
		return 0
	}
	v, _ := cur.Sub(anchor).Div(anchor).Mul(decimal.NewFromInt(100)).Float64()
	return v
}

// Snapshot is the read-only account view handed to the risk manager. It
// reflects every fill applied before the call.
func (s *Service) Snapshot(now time.Time) types.AccountSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollAnchors(now)
	return types.AccountSnapshot{
		Equity:        s.equity,
		DailyPnLPct:   pctChange(s.equity, s.dayAnchor),
		WeeklyPnLPct:  pctChange(s.equity, s.weekAnchor),
		OpenPositions: s.openCount,
		UpdatedAt:     now,
	}
}

// Position returns the current net position for one symbol.
func (s *Service) Position(symbol string) Position {
	e, ok := s.positions.Load(symbol)
	if !ok {
		return Position{Symbol: symbol, Quantity: decimal.Zero, AvgEntry: decimal.Zero}
	}
	entry := e.(*positionEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.pos
}

// Positions lists all non-flat positions, sorted by symbol.
func (s *Service) Positions() []Position {
	var out []Position
	s.positions.Range(func(_, v any) bool {
		entry := v.(*positionEntry)
		entry.mu.Lock()
		if !entry.pos.Quantity.IsZero() {
			out = append(out, entry.pos)
		}
		entry.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// RealizedTrades copies the realized trade log.
func (s *Service) RealizedTrades() []TradeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TradeRecord, len(s.realized))
	copy(out, s.realized)
	return out
}

// SessionSummary aggregates realized trades into win rate / expectancy.
// Only position-reducing fills count as trades.
func (s *Service) SessionSummary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{RealizedPnL: decimal.Zero, Expectancy: decimal.Zero}
	for _, tr := range s.realized {
		if tr.RealizedPnL.IsZero() {
			continue
		}
		sum.Trades++
		if tr.RealizedPnL.Sign() > 0 {
			sum.Wins++
		}
		sum.RealizedPnL = sum.RealizedPnL.Add(tr.RealizedPnL)
	}
	if sum.Trades > 0 {
		sum.WinRate = float64(sum.Wins) / float64(sum.Trades)
		sum.Expectancy = sum.RealizedPnL.Div(decimal.NewFromInt(int64(sum.Trades)))
	}
	return sum
}
