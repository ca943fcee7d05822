package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of a simulated position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes a side string. ok is false for anything but BUY or SELL.
func ParseSide(s string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(SideBuy):
		return SideBuy, true
	case string(SideSell):
		return SideSell, true
	default:
		return "", false
	}
}

// Opposite returns the counterparty side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ResolutionStatus is the lifecycle state of a position.
type ResolutionStatus string

const (
	StatusOpen ResolutionStatus = "open"
	// StatusSettled means PnL was computed against the resolved outcome prices.
	StatusSettled ResolutionStatus = "settled"
	// StatusUnmatched means the market resolved but the traded outcome label was not found.
	StatusUnmatched ResolutionStatus = "unmatched"
)

// Position is one simulated copy of a whale trade.
type Position struct {
	ID               string
	CreatedAt        time.Time
	WhaleAddress     string
	MarketID         string
	Outcome          string
	Side             Side
	EntryPrice       decimal.Decimal
	Stake            decimal.Decimal
	Question         string
	IsResolved       bool
	PnL              decimal.Decimal
	ResolutionStatus ResolutionStatus
	ResolvedAt       *time.Time
}

// NewPosition returns an open position with a fresh ID.
func NewPosition(whale, marketID, outcome string, side Side, price, stake decimal.Decimal, question string) *Position {
	return &Position{
		ID:               uuid.NewString(),
		CreatedAt:        time.Now().UTC(),
		WhaleAddress:     strings.ToLower(whale),
		MarketID:         marketID,
		Outcome:          outcome,
		Side:             side,
		EntryPrice:       price,
		Stake:            stake,
		Question:         question,
		PnL:              decimal.Zero,
		ResolutionStatus: StatusOpen,
	}
}

// Settlement is the terminal transition applied to one open position.
type Settlement struct {
	PositionID string
	PnL        decimal.Decimal
	Status     ResolutionStatus
	ResolvedAt time.Time
}

// RealizedPnL is one settled position's contribution to the ledger.
type RealizedPnL struct {
	ResolvedAt time.Time
	PnL        decimal.Decimal
}

// LedgerPoint is the cumulative realized PnL at the end of a UTC calendar day.
type LedgerPoint struct {
	Date          string // YYYY-MM-DD
	CumulativePnL decimal.Decimal
}
