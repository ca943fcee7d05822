package testutil

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/mselser95/polymarket-whalesim/pkg/types"
)

// Wallet addresses used across tests.
const (
	WhaleAddress    = "0x1111111111111111111111111111111111111111"
	WhaleAddress2   = "0x2222222222222222222222222222222222222222"
	OutsiderAddress = "0x9999999999999999999999999999999999999999"
)

// ResolvedMarket returns a closed Gamma market with string-encoded outcome lists, as the API sends them.
func ResolvedMarket(conditionID string, outcomes []string, prices []string) map[string]any {
	o, _ := json.Marshal(outcomes)
	p, _ := json.Marshal(prices)

	return map[string]any{
		"conditionId":   conditionID,
		"question":      "Resolved market " + conditionID,
		"closed":        true,
		"active":        false,
		"outcomes":      string(o),
		"outcomePrices": string(p),
	}
}

// OpenMarket returns an open Gamma market with mid prices.
func OpenMarket(conditionID string) map[string]any {
	return map[string]any{
		"conditionId":   conditionID,
		"question":      "Open market " + conditionID,
		"closed":        false,
		"active":        true,
		"outcomes":      []string{"Yes", "No"},
		"outcomePrices": []string{"0.5", "0.5"},
	}
}

// TradeOption customizes a trade frame.
type TradeOption func(map[string]any)

// WithMaker adds a maker order.
func WithMaker(address string, side string, outcome string, price any) TradeOption {
	return func(p map[string]any) {
		maker := map[string]any{"maker_address": address}
		if side != "" {
			maker["side"] = side
		}
		if outcome != "" {
			maker["outcome"] = outcome
		}
		if price != nil {
			maker["price"] = price
		}
		makers, _ := p["maker_orders"].([]map[string]any)
		p["maker_orders"] = append(makers, maker)
	}
}

// WithPrice overrides the trade price (any JSON value, including nil).
func WithPrice(price any) TradeOption {
	return func(p map[string]any) {
		p["price"] = price
	}
}

// TradeFrame builds an activity/orders_matched frame.
func TradeFrame(taker, marketID, outcome, side string, price any, opts ...TradeOption) []byte {
	payload := map[string]any{
		"conditionId": marketID,
		"outcome":     outcome,
		"side":        side,
		"price":       price,
		"size":        10,
		"proxyWallet": taker,
		"title":       "Market " + marketID,
	}
	for _, opt := range opts {
		opt(payload)
	}

	frame, _ := json.Marshal(map[string]any{
		"topic":     types.TopicActivity,
		"type":      types.TypeOrdersMatched,
		"timestamp": time.Now().UnixMilli(),
		"payload":   payload,
	})
	return frame
}

// Frame builds an arbitrary frame.
func Frame(topic, typ string, payload any) []byte {
	frame, _ := json.Marshal(map[string]any{
		"topic":   topic,
		"type":    typ,
		"payload": payload,
	})
	return frame
}

// CreateTestPosition returns an open position with stake 1.
func CreateTestPosition(marketID, outcome string, side types.Side, price string) *types.Position {
	return types.NewPosition(
		WhaleAddress,
		marketID,
		outcome,
		side,
		decimal.RequireFromString(price),
		decimal.NewFromInt(1),
		"Test market "+marketID,
	)
}
