package types

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// SettleableSumThreshold is the minimum sum of outcome prices for a resolution to be trusted.
const SettleableSumThreshold = 0.99

// GammaMarket represents a market as returned by the Gamma /markets endpoint.
// Outcomes and OutcomePrices are normalized during decoding: the API returns them either as
// native JSON arrays or as JSON-encoded strings.
type GammaMarket struct {
	ID               string    `json:"id"`
	ConditionID      string    `json:"conditionId"`
	Question         string    `json:"question"`
	Slug             string    `json:"slug"`
	Closed           bool      `json:"closed"`
	Active           bool      `json:"active"`
	ResolutionStatus string    `json:"-"`
	Outcomes         []string  `json:"-"`
	OutcomePrices    []float64 `json:"-"`
}

// UnmarshalJSON decodes the flexible outcomes/outcomePrices encodings.
func (m *GammaMarket) UnmarshalJSON(data []byte) error {
	type Alias GammaMarket
	aux := &struct {
		*Alias
		Outcomes            json.RawMessage `json:"outcomes"`
		OutcomePrices       json.RawMessage `json:"outcomePrices"`
		UMAResolutionStatus string          `json:"umaResolutionStatus"`
		ResolutionStatus    string          `json:"resolutionStatus"`
	}{
		Alias: (*Alias)(m),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	m.ResolutionStatus = aux.UMAResolutionStatus
	if m.ResolutionStatus == "" {
		m.ResolutionStatus = aux.ResolutionStatus
	}

	m.Outcomes = decodeStringList(aux.Outcomes)
	m.OutcomePrices = decodePriceList(aux.OutcomePrices)

	return nil
}

// Resolution converts the market into the normalized resolution record.
func (m *GammaMarket) Resolution() Resolution {
	r := Resolution{
		MarketID: m.ConditionID,
		Question: m.Question,
		Closed:   m.Closed,
		Status:   m.ResolutionStatus,
		Outcomes: m.Outcomes,
		Prices:   m.OutcomePrices,
	}
	r.Resolved = IsTerminalStatus(r.Status) || (r.Closed && r.PriceSum() >= SettleableSumThreshold)

	return r
}

// Resolution is the oracle's normalized view of a market's final state.
type Resolution struct {
	MarketID string
	Question string
	Closed   bool
	Status   string
	Resolved bool
	Outcomes []string
	Prices   []float64
}

// PriceSum returns the sum of all outcome prices.
func (r Resolution) PriceSum() float64 {
	var sum float64
	for _, p := range r.Prices {
		sum += p
	}
	return sum
}

// Settleable reports whether the outcome lists are consistent enough to compute PnL against.
func (r Resolution) Settleable() bool {
	if len(r.Outcomes) == 0 || len(r.Prices) == 0 {
		return false
	}
	if len(r.Outcomes) != len(r.Prices) {
		return false
	}
	for _, p := range r.Prices {
		if !validOutcomePrice(p) {
			return false
		}
	}
	return r.PriceSum() >= SettleableSumThreshold
}

// PriceFor returns the resolved price of the given outcome label (case-insensitive).
func (r Resolution) PriceFor(outcome string) (float64, bool) {
	want := strings.TrimSpace(outcome)
	for i, label := range r.Outcomes {
		if i >= len(r.Prices) {
			break
		}
		if strings.EqualFold(strings.TrimSpace(label), want) {
			return r.Prices[i], true
		}
	}
	return 0, false
}

// IsTerminalStatus reports whether an explicit resolution status marks the market final.
func IsTerminalStatus(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "FINAL", "RESOLVED", "RESOLVED_FINAL":
		return true
	default:
		return false
	}
}

// unwrapJSONString returns the inner bytes when raw is a JSON string holding encoded JSON.
func unwrapJSONString(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return raw
	}

	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil
	}
	return json.RawMessage(strings.TrimSpace(inner))
}

func decodeStringList(raw json.RawMessage) []string {
	raw = unwrapJSONString(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func decodePriceList(raw json.RawMessage) []float64 {
	raw = unwrapJSONString(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	prices := make([]float64, len(items))
	for i, item := range items {
		prices[i] = toFloat(item)
	}
	return prices
}

// toFloat converts a JSON scalar to float64. Null or unparseable values become 0.
func toFloat(v any) float64 {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if !validOutcomePrice(f) {
		return 0
	}
	return f
}

// validOutcomePrice reports whether p is a finite price within [0,1].
func validOutcomePrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p >= 0 && p <= 1
}
