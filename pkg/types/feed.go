package types

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Feed topics and message types carrying whale trades.
const (
	TopicActivity     = "activity"
	TypeOrdersMatched = "orders_matched"
	SubscribeAction   = "subscribe"
)

// FeedMessage is the envelope of every real-time data frame.
type FeedMessage struct {
	Topic     string          `json:"topic"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// IsTrade reports whether the frame carries a matched trade.
func (m *FeedMessage) IsTrade() bool {
	return m.Topic == TopicActivity && m.Type == TypeOrdersMatched
}

// ClobAuth carries the API credentials attached to a subscription.
type ClobAuth struct {
	Key        string `json:"key"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// Subscription is one topic/type pair requested from the feed.
type Subscription struct {
	Topic    string    `json:"topic"`
	Type     string    `json:"type"`
	ClobAuth *ClobAuth `json:"clob_auth,omitempty"`
}

// SubscribeRequest is sent once per connection.
type SubscribeRequest struct {
	Action        string         `json:"action"`
	Subscriptions []Subscription `json:"subscriptions"`
}

// NewTradeSubscription builds the subscription for matched-order activity.
func NewTradeSubscription(auth ClobAuth) SubscribeRequest {
	return SubscribeRequest{
		Action: SubscribeAction,
		Subscriptions: []Subscription{{
			Topic:    TopicActivity,
			Type:     TypeOrdersMatched,
			ClobAuth: &auth,
		}},
	}
}

// ActivityTrade is the payload of an orders_matched frame.
type ActivityTrade struct {
	ConditionID  string       `json:"conditionId"`
	Outcome      string       `json:"outcome"`
	Side         string       `json:"side"`
	Price        FlexFloat    `json:"price"`
	Size         FlexFloat    `json:"size"`
	ProxyWallet  string       `json:"proxyWallet"`
	TakerAddress string       `json:"taker_address"`
	Title        string       `json:"title"`
	Slug         string       `json:"slug"`
	MakerOrders  []MakerOrder `json:"maker_orders"`
}

// Taker returns the taker wallet, preferring proxyWallet.
func (t *ActivityTrade) Taker() string {
	if t.ProxyWallet != "" {
		return t.ProxyWallet
	}
	return t.TakerAddress
}

// MakerOrder is one resting order filled by the trade.
type MakerOrder struct {
	MakerAddress string    `json:"maker_address"`
	Outcome      string    `json:"outcome"`
	Side         string    `json:"side"`
	Price        FlexFloat `json:"price"`
}

// FlexFloat decodes a number that may arrive as a JSON number, a numeric string or null.
// Valid is false when the value was absent or unparseable.
type FlexFloat struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*f = FlexFloat{}

	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	s := string(data)
	if data[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return nil
		}
		s = strings.TrimSpace(unquoted)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}

	f.Value = v
	f.Valid = true
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f.Value, 'f', -1, 64)), nil
}

// Float returns a valid FlexFloat.
func Float(v float64) FlexFloat {
	return FlexFloat{Value: v, Valid: true}
}
