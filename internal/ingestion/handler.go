package ingestion

import (
	"context"
	"fmt"
	"math"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/pkg/types"
)

// match is a trade attributed to a tracked whale.
type match struct {
	whale   string
	role    string
	side    types.Side
	outcome string
	price   types.FlexFloat
}

// HandleMessage processes a single frame. It returns the recorded position, or nil when the frame
// did not qualify. Errors of type *types.FrameError mark frames that could not be interpreted.
func (e *Engine) HandleMessage(ctx context.Context, msg *types.FeedMessage) (*types.Position, error) {
	start := time.Now()
	defer func() {
		HandleDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	if msg == nil || !msg.IsTrade() {
		FramesHandledTotal.WithLabelValues(resultIgnored).Inc()
		return nil, nil
	}

	var trade types.ActivityTrade
	if err := json.Unmarshal(msg.Payload, &trade); err != nil {
		FramesHandledTotal.WithLabelValues(resultMalformed).Inc()
		return nil, &types.FrameError{Reason: "decode trade payload", Err: err}
	}

	return e.handleTrade(ctx, &trade)
}

func (e *Engine) handleTrade(ctx context.Context, trade *types.ActivityTrade) (*types.Position, error) {
	m, ok, err := e.matchTrade(trade)
	if err != nil {
		FramesHandledTotal.WithLabelValues(resultMalformed).Inc()
		return nil, err
	}
	if !ok {
		FramesHandledTotal.WithLabelValues(resultNotWhale).Inc()
		return nil, nil
	}
	WhaleMatchesTotal.WithLabelValues(m.role).Inc()

	if trade.ConditionID == "" {
		FramesHandledTotal.WithLabelValues(resultMalformed).Inc()
		return nil, &types.FrameError{Reason: "missing conditionId"}
	}

	if err := checkEntryPrice(m.price); err != nil {
		FramesHandledTotal.WithLabelValues(resultInvalidPrice).Inc()
		e.logger.Debug("whale-trade-invalid-price",
			zap.String("whale", m.whale),
			zap.String("market-id", trade.ConditionID),
			zap.Float64("price", m.price.Value),
			zap.Bool("price-present", m.price.Valid),
			zap.Error(err))
		return nil, nil
	}

	question := trade.Title

	status, err := e.status.MarketStatus(ctx, trade.ConditionID)
	if err != nil {
		StatusFailOpenTotal.Inc()
		e.logger.Warn("market-status-lookup-failed",
			zap.String("market-id", trade.ConditionID),
			zap.Error(err))
	} else {
		if status.Closed {
			FramesHandledTotal.WithLabelValues(resultMarketClosed).Inc()
			e.logger.Debug("whale-trade-market-closed",
				zap.String("whale", m.whale),
				zap.String("market-id", trade.ConditionID))
			return nil, nil
		}
		if question == "" {
			question = status.Question
		}
	}

	position := types.NewPosition(
		m.whale,
		trade.ConditionID,
		m.outcome,
		m.side,
		decimal.NewFromFloat(m.price.Value),
		e.stake,
		question,
	)

	if err := e.store.InsertPosition(ctx, position); err != nil {
		FramesHandledTotal.WithLabelValues(resultStoreError).Inc()
		e.logger.Error("position-insert-failed",
			zap.String("whale", m.whale),
			zap.String("market-id", trade.ConditionID),
			zap.Error(err))
		return nil, fmt.Errorf("insert position: %w", err)
	}

	FramesHandledTotal.WithLabelValues(resultRecorded).Inc()
	e.logger.Info("whale-trade-recorded",
		zap.String("position-id", position.ID),
		zap.String("whale", position.WhaleAddress),
		zap.String("role", m.role),
		zap.String("market-id", position.MarketID),
		zap.String("outcome", position.Outcome),
		zap.String("side", string(position.Side)),
		zap.String("entry-price", position.EntryPrice.String()))

	return position, nil
}

// checkEntryPrice returns types.ErrInvalidPrice unless p is present, finite and strictly inside (0,1).
func checkEntryPrice(p types.FlexFloat) error {
	if !p.Valid || math.IsNaN(p.Value) || math.IsInf(p.Value, 0) || p.Value <= 0 || p.Value >= 1 {
		return types.ErrInvalidPrice
	}
	return nil
}

// matchTrade attributes the trade to the taker if tracked, otherwise to the first tracked maker.
// A maker takes the other side of the taker unless its own order says otherwise. A tracked taker
// with an unreadable side still lets a tracked maker with an explicit side match.
func (e *Engine) matchTrade(trade *types.ActivityTrade) (match, bool, error) {
	takerSide, sideOK := types.ParseSide(trade.Side)

	taker := trade.Taker()
	takerTracked := e.whales.Contains(taker)
	if takerTracked && sideOK {
		return match{
			whale:   taker,
			role:    "taker",
			side:    takerSide,
			outcome: trade.Outcome,
			price:   trade.Price,
		}, true, nil
	}

	for _, maker := range trade.MakerOrders {
		if !e.whales.Contains(maker.MakerAddress) {
			continue
		}

		side, ok := types.ParseSide(maker.Side)
		if !ok {
			if !sideOK {
				return match{}, false, &types.FrameError{Reason: "maker order without side"}
			}
			side = takerSide.Opposite()
		}

		outcome := maker.Outcome
		if outcome == "" {
			outcome = trade.Outcome
		}

		price := maker.Price
		if !price.Valid {
			price = trade.Price
		}

		return match{
			whale:   maker.MakerAddress,
			role:    "maker",
			side:    side,
			outcome: outcome,
			price:   price,
		}, true, nil
	}

	if takerTracked {
		return match{}, false, &types.FrameError{Reason: fmt.Sprintf("unknown side %q", trade.Side)}
	}
	return match{}, false, nil
}
