package types

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned when the feed credentials are not configured.
	ErrMissingCredentials = errors.New("missing feed credentials")
	// ErrEmptyWhaleSet is returned when no tracked addresses are available.
	ErrEmptyWhaleSet = errors.New("whale set is empty")
	// ErrInvalidPrice is returned for entry prices that are missing, non-finite or outside (0,1).
	ErrInvalidPrice = errors.New("price outside (0,1)")
	// ErrPositionNotFound is returned when a position ID does not exist.
	ErrPositionNotFound = errors.New("position not found")
)

// FrameError describes a feed frame that could not be interpreted.
type FrameError struct {
	Reason string
	Err    error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed frame: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed frame: %s", e.Reason)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// SettleError records a failed settlement of a single position.
type SettleError struct {
	PositionID string
	MarketID   string
	Err        error
}

func (e *SettleError) Error() string {
	return fmt.Sprintf("settle position %s (market %s): %v", e.PositionID, e.MarketID, e.Err)
}

func (e *SettleError) Unwrap() error {
	return e.Err
}
