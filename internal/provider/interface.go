package provider

import (
	"context"
	"errors"
	"fmt"

	"upstox-data/internal/model"
)

// CandleFetcher fetches raw candle rows for one instrument and timeframe.
// from and to are inclusive calendar days. Implementations make a single
// attempt; retrying is the caller's decision and is driven by the error
// kind. A cancelled context is returned as ctx.Err(), unwrapped.
type CandleFetcher interface {
	FetchCandles(ctx context.Context, instrumentKey string, tf model.Timeframe, from, to model.Date) ([]model.RawCandleRow, error)
}

var (
	// ErrTransient matches failures worth retrying (network, timeouts,
	// throttling, server errors, undecodable bodies).
	ErrTransient = errors.New("transient fetch error")
	// ErrFatal matches failures that will not go away on retry.
	ErrFatal = errors.New("fatal fetch error")
)

type Kind int

const (
	KindTransient Kind = iota
	KindFatal
)

func (k Kind) String() string {
	if k == KindFatal {
		return "fatal"
	}
	return "transient"
}

// FetchError is a classified fetch failure. StatusCode is 0 when no HTTP
// response was received.
type FetchError struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrFatal:
		return e.Kind == KindFatal
	}
	return false
}

func Transient(status int, err error) *FetchError {
	return &FetchError{Kind: KindTransient, StatusCode: status, Err: err}
}

func Fatal(status int, err error) *FetchError {
	return &FetchError{Kind: KindFatal, StatusCode: status, Err: err}
}

// KindOf classifies err. Errors that carry no classification are treated
// as transient.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransient
}
