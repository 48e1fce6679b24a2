package upstox

import (
	"strings"

	"upstox-data/internal/model"
)

// candleResponse is the historical-candle payload.
type candleResponse struct {
	Status string `json:"status"`
	Data   struct {
		Candles []model.RawCandleRow `json:"candles"`
	} `json:"data"`
	Errors []apiError `json:"errors,omitempty"`
}

type apiError struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func (r candleResponse) errorText() string {
	if len(r.Errors) == 0 {
		return "status " + r.Status
	}
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, e.ErrorCode+": "+e.Message)
	}
	return strings.Join(parts, "; ")
}

// instrumentEntry is one row of the instrument directory.
type instrumentEntry struct {
	InstrumentKey  string `json:"instrument_key"`
	Segment        string `json:"segment"`
	Exchange       string `json:"exchange"`
	ISIN           string `json:"isin"`
	TradingSymbol  string `json:"trading_symbol"`
	Name           string `json:"name"`
	InstrumentType string `json:"instrument_type"`
}

func (e instrumentEntry) toInstrument() model.Instrument {
	return model.Instrument{
		InstrumentKey: e.InstrumentKey,
		Segment:       e.Segment,
		Exchange:      e.Exchange,
		ISIN:          e.ISIN,
		TradingSymbol: e.TradingSymbol,
		Name:          e.Name,
	}
}
