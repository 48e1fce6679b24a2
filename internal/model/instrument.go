package model

// Instrument is the immutable identity of a tradable instrument.
type Instrument struct {
	InstrumentKey string `json:"instrument_key"`
	Segment       string `json:"segment"`
	Exchange      string `json:"exchange"`
	ISIN          string `json:"isin"`
	TradingSymbol string `json:"trading_symbol"`
	Name          string `json:"name"`
}

// Symbol is the storage symbol: the trading symbol, or the instrument key
// when the directory has none.
func (i Instrument) Symbol() string {
	if i.TradingSymbol != "" {
		return i.TradingSymbol
	}
	return i.InstrumentKey
}
