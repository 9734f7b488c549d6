package model

// SymbolData is one master-contract row: the broker-published catalog entry
// for a tradable instrument. A master-contract refresh replaces the entire
// symbol table; rows are read-only until the next refresh.
type SymbolData struct {
	Symbol         string  `json:"symbol"`
	Token          string  `json:"token"`
	Exchange       string  `json:"exchange"`
	Name           string  `json:"name"`
	LotSize        int     `json:"lot_size"`
	TickSize       float64 `json:"tick_size"`
	InstrumentType string  `json:"instrument_type"` // EQ, FUT, CE, PE, INDEX
	Expiry         string  `json:"expiry,omitempty"`
	Strike         float64 `json:"strike,omitempty"`
	OptionType     string  `json:"option_type,omitempty"` // CE or PE
}

// Key returns the identity of a symbol row: "exchange:symbol".
func (s *SymbolData) Key() string { return s.Exchange + ":" + s.Symbol }
