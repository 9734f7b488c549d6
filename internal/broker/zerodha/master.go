package zerodha

import (
	"context"
	"net/http"
	"strings"

	"github.com/gocarina/gocsv"

	"tradegate/internal/apierr"
	"tradegate/internal/model"
)

// DownloadMaster fetches Kite's /instruments CSV: the full instrument
// catalog with fixed column positions. The canonical token is synthesized as
// "instrument_token::::exchange_token" because the streaming protocol
// addresses instruments by instrument_token while order APIs occasionally
// need the exchange token.
func (a *Adapter) DownloadMaster(ctx context.Context) ([]model.SymbolData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.rest.instrumentsURL, nil)
	if err != nil {
		return nil, apierr.Internal(err, "building instruments request")
	}
	req.Header.Set("X-Kite-Version", "3")

	resp, err := a.rest.http.Do(req)
	if err != nil {
		return nil, apierr.Internal(err, "downloading kite instruments")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apierr.Broker("kite instruments download returned " + resp.Status)
	}

	var rows []*instrumentRow
	if err := gocsv.Unmarshal(resp.Body, &rows); err != nil {
		return nil, apierr.Internal(err, "malformed kite instruments csv")
	}

	out := make([]model.SymbolData, 0, len(rows))
	for _, r := range rows {
		if r.TradingSymbol == "" || r.InstrumentToken == "" {
			continue
		}
		sd := model.SymbolData{
			Symbol:         r.TradingSymbol,
			Token:          r.InstrumentToken + "::::" + r.ExchangeToken,
			Exchange:       r.Exchange,
			Name:           r.Name,
			LotSize:        r.LotSize,
			TickSize:       r.TickSize,
			InstrumentType: r.InstrumentType,
			Expiry:         r.Expiry,
			Strike:         r.Strike,
		}
		if r.InstrumentType == "CE" || r.InstrumentType == "PE" {
			sd.OptionType = r.InstrumentType
		} else if strings.HasPrefix(r.Segment, "NFO-OPT") || strings.HasPrefix(r.Segment, "BFO-OPT") {
			sd.OptionType = optionSuffix(r.TradingSymbol)
		}
		out = append(out, sd)
	}
	return out, nil
}

func optionSuffix(symbol string) string {
	switch {
	case strings.HasSuffix(symbol, "CE"):
		return "CE"
	case strings.HasSuffix(symbol, "PE"):
		return "PE"
	}
	return ""
}

// StreamToken extracts the numeric instrument token from a composite
// "instrument::::exchange" token for websocket subscriptions.
func StreamToken(composite string) string {
	if i := strings.Index(composite, "::::"); i >= 0 {
		return composite[:i]
	}
	return composite
}
