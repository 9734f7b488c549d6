package angel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"tradegate/internal/apierr"
	"tradegate/internal/model"
)

// unmarshal decodes an envelope data payload, classifying failures as
// internal (malformed broker response).
func unmarshal(data json.RawMessage, v any, route string) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apierr.Internal(err, "decoding angel %s payload", route)
	}
	return nil
}

// DownloadMaster fetches the OpenAPIScripMaster JSON document: the full
// instrument catalog in one unauthenticated download. Strike and tick size
// arrive in paise and are divided by 100; the option type is derived from
// the CE/PE symbol suffix.
func (a *Adapter) DownloadMaster(ctx context.Context) ([]model.SymbolData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.rest.masterURL, nil)
	if err != nil {
		return nil, apierr.Internal(err, "building master contract request")
	}

	resp, err := a.rest.http.Do(req)
	if err != nil {
		return nil, apierr.Internal(err, "downloading angel master contract")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apierr.Broker("angel master contract download returned " + resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Internal(err, "reading angel master contract")
	}

	var rows []masterRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, apierr.Internal(err, "malformed angel master contract")
	}

	out := make([]model.SymbolData, 0, len(rows))
	for _, r := range rows {
		if r.Symbol == "" || r.Token == "" {
			continue
		}
		sd := model.SymbolData{
			Symbol:         r.Symbol,
			Token:          r.Token,
			Exchange:       r.ExchSeg,
			Name:           r.Name,
			LotSize:        r.LotSize.Int(),
			TickSize:       r.TickSize.Float64() / 100,
			InstrumentType: r.InstrumentType,
			Expiry:         r.Expiry,
			Strike:         r.Strike.Float64() / 100,
		}
		if strings.HasPrefix(r.InstrumentType, "OPT") {
			sd.OptionType = optionType(r.Symbol)
		}
		out = append(out, sd)
	}
	return out, nil
}

// optionType derives CE/PE from the trading symbol suffix; empty for
// non-options.
func optionType(symbol string) string {
	switch {
	case strings.HasSuffix(symbol, "CE"):
		return "CE"
	case strings.HasSuffix(symbol, "PE"):
		return "PE"
	}
	return ""
}
