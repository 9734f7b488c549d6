package broker

import (
	"strings"

	"tradegate/internal/model"
)

// indexAliases maps the synthetic index exchanges callers use onto the real
// exchange the brokers expect. The alias is preserved in canonical responses.
var indexAliases = map[string]string{
	"NSE_INDEX": "NSE",
	"BSE_INDEX": "BSE",
	"MCX_INDEX": "MCX",
}

// RealExchange translates an index-exchange alias before a broker call.
// Non-alias exchanges pass through unchanged.
func RealExchange(exchange string) string {
	if real, ok := indexAliases[exchange]; ok {
		return real
	}
	return exchange
}

// NormalizeProduct maps a (exchange, broker product) pair onto the canonical
// product. The mapping is one-directional by design: the broker-specific
// reverse mapping is owned by each adapter and may be lossy.
func NormalizeProduct(exchange, brokerProduct string) model.Product {
	bp := strings.ToUpper(strings.TrimSpace(brokerProduct))

	switch bp {
	case "CNC":
		return model.ProductCNC
	case "MIS", "INTRADAY":
		return model.ProductMIS
	case "NRML", "MARGIN":
		return model.ProductNRML
	case "DELIVERY":
		// (NSE|BSE, DELIVERY) -> CNC; delivery on other exchanges still
		// maps to CNC as the closest canonical product.
		return model.ProductCNC
	case "CARRYFORWARD":
		// (NFO|MCX|BFO|CDS, CARRYFORWARD) -> NRML
		return model.ProductNRML
	}
	return model.Product(bp)
}

// NormalizeSide maps broker side strings onto the canonical side.
func NormalizeSide(s string) model.Side {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "B", "1":
		return model.SideBuy
	case "SELL", "S", "-1":
		return model.SideSell
	}
	return model.Side(strings.ToUpper(strings.TrimSpace(s)))
}

// NormalizeOrderType maps broker order-type strings onto the canonical type.
func NormalizeOrderType(s string) model.OrderType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MARKET", "MKT":
		return model.OrderTypeMarket
	case "LIMIT", "L":
		return model.OrderTypeLimit
	case "STOPLOSS_LIMIT", "SL", "STOPLOSS":
		return model.OrderTypeSL
	case "STOPLOSS_MARKET", "SL-M", "SLM":
		return model.OrderTypeSLM
	}
	return model.OrderType(strings.ToUpper(strings.TrimSpace(s)))
}

// TruncateDepth caps a depth side at the canonical level limit.
func TruncateDepth(levels []model.DepthLevel) []model.DepthLevel {
	if len(levels) > model.MaxDepthLevels {
		return levels[:model.MaxDepthLevels]
	}
	return levels
}
