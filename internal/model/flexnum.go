package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// The brokers return numeric fields as JSON numbers, quoted strings, empty
// strings, or null depending on endpoint. The Flex types absorb every shape
// at the decode boundary; everything above it sees plain numerics.

// FlexFloat decodes a float64 from a number, a (possibly padded) numeric
// string, "" or null. Empty and null decode to zero.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	v, err := flexParse(b)
	if err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

func (f FlexFloat) Float64() float64 { return float64(f) }

// FlexInt decodes like FlexFloat and truncates toward zero.
type FlexInt int

func (n *FlexInt) UnmarshalJSON(b []byte) error {
	v, err := flexParse(b)
	if err != nil {
		return err
	}
	*n = FlexInt(v)
	return nil
}

func (n FlexInt) Int() int { return int(n) }

// FlexInt64 decodes like FlexFloat and truncates toward zero.
type FlexInt64 int64

func (n *FlexInt64) UnmarshalJSON(b []byte) error {
	v, err := flexParse(b)
	if err != nil {
		return err
	}
	*n = FlexInt64(v)
	return nil
}

func (n FlexInt64) Int64() int64 { return int64(n) }

func flexParse(b []byte) (float64, error) {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		return 0, nil
	}
	if s[0] == '"' {
		var quoted string
		if err := json.Unmarshal(b, &quoted); err != nil {
			return 0, err
		}
		quoted = strings.TrimSpace(quoted)
		if quoted == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(quoted, 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric string %q", quoted)
		}
		return v, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric value %s", s)
	}
	return v, nil
}
