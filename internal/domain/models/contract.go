package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the option right of a contract.
type Side string

const (
	Call Side = "CALL"
	Put  Side = "PUT"
)

// ParseSide accepts the broker's "C"/"P" codes as well as full names.
func ParseSide(s string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", "CALL":
		return Call, true
	case "P", "PUT":
		return Put, true
	default:
		return "", false
	}
}

// Code returns the single-letter wire code.
func (s Side) Code() string {
	if s == Put {
		return "P"
	}
	return "C"
}

// ContractKey identifies one option contract.
type ContractKey struct {
	Ticker     string
	Expiration int // YYYYMMDD
	Strike     decimal.Decimal
	Side       Side
}

// NewContractKey builds a key; the strike is normalized to cents.
func NewContractKey(ticker string, expiration int, strike decimal.Decimal, side Side) ContractKey {
	return ContractKey{
		Ticker:     ticker,
		Expiration: expiration,
		Strike:     strike.Round(2),
		Side:       side,
	}
}

// ID is a comparable identity usable as a map key.
func (k ContractKey) ID() string {
	return fmt.Sprintf("%s|%d|%s|%s", k.Ticker, k.Expiration, k.Strike.StringFixed(2), k.Side.Code())
}

// StrikeID is the identity of the strike slot the key belongs to.
func (k ContractKey) StrikeID() string {
	return k.Strike.StringFixed(2)
}

// String renders the key in a readable form, e.g. "SPY 20240419 405.00 CALL".
func (k ContractKey) String() string {
	return fmt.Sprintf("%s %d %s %s", k.Ticker, k.Expiration, k.Strike.StringFixed(2), k.Side)
}

// Compare orders keys by expiration, strike, then CALL before PUT.
// The ticker is compared last so keys of one ticker stay grouped.
func (k ContractKey) Compare(o ContractKey) int {
	switch {
	case k.Expiration < o.Expiration:
		return -1
	case k.Expiration > o.Expiration:
		return 1
	}
	if c := k.Strike.Cmp(o.Strike); c != 0 {
		return c
	}
	if k.Side != o.Side {
		if k.Side == Call {
			return -1
		}
		return 1
	}
	return strings.Compare(k.Ticker, o.Ticker)
}

// MonitoringConfiguration asks the broker to watch strikes of one expiration.
type MonitoringConfiguration struct {
	Ticker           string
	Expiration       int
	Strikes          []decimal.Decimal
	IncludeBothTypes bool
}

// Sides returns the option sides the configuration covers.
func (c MonitoringConfiguration) Sides() []Side {
	if c.IncludeBothTypes {
		return []Side{Call, Put}
	}
	return []Side{Call}
}

// Keys enumerates the contracts covered, in canonical order.
func (c MonitoringConfiguration) Keys() []ContractKey {
	keys := make([]ContractKey, 0, len(c.Strikes)*2)
	for _, strike := range c.Strikes {
		for _, side := range c.Sides() {
			keys = append(keys, NewContractKey(c.Ticker, c.Expiration, strike, side))
		}
	}
	SortKeys(keys)
	return keys
}
