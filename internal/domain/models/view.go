package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Activity levels, strongest first.
const (
	ActivityVeryHigh = "VERY_HIGH"
	ActivityHigh     = "HIGH"
	ActivityMedium   = "MEDIUM"
	ActivityLow      = "LOW"
)

// Flow directions.
const (
	StrongBuy  = "STRONG_BUY"
	Buy        = "BUY"
	Neutral    = "NEUTRAL"
	Sell       = "SELL"
	StrongSell = "STRONG_SELL"
)

// ContractState is the per-contract reading derived from its activity and patterns.
type ContractState struct {
	ActivityLevel string
	Direction     string
	Significance  string
	PatternCount  int
}

// ContractFlow is one CALL or PUT slot of the aggregated view.
type ContractFlow struct {
	Key         ContractKey
	Symbol      string
	IsMonitored bool
	LastUpdate  time.Time
	Aggregation *Aggregation
	Patterns    []PatternDetection
	Trends      []TrendInterval
	State       ContractState
}

// Volume returns the aggregated total volume, zero when unknown.
func (c *ContractFlow) Volume() int64 {
	if c == nil || c.Aggregation == nil {
		return 0
	}
	return c.Aggregation.TotalVolume
}

// StrikeGroup holds the two sides of one strike.
type StrikeGroup struct {
	Strike decimal.Decimal
	Call   *ContractFlow
	Put    *ContractFlow
}

// ExpirationGroup holds strikes of one expiration in ascending order.
type ExpirationGroup struct {
	Expiration int
	Strikes    []StrikeGroup
}

// InstitutionalBias is the ticker-level directional reading.
type InstitutionalBias struct {
	Direction        string
	Confidence       float64
	Source           string // "broker" or "derived"
	CallVolume       int64
	PutVolume        int64
	PutCallRatio     float64
	PrimaryContracts []ContractKey
}

// ActiveStrike is one entry of the most-active ranking.
type ActiveStrike struct {
	Key           ContractKey
	Symbol        string
	ActivityLevel string
	Volume        int64
	PatternCount  int
	ActivityScore float64
}

// Summary is computed once while building the view.
type Summary struct {
	TotalContracts      int
	TotalVolume         int64
	PatternCounts       map[string]int
	Bias                InstitutionalBias
	MostActive          []ActiveStrike
	MostActiveSource    string
	RecentTrend         string
	LatestTrendBias     string
	ActiveCallContracts int
	ActivePutContracts  int
}

// AggregatedView is the request-scoped hierarchy ticker -> expiration -> strike -> side.
type AggregatedView struct {
	Ticker       string
	SnapshotTime time.Time
	Expirations  []ExpirationGroup
	Unmonitored  []ContractFlow
	Trends       []TrendInterval
	Summary      Summary
}

// ContractCount returns the number of populated CALL/PUT slots.
func (v *AggregatedView) ContractCount() int {
	n := 0
	for _, e := range v.Expirations {
		for _, s := range e.Strikes {
			if s.Call != nil {
				n++
			}
			if s.Put != nil {
				n++
			}
		}
	}
	return n
}

// HealthStatus is the outcome of a broker reachability probe.
type HealthStatus struct {
	Target    string
	Reachable bool
	Serving   string
	Latency   time.Duration
	Detail    string
	CheckedAt time.Time
}

// Healthy reports a reachable broker that does not declare itself down.
func (h HealthStatus) Healthy() bool {
	return h.Reachable && h.Serving != "NOT_SERVING"
}

// ConfiguredSet is one monitoring configuration as reported by the broker.
type ConfiguredSet struct {
	Ticker        string
	Expiration    int
	Strikes       []decimal.Decimal
	Sides         []Side
	ContractCount int
	ConfiguredAt  time.Time
	Active        bool
}

// Keys enumerates the contracts covered by the set, in canonical order.
func (c ConfiguredSet) Keys() []ContractKey {
	keys := make([]ContractKey, 0, len(c.Strikes)*len(c.Sides))
	for _, strike := range c.Strikes {
		for _, side := range c.Sides {
			keys = append(keys, NewContractKey(c.Ticker, c.Expiration, strike, side))
		}
	}
	SortKeys(keys)
	return keys
}

// MonitoringStatus lists what the broker currently watches for a ticker.
type MonitoringStatus struct {
	Ticker                  string
	Status                  string
	Message                 string
	TotalContractsMonitored int
	TotalTickers            int
	Configurations          []ConfiguredSet
}

// Keys returns the de-duplicated flat list of monitored keys.
func (s MonitoringStatus) Keys() []ContractKey {
	seen := make(map[string]struct{})
	var keys []ContractKey
	for _, c := range s.Configurations {
		for _, k := range c.Keys() {
			if _, ok := seen[k.ID()]; ok {
				continue
			}
			seen[k.ID()] = struct{}{}
			keys = append(keys, k)
		}
	}
	SortKeys(keys)
	return keys
}

// ConfigureReply is the broker's answer to one configuration request.
type ConfigureReply struct {
	Status                  string
	Message                 string
	ContractsAdded          int
	ContractsRemoved        int
	TotalContractsMonitored int
	ContractSymbols         []string
	Timestamp               time.Time
}

// ConfigurationOutcome is the per-configuration result of a configure call.
type ConfigurationOutcome struct {
	Index         int
	Configuration MonitoringConfiguration
	Keys          []ContractKey
	Reply         *ConfigureReply
	Err           error
	Warnings      []string
}

// Accepted reports whether the broker accepted the configuration.
func (o ConfigurationOutcome) Accepted() bool {
	return o.Err == nil
}
