package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Pattern kinds reported by the broker. Unknown kinds are passed through.
const (
	PatternSweep         = "SWEEP"
	PatternBlock         = "BLOCK"
	PatternUnusualVolume = "UNUSUAL_VOLUME"
)

// Aggregation is the latest rolled-up trading activity of a contract.
type Aggregation struct {
	Timestamp           time.Time
	TotalVolume         int64
	BidVolume           int64
	AskVolume           int64
	AvgBid              float64
	AvgAsk              float64
	TransactionCount    int64
	Imbalance           float64
	VolumeWeightedPrice float64
}

// ContractActivity is one contract record of a snapshot.
type ContractActivity struct {
	Key         ContractKey
	Symbol      string
	IsMonitored bool
	LastUpdate  time.Time
	Aggregation *Aggregation
}

// PatternDetection is a notable trading event flagged by the broker.
type PatternDetection struct {
	Key             ContractKey
	Kind            string
	Confidence      float64
	Timestamp       time.Time
	Direction       string
	TotalVolume     int64
	DurationSeconds float64
	Description     string
	Metrics         map[string]float64
}

// TrendChange is one notable change inside a trend interval.
type TrendChange struct {
	Time        time.Time
	Description string
}

// TrendInterval summarizes directional flow over a time window.
// Key is nil for ticker-wide intervals.
type TrendInterval struct {
	Key     *ContractKey
	Start   time.Time
	End     time.Time
	Bias    string
	Changes []TrendChange
}

// HotContract is a broker-ranked active contract.
type HotContract struct {
	Key           ContractKey
	Symbol        string
	Volume        int64
	PatternCount  int
	ActivityScore float64
}

// BrokerSummary is the summary block computed upstream, when the broker sends one.
type BrokerSummary struct {
	TotalContractsMonitored int
	ActivePatterns          int
	TotalVolume             int64
	CallVolume              int64
	PutVolume               int64
	PutCallRatio            float64
	SweepPatterns           int
	BlockPatterns           int
	UnusualVolumePatterns   int
	DominantFlow            string
	HotContracts            []HotContract
}

// FlowSnapshot is one broker reply for a ticker. It is never cached.
type FlowSnapshot struct {
	Ticker    string
	Time      time.Time
	Status    string
	Message   string
	Contracts []ContractActivity
	Patterns  []PatternDetection
	Trends    []TrendInterval
	Summary   *BrokerSummary
}

// SortKeys orders keys canonically in place.
func SortKeys(keys []ContractKey) {
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
}

// StrikeSet collapses duplicate strikes and returns them ascending.
func StrikeSet(strikes []decimal.Decimal) []decimal.Decimal {
	seen := make(map[string]struct{}, len(strikes))
	out := make([]decimal.Decimal, 0, len(strikes))
	for _, s := range strikes {
		s = s.Round(2)
		id := s.StringFixed(2)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return out
}
