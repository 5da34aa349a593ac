package render

import (
	"encoding/xml"
	"sort"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/pkg/util"
)

type flowXML struct {
	XMLName     xml.Name         `xml:"options_order_flow"`
	Ticker      string           `xml:"ticker,attr"`
	Timestamp   string           `xml:"timestamp,attr,omitempty"`
	Contracts   monitoredXML     `xml:"monitored_contracts"`
	Unmonitored *unmonitoredXML  `xml:"unmonitored_contracts,omitempty"`
	Trends      *trendHistoryXML `xml:"trend_history,omitempty"`
	Summary     summaryXML       `xml:"summary"`
}

type monitoredXML struct {
	Count       int             `xml:"count,attr"`
	Expirations []expirationXML `xml:"expiration"`
}

type expirationXML struct {
	Date    string      `xml:"date,attr"`
	Strikes []strikeXML `xml:"strike"`
}

type strikeXML struct {
	Price string       `xml:"price,attr"`
	Call  *contractXML `xml:"call,omitempty"`
	Put   *contractXML `xml:"put,omitempty"`
}

type contractXML struct {
	Symbol     string           `xml:"symbol,attr,omitempty"`
	Expiration string           `xml:"expiration,attr,omitempty"`
	Strike     string           `xml:"strike,attr,omitempty"`
	OptionType string           `xml:"option_type,attr,omitempty"`
	Metadata   metadataXML      `xml:"metadata"`
	Activity   *activityXML     `xml:"activity,omitempty"`
	State      stateXML         `xml:"current_state"`
	Patterns   patternsXML      `xml:"patterns"`
	Trends     *trendHistoryXML `xml:"trend_history,omitempty"`
}

type metadataXML struct {
	Monitored    bool   `xml:"monitored"`
	LastActivity string `xml:"last_activity"`
}

type activityXML struct {
	Timestamp           string `xml:"timestamp,attr,omitempty"`
	TotalVolume         int64  `xml:"total_volume"`
	BidVolume           int64  `xml:"bid_volume"`
	AskVolume           int64  `xml:"ask_volume"`
	AvgBid              string `xml:"avg_bid"`
	AvgAsk              string `xml:"avg_ask"`
	TransactionCount    int64  `xml:"transaction_count"`
	Imbalance           string `xml:"imbalance"`
	VolumeWeightedPrice string `xml:"volume_weighted_price"`
}

type stateXML struct {
	ActivityLevel      string `xml:"activity_level"`
	DominantDirection  string `xml:"dominant_direction"`
	Significance       string `xml:"significance"`
	RecentPatternCount int    `xml:"recent_pattern_count"`
}

type patternsXML struct {
	Count    int          `xml:"count,attr"`
	Patterns []patternXML `xml:"pattern"`
}

type patternXML struct {
	Type        string      `xml:"type,attr"`
	Confidence  string      `xml:"confidence,attr"`
	Timestamp   string      `xml:"timestamp,attr"`
	Direction   string      `xml:"direction,omitempty"`
	Volume      int64       `xml:"volume"`
	Duration    string      `xml:"duration_seconds,omitempty"`
	Description string      `xml:"description,omitempty"`
	Metrics     []metricXML `xml:"metrics>metric,omitempty"`
}

type metricXML struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type trendHistoryXML struct {
	Intervals []intervalXML `xml:"interval"`
}

type intervalXML struct {
	Start   string      `xml:"start,attr"`
	End     string      `xml:"end,attr"`
	Bias    string      `xml:"bias,attr"`
	Changes []changeXML `xml:"change"`
}

type changeXML struct {
	Time        string `xml:"time,attr"`
	Description string `xml:",chardata"`
}

type unmonitoredXML struct {
	Count     int           `xml:"count,attr"`
	Contracts []contractXML `xml:"contract"`
}

type summaryXML struct {
	TotalContracts int            `xml:"total_contracts"`
	TotalVolume    int64          `xml:"total_volume"`
	PatternCounts  []countXML     `xml:"pattern_counts>pattern_count"`
	MostActive     mostActiveXML  `xml:"most_active_strikes"`
	Bias           biasXML        `xml:"institutional_bias"`
	RecentTrend    recentTrendXML `xml:"recent_trend"`
}

type mostActiveXML struct {
	Source  string            `xml:"source,attr"`
	Strikes []activeStrikeXML `xml:"strike"`
}

type activeStrikeXML struct {
	Price         string `xml:"price,attr"`
	OptionType    string `xml:"option_type,attr"`
	Expiration    string `xml:"expiration,attr"`
	ActivityLevel string `xml:"activity_level,attr,omitempty"`
	Volume        int64  `xml:"volume,attr"`
	PatternCount  int    `xml:"pattern_count,attr"`
	ActivityScore string `xml:"activity_score,attr,omitempty"`
	Symbol        string `xml:"symbol,attr,omitempty"`
}

type biasXML struct {
	Source           string           `xml:"source,attr"`
	Direction        string           `xml:"direction"`
	Confidence       string           `xml:"confidence"`
	CallVolume       int64            `xml:"call_volume"`
	PutVolume        int64            `xml:"put_volume"`
	PutCallRatio     string           `xml:"put_call_ratio"`
	PrimaryContracts []contractRefXML `xml:"primary_contracts>contract,omitempty"`
}

type recentTrendXML struct {
	Description     string `xml:"description"`
	LatestTrendBias string `xml:"latest_bias,omitempty"`
	ActiveCalls     int    `xml:"active_call_contracts"`
	ActivePuts      int    `xml:"active_put_contracts"`
}

// Flow renders the flow-analysis document of a view. A view with no
// contracts still renders the root, an empty hierarchy and the summary.
func Flow(view models.AggregatedView) string {
	doc := flowXML{
		Ticker:    view.Ticker,
		Timestamp: ts(view.SnapshotTime),
		Contracts: monitoredXML{Count: view.ContractCount()},
		Summary:   summary(view.Summary),
	}
	for _, e := range view.Expirations {
		ex := expirationXML{Date: util.FormatExpiration(e.Expiration)}
		for _, s := range e.Strikes {
			sx := strikeXML{Price: s.Strike.StringFixed(2)}
			if s.Call != nil {
				c := contract(s.Call, false)
				sx.Call = &c
			}
			if s.Put != nil {
				c := contract(s.Put, false)
				sx.Put = &c
			}
			ex.Strikes = append(ex.Strikes, sx)
		}
		doc.Contracts.Expirations = append(doc.Contracts.Expirations, ex)
	}
	if n := len(view.Unmonitored); n > 0 {
		doc.Unmonitored = &unmonitoredXML{Count: n}
		for i := range view.Unmonitored {
			doc.Unmonitored.Contracts = append(doc.Unmonitored.Contracts, contract(&view.Unmonitored[i], true))
		}
	}
	doc.Trends = trendHistory(view.Trends)
	return marshal(doc)
}

// contract renders one slot. Standalone slots carry their full key as
// attributes since they have no enclosing expiration and strike elements.
func contract(c *models.ContractFlow, standalone bool) contractXML {
	out := contractXML{
		Symbol: c.Symbol,
		Metadata: metadataXML{
			Monitored:    c.IsMonitored,
			LastActivity: ts(c.LastUpdate),
		},
		State: stateXML{
			ActivityLevel:      c.State.ActivityLevel,
			DominantDirection:  c.State.Direction,
			Significance:       c.State.Significance,
			RecentPatternCount: c.State.PatternCount,
		},
		Patterns: patternsXML{Count: len(c.Patterns)},
		Trends:   trendHistory(c.Trends),
	}
	if standalone {
		out.Expiration = util.FormatExpiration(c.Key.Expiration)
		out.Strike = c.Key.Strike.StringFixed(2)
		out.OptionType = string(c.Key.Side)
	}
	if a := c.Aggregation; a != nil {
		out.Activity = &activityXML{
			Timestamp:           ts(a.Timestamp),
			TotalVolume:         a.TotalVolume,
			BidVolume:           a.BidVolume,
			AskVolume:           a.AskVolume,
			AvgBid:              f2(a.AvgBid),
			AvgAsk:              f2(a.AvgAsk),
			TransactionCount:    a.TransactionCount,
			Imbalance:           f2(a.Imbalance),
			VolumeWeightedPrice: f2(a.VolumeWeightedPrice),
		}
	}
	for _, p := range c.Patterns {
		px := patternXML{
			Type:        p.Kind,
			Confidence:  f2(p.Confidence),
			Timestamp:   ts(p.Timestamp),
			Direction:   p.Direction,
			Volume:      p.TotalVolume,
			Description: p.Description,
			Metrics:     metrics(p.Metrics),
		}
		if p.DurationSeconds > 0 {
			px.Duration = f2(p.DurationSeconds)
		}
		out.Patterns.Patterns = append(out.Patterns.Patterns, px)
	}
	return out
}

func trendHistory(trends []models.TrendInterval) *trendHistoryXML {
	if len(trends) == 0 {
		return nil
	}
	th := &trendHistoryXML{}
	for _, t := range trends {
		ix := intervalXML{Start: ts(t.Start), End: ts(t.End), Bias: t.Bias}
		for _, c := range t.Changes {
			ix.Changes = append(ix.Changes, changeXML{Time: ts(c.Time), Description: c.Description})
		}
		th.Intervals = append(th.Intervals, ix)
	}
	return th
}

func summary(s models.Summary) summaryXML {
	out := summaryXML{
		TotalContracts: s.TotalContracts,
		TotalVolume:    s.TotalVolume,
		PatternCounts:  counts(s.PatternCounts),
		MostActive:     mostActiveXML{Source: s.MostActiveSource},
		Bias: biasXML{
			Source:           s.Bias.Source,
			Direction:        s.Bias.Direction,
			Confidence:       f2(s.Bias.Confidence),
			CallVolume:       s.Bias.CallVolume,
			PutVolume:        s.Bias.PutVolume,
			PutCallRatio:     f2(s.Bias.PutCallRatio),
			PrimaryContracts: contractRefs(s.Bias.PrimaryContracts),
		},
		RecentTrend: recentTrendXML{
			Description:     s.RecentTrend,
			LatestTrendBias: s.LatestTrendBias,
			ActiveCalls:     s.ActiveCallContracts,
			ActivePuts:      s.ActivePutContracts,
		},
	}
	for _, a := range s.MostActive {
		sx := activeStrikeXML{
			Price:         a.Key.Strike.StringFixed(2),
			OptionType:    string(a.Key.Side),
			Expiration:    util.FormatExpiration(a.Key.Expiration),
			ActivityLevel: a.ActivityLevel,
			Volume:        a.Volume,
			PatternCount:  a.PatternCount,
			Symbol:        a.Symbol,
		}
		if a.ActivityScore != 0 {
			sx.ActivityScore = f2(a.ActivityScore)
		}
		out.MostActive.Strikes = append(out.MostActive.Strikes, sx)
	}
	return out
}

// metrics lists pattern metrics sorted by name.
func metrics(m map[string]float64) []metricXML {
	if len(m) == 0 {
		return nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]metricXML, 0, len(names))
	for _, name := range names {
		out = append(out, metricXML{Name: name, Value: f2(m[name])})
	}
	return out
}
