package usecase

import (
	"sort"

	"OptionsFlow/internal/domain/models"
)

const (
	maxMostActive       = 10
	maxPrimaryContracts = 5
)

// Bias directions.
const (
	StronglyBullish = "STRONGLY_BULLISH"
	Bullish         = "BULLISH"
	Bearish         = "BEARISH"
	StronglyBearish = "STRONGLY_BEARISH"
)

// summarize derives ticker-level statistics once per view. A broker summary,
// when present, is surfaced as-is for bias and ranking.
func summarize(view *models.AggregatedView, upstream *models.BrokerSummary) models.Summary {
	s := models.Summary{PatternCounts: map[string]int{}}

	var contracts []*models.ContractFlow
	for _, e := range view.Expirations {
		for i := range e.Strikes {
			sg := &e.Strikes[i]
			if sg.Call != nil {
				contracts = append(contracts, sg.Call)
			}
			if sg.Put != nil {
				contracts = append(contracts, sg.Put)
			}
		}
	}
	s.TotalContracts = len(contracts)

	count := func(c *models.ContractFlow) {
		for _, p := range c.Patterns {
			s.PatternCounts[p.Kind]++
		}
	}
	for _, c := range contracts {
		s.TotalVolume += c.Volume()
		count(c)
		if isActive(c.State.ActivityLevel) {
			if c.Key.Side == models.Call {
				s.ActiveCallContracts++
			} else {
				s.ActivePutContracts++
			}
		}
	}
	for i := range view.Unmonitored {
		count(&view.Unmonitored[i])
	}

	if upstream != nil {
		s.Bias = brokerBias(upstream)
		s.MostActive, s.MostActiveSource = hotContracts(upstream), "broker"
	} else {
		s.Bias = derivedBias(contracts)
		s.MostActive, s.MostActiveSource = rankActive(contracts), "derived"
	}

	s.RecentTrend = trendDescription(s.ActiveCallContracts, s.ActivePutContracts)
	if n := len(view.Trends); n > 0 {
		s.LatestTrendBias = view.Trends[n-1].Bias
	}
	return s
}

func brokerBias(up *models.BrokerSummary) models.InstitutionalBias {
	dir := up.DominantFlow
	if dir == "" {
		dir = models.Neutral
	}
	conf := 0.8
	if dir == models.Neutral {
		conf = 0.5
	}
	return models.InstitutionalBias{
		Direction:    dir,
		Confidence:   conf,
		Source:       "broker",
		CallVolume:   up.CallVolume,
		PutVolume:    up.PutVolume,
		PutCallRatio: up.PutCallRatio,
	}
}

// derivedBias counts bullish flow (calls bought, puts sold) against bearish
// flow (calls sold, puts bought).
func derivedBias(contracts []*models.ContractFlow) models.InstitutionalBias {
	var bullish, bearish int
	b := models.InstitutionalBias{Source: "derived"}
	for _, c := range contracts {
		dir := c.State.Direction
		call := c.Key.Side == models.Call
		switch {
		case call && isBuying(dir), !call && isSelling(dir):
			bullish++
		case call && isSelling(dir), !call && isBuying(dir):
			bearish++
		}
		if call {
			b.CallVolume += c.Volume()
		} else {
			b.PutVolume += c.Volume()
		}
	}
	if b.CallVolume > 0 {
		b.PutCallRatio = float64(b.PutVolume) / float64(b.CallVolume)
	}

	switch {
	case bullish > bearish*2:
		b.Direction, b.Confidence = StronglyBullish, 0.9
	case bullish > bearish:
		b.Direction, b.Confidence = Bullish, 0.7
	case bearish > bullish*2:
		b.Direction, b.Confidence = StronglyBearish, 0.9
	case bearish > bullish:
		b.Direction, b.Confidence = Bearish, 0.7
	default:
		b.Direction, b.Confidence = models.Neutral, 0.5
	}

	for _, c := range contracts {
		if len(b.PrimaryContracts) == maxPrimaryContracts {
			break
		}
		if !isActive(c.State.ActivityLevel) {
			continue
		}
		call := c.Key.Side == models.Call
		dir := c.State.Direction
		bull := (call && isBuying(dir)) || (!call && isSelling(dir))
		bear := (call && isSelling(dir)) || (!call && isBuying(dir))
		switch b.Direction {
		case Bullish, StronglyBullish:
			if bull {
				b.PrimaryContracts = append(b.PrimaryContracts, c.Key)
			}
		case Bearish, StronglyBearish:
			if bear {
				b.PrimaryContracts = append(b.PrimaryContracts, c.Key)
			}
		}
	}
	return b
}

func hotContracts(up *models.BrokerSummary) []models.ActiveStrike {
	out := make([]models.ActiveStrike, 0, len(up.HotContracts))
	for _, h := range up.HotContracts {
		if len(out) == maxMostActive {
			break
		}
		out = append(out, models.ActiveStrike{
			Key:           h.Key,
			Symbol:        h.Symbol,
			Volume:        h.Volume,
			PatternCount:  h.PatternCount,
			ActivityScore: h.ActivityScore,
		})
	}
	return out
}

// rankActive keeps HIGH and VERY_HIGH contracts, strongest level first,
// then by volume, then by key.
func rankActive(contracts []*models.ContractFlow) []models.ActiveStrike {
	var out []models.ActiveStrike
	for _, c := range contracts {
		if !isActive(c.State.ActivityLevel) {
			continue
		}
		out = append(out, models.ActiveStrike{
			Key:           c.Key,
			Symbol:        c.Symbol,
			ActivityLevel: c.State.ActivityLevel,
			Volume:        c.Volume(),
			PatternCount:  c.State.PatternCount,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := levelRank(a.ActivityLevel), levelRank(b.ActivityLevel); ra != rb {
			return ra < rb
		}
		if a.Volume != b.Volume {
			return a.Volume > b.Volume
		}
		return a.Key.Compare(b.Key) < 0
	})
	if len(out) > maxMostActive {
		out = out[:maxMostActive]
	}
	return out
}

func trendDescription(calls, puts int) string {
	switch {
	case calls > puts:
		return "Increasing call activity with institutional participation"
	case puts > calls:
		return "Increasing put activity suggesting defensive positioning"
	case calls > 0 && puts > 0:
		return "Mixed options activity across calls and puts"
	default:
		return "Limited options activity detected"
	}
}
