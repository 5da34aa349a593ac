package usecase

import (
	"sort"
	"strings"

	"OptionsFlow/internal/domain/models"
)

// Aggregate nests a snapshot into expiration -> strike -> side. It is pure:
// the same snapshot always yields the same view.
//
// Records for the same contract key overwrite each other, the later record
// wins. Patterns and trends are attached by key; those referencing a contract
// absent from the activity list land in the view's unmonitored bucket, as do
// records whose ticker differs from the requested one (e.g. SPXW under SPX).
func Aggregate(ticker string, snap *models.FlowSnapshot) models.AggregatedView {
	view := models.AggregatedView{Ticker: strings.ToUpper(strings.TrimSpace(ticker))}
	if snap == nil {
		view.Summary = summarize(&view, nil)
		return view
	}
	view.SnapshotTime = snap.Time

	own := func(key models.ContractKey) bool {
		return view.Ticker == "" || key.Ticker == view.Ticker
	}

	slots := make(map[string]*models.ContractFlow, len(snap.Contracts))
	orphans := make(map[string]*models.ContractFlow)
	for _, c := range snap.Contracts {
		flow := &models.ContractFlow{
			Key:         c.Key,
			Symbol:      c.Symbol,
			IsMonitored: c.IsMonitored,
			LastUpdate:  c.LastUpdate,
			Aggregation: c.Aggregation,
		}
		if own(c.Key) {
			slots[c.Key.ID()] = flow
		} else {
			orphans[c.Key.ID()] = flow
		}
	}

	target := func(key models.ContractKey) *models.ContractFlow {
		if slot, ok := slots[key.ID()]; ok {
			return slot
		}
		slot, ok := orphans[key.ID()]
		if !ok {
			slot = &models.ContractFlow{Key: key}
			orphans[key.ID()] = slot
		}
		return slot
	}
	seen := make(map[string]struct{}, len(snap.Patterns))
	for _, p := range snap.Patterns {
		id := p.Key.ID() + "|" + p.Kind + "|" + p.Timestamp.UTC().String()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		slot := target(p.Key)
		slot.Patterns = append(slot.Patterns, p)
	}

	for _, tr := range snap.Trends {
		if tr.Key == nil {
			view.Trends = append(view.Trends, tr)
			continue
		}
		slot := target(*tr.Key)
		slot.Trends = append(slot.Trends, tr)
	}
	sortTrends(view.Trends)

	for _, slot := range slots {
		finishSlot(slot)
	}
	for _, slot := range orphans {
		finishSlot(slot)
	}

	view.Expirations = nest(slots)
	view.Unmonitored = flatten(orphans)
	view.Summary = summarize(&view, snap.Summary)
	return view
}

func finishSlot(slot *models.ContractFlow) {
	sort.SliceStable(slot.Patterns, func(i, j int) bool {
		a, b := slot.Patterns[i], slot.Patterns[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Kind < b.Kind
	})
	sortTrends(slot.Trends)
	slot.State = contractState(slot)
}

func sortTrends(trends []models.TrendInterval) {
	sort.SliceStable(trends, func(i, j int) bool {
		if !trends[i].Start.Equal(trends[j].Start) {
			return trends[i].Start.Before(trends[j].Start)
		}
		return trends[i].End.Before(trends[j].End)
	})
}

func nest(slots map[string]*models.ContractFlow) []models.ExpirationGroup {
	byExp := make(map[int]map[string]*models.StrikeGroup)
	for _, slot := range slots {
		strikes, ok := byExp[slot.Key.Expiration]
		if !ok {
			strikes = make(map[string]*models.StrikeGroup)
			byExp[slot.Key.Expiration] = strikes
		}
		sg, ok := strikes[slot.Key.StrikeID()]
		if !ok {
			sg = &models.StrikeGroup{Strike: slot.Key.Strike}
			strikes[slot.Key.StrikeID()] = sg
		}
		if slot.Key.Side == models.Put {
			sg.Put = slot
		} else {
			sg.Call = slot
		}
	}

	exps := make([]int, 0, len(byExp))
	for exp := range byExp {
		exps = append(exps, exp)
	}
	sort.Ints(exps)

	groups := make([]models.ExpirationGroup, 0, len(exps))
	for _, exp := range exps {
		eg := models.ExpirationGroup{Expiration: exp}
		for _, sg := range byExp[exp] {
			eg.Strikes = append(eg.Strikes, *sg)
		}
		sort.Slice(eg.Strikes, func(i, j int) bool { return eg.Strikes[i].Strike.LessThan(eg.Strikes[j].Strike) })
		groups = append(groups, eg)
	}
	return groups
}

func flatten(m map[string]*models.ContractFlow) []models.ContractFlow {
	if len(m) == 0 {
		return nil
	}
	out := make([]models.ContractFlow, 0, len(m))
	for _, slot := range m {
		out = append(out, *slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Compare(out[j].Key) < 0 })
	return out
}
