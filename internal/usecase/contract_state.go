package usecase

import (
	"strings"

	"OptionsFlow/internal/domain/models"
)

// contractState reads activity level, dominant direction and significance
// off a contract's patterns and aggregated volume.
func contractState(c *models.ContractFlow) models.ContractState {
	var buys, sells int
	significance := models.ActivityLow
	for _, p := range c.Patterns {
		switch dir := strings.ToUpper(p.Direction); {
		case strings.Contains(dir, "BULLISH") || strings.Contains(dir, "BUY"):
			buys++
		case strings.Contains(dir, "BEARISH") || strings.Contains(dir, "SELL"):
			sells++
		}

		if (p.Kind == models.PatternBlock || p.Kind == models.PatternSweep) && p.TotalVolume > 1000 {
			significance = models.ActivityHigh
		} else if p.Confidence > 0.8 && significance == models.ActivityLow {
			significance = models.ActivityMedium
		}
	}

	return models.ContractState{
		ActivityLevel: activityLevel(len(c.Patterns), c.Volume()),
		Direction:     dominantDirection(buys, sells),
		Significance:  significance,
		PatternCount:  len(c.Patterns),
	}
}

func activityLevel(patterns int, volume int64) string {
	switch {
	case patterns >= 10 || volume > 10000:
		return models.ActivityVeryHigh
	case patterns >= 5 || volume > 5000:
		return models.ActivityHigh
	case patterns >= 2 || volume > 1000:
		return models.ActivityMedium
	default:
		return models.ActivityLow
	}
}

func dominantDirection(buys, sells int) string {
	switch {
	case buys > sells*2:
		return models.StrongBuy
	case buys > sells:
		return models.Buy
	case sells > buys*2:
		return models.StrongSell
	case sells > buys:
		return models.Sell
	default:
		return models.Neutral
	}
}

func isActive(level string) bool {
	return level == models.ActivityHigh || level == models.ActivityVeryHigh
}

func isBuying(dir string) bool {
	return dir == models.Buy || dir == models.StrongBuy
}

func isSelling(dir string) bool {
	return dir == models.Sell || dir == models.StrongSell
}

func levelRank(level string) int {
	switch level {
	case models.ActivityVeryHigh:
		return 0
	case models.ActivityHigh:
		return 1
	case models.ActivityMedium:
		return 2
	default:
		return 3
	}
}
