package spc

import "sort"

// AggregateAlerts rolls scored points up to one summary per step.
// Only steps with at least one alert are returned, ordered by key. Every
// rule in AlertRules is present in RuleCounts, zero when it never fired.
func AggregateAlerts(points []ScoredPoint) []AlertSummary {
	if len(points) == 0 {
		return nil
	}

	byKey := make(map[string]*AlertSummary)
	var keys []string
	for _, p := range points {
		a, ok := byKey[p.Key]
		if !ok {
			a = &AlertSummary{Key: p.Key, RuleCounts: newRuleCounts()}
			byKey[p.Key] = a
			keys = append(keys, p.Key)
		}
		a.NPoints++
		if !p.Alert {
			continue
		}

		a.NAlerts++
		a.RuleCounts[p.Rule]++
		if a.FirstAlert.IsZero() || p.Time.Before(a.FirstAlert) {
			a.FirstAlert = p.Time
		}
		if p.Time.After(a.LastAlert) {
			a.LastAlert = p.Time
		}
	}

	sort.SliceStable(keys, func(i, j int) bool { return CompareKeys(keys[i], keys[j]) < 0 })

	out := make([]AlertSummary, 0, len(keys))
	for _, k := range keys {
		if a := byKey[k]; a.NAlerts > 0 {
			out = append(out, *a)
		}
	}
	return out
}

func newRuleCounts() map[Rule]int {
	counts := make(map[Rule]int, len(AlertRules))
	for _, r := range AlertRules {
		counts[r] = 0
	}
	return counts
}
