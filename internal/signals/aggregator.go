package signals

import (
	"sort"
	"time"

	"github.com/rentaldesk/rentals/internal/types"
)

// Standing values, from best to worst.
const (
	StandingGood    = "good"
	StandingWatch   = "watch"
	StandingConcern = "concern"
)

// CategorySummary counts one category's entries.
type CategorySummary struct {
	Category string         `json:"category"`
	Count    int            `json:"count"`
	ByWeight map[string]int `json:"by_weight"`
	Trend    string         `json:"trend"` // "rising", "falling" or "stable"
}

// Escalation is a Rule that fired.
type Escalation struct {
	Rule     Rule      `json:"rule"`
	Count    int       `json:"count"`
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// Summary is the condensed activity of one entity over [Since, Until].
type Summary struct {
	EntityType     string                     `json:"entity_type"`
	EntityID       string                     `json:"entity_id"`
	Since          time.Time                  `json:"since"`
	Until          time.Time                  `json:"until"`
	Categories     map[string]CategorySummary `json:"categories"`
	Escalations    []Escalation               `json:"escalations"`
	Standing       string                     `json:"standing"`
	StandingReason string                     `json:"standing_reason"`
}

// Aggregate summarises entries, which should already be restricted to the
// window and to one entity.
func Aggregate(entries []types.ActivityEntry, entityType, entityID string, since, until time.Time) Summary {
	categories := make(map[string]CategorySummary)
	for _, e := range entries {
		cs, ok := categories[e.Category]
		if !ok {
			cs = CategorySummary{Category: e.Category, ByWeight: make(map[string]int)}
		}
		cs.Count++
		cs.ByWeight[e.Weight]++
		categories[e.Category] = cs
	}
	for cat, cs := range categories {
		cs.Trend = trend(entries, cat, since, until)
		categories[cat] = cs
	}

	escalations := Evaluate(entries, until)
	standing, reason := standingOf(escalations)
	return Summary{
		EntityType:     entityType,
		EntityID:       entityID,
		Since:          since,
		Until:          until,
		Categories:     categories,
		Escalations:    escalations,
		Standing:       standing,
		StandingReason: reason,
	}
}

// Evaluate returns the Rules that fire on entries as of now.
func Evaluate(entries []types.ActivityEntry, now time.Time) []Escalation {
	out := []Escalation{}
	for _, rule := range Rules {
		if es, ok := evaluate(rule, entries, now); ok {
			out = append(out, es)
		}
	}
	return out
}

func evaluate(rule Rule, entries []types.ActivityEntry, now time.Time) (Escalation, bool) {
	windowStart := now.AddDate(0, 0, -rule.WithinDays)
	var matching []time.Time
	for _, e := range entries {
		if e.OccurredAt.Before(windowStart) || e.OccurredAt.After(now) {
			continue
		}
		if e.EventType != rule.EventType {
			continue
		}
		if rule.Weight != "" && e.Weight != rule.Weight {
			continue
		}
		matching = append(matching, e.OccurredAt)
	}
	if len(matching) < rule.Count {
		return Escalation{}, false
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].Before(matching[j]) })
	return Escalation{
		Rule:     rule,
		Count:    len(matching),
		Earliest: matching[0],
		Latest:   matching[len(matching)-1],
	}, true
}

// trend compares the category's volume in the two halves of the window.
func trend(entries []types.ActivityEntry, category string, since, until time.Time) string {
	mid := since.Add(until.Sub(since) / 2)
	var first, second int
	for _, e := range entries {
		if e.Category != category {
			continue
		}
		if e.OccurredAt.Before(mid) {
			first++
		} else {
			second++
		}
	}
	switch {
	case second > first+1:
		return "rising"
	case first > second+1:
		return "falling"
	}
	return "stable"
}

func standingOf(escalations []Escalation) (string, string) {
	standing, reason := StandingGood, "No escalation rules triggered."
	for _, e := range escalations {
		switch e.Rule.Escalation {
		case StandingConcern:
			return StandingConcern, e.Rule.Description
		case StandingWatch:
			if standing == StandingGood {
				standing, reason = StandingWatch, e.Rule.Description
			}
		}
	}
	return standing, reason
}
