package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentaldesk/rentals/internal/event"
	"github.com/rentaldesk/rentals/internal/types"
)

var now = time.Date(2024, 9, 30, 12, 0, 0, 0, time.UTC)

func entry(eventType, category, weight string, daysAgo int) types.ActivityEntry {
	return types.ActivityEntry{
		EventID:           "evt",
		EventType:         eventType,
		OccurredAt:        now.AddDate(0, 0, -daysAgo),
		IndexedEntityType: "contract",
		IndexedEntityID:   "1",
		EntityRole:        "context",
		Category:          category,
		Weight:            weight,
	}
}

func onTime(daysAgo int) types.ActivityEntry {
	return entry(event.TypePaymentPaid, "payment", "minor", daysAgo)
}

func late(daysAgo int) types.ActivityEntry {
	return entry(event.TypePaymentPaid, "payment", "major", daysAgo)
}

func window() (time.Time, time.Time) {
	return now.AddDate(0, -6, 0), now
}

func TestAggregate_CategoryCounts(t *testing.T) {
	since, until := window()
	s := Aggregate([]types.ActivityEntry{
		entry(event.TypeContractCreated, "contract", "major", 170),
		entry(event.TypeInstallmentsGenerated, "payment", "minor", 170),
		onTime(120),
		late(60),
	}, "contract", "1", since, until)

	require.Len(t, s.Categories, 2)
	assert.Equal(t, 1, s.Categories["contract"].Count)
	assert.Equal(t, 3, s.Categories["payment"].Count)
	assert.Equal(t, map[string]int{"minor": 2, "major": 1}, s.Categories["payment"].ByWeight)
	assert.Equal(t, "contract", s.EntityType)
	assert.Equal(t, "1", s.EntityID)
}

func TestAggregate_GoodStanding(t *testing.T) {
	since, until := window()
	s := Aggregate([]types.ActivityEntry{onTime(150), onTime(120), onTime(90), onTime(60), onTime(30)}, "contract", "1", since, until)
	assert.Equal(t, StandingGood, s.Standing)
	assert.Empty(t, s.Escalations)
	assert.NotNil(t, s.Escalations)
}

func TestAggregate_RecentLatePaymentIsWatch(t *testing.T) {
	since, until := window()
	s := Aggregate([]types.ActivityEntry{onTime(90), onTime(60), late(10)}, "contract", "1", since, until)
	assert.Equal(t, StandingWatch, s.Standing)
	require.Len(t, s.Escalations, 1)
	assert.Equal(t, "late_payment_recent", s.Escalations[0].Rule.ID)
}

func TestAggregate_OldLatePaymentIgnoredByRecentRule(t *testing.T) {
	since, until := window()
	s := Aggregate([]types.ActivityEntry{late(100), onTime(30)}, "contract", "1", since, until)
	assert.Equal(t, StandingGood, s.Standing)
}

func TestAggregate_RepeatedLatePaymentsIsConcern(t *testing.T) {
	since, until := window()
	s := Aggregate([]types.ActivityEntry{late(150), late(100), late(20)}, "contract", "1", since, until)
	assert.Equal(t, StandingConcern, s.Standing)
	require.Len(t, s.Escalations, 2)
	first := s.Escalations[0]
	assert.Equal(t, "late_payments_repeated", first.Rule.ID)
	assert.Equal(t, 3, first.Count)
	assert.Equal(t, now.AddDate(0, 0, -150), first.Earliest)
	assert.Equal(t, now.AddDate(0, 0, -20), first.Latest)
}

func TestAggregate_DeletedPayments(t *testing.T) {
	since, until := window()
	s := Aggregate([]types.ActivityEntry{
		entry(event.TypePaymentDeleted, "payment", "critical", 40),
		entry(event.TypePaymentDeleted, "payment", "critical", 5),
	}, "contract", "1", since, until)
	assert.Equal(t, StandingConcern, s.Standing)
	assert.Equal(t, "Two or more installments deleted in 90 days", s.StandingReason)
}

func TestTrend(t *testing.T) {
	since, until := window()
	rising := []types.ActivityEntry{late(170), late(30), late(20), late(10)}
	assert.Equal(t, "rising", trend(rising, "payment", since, until))

	falling := []types.ActivityEntry{late(170), late(160), late(150), late(10)}
	assert.Equal(t, "falling", trend(falling, "payment", since, until))

	assert.Equal(t, "stable", trend([]types.ActivityEntry{late(150), late(10)}, "payment", since, until))
}
