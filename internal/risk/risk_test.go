package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimitsValidatePosition(t *testing.T) {
	limits := Limits{
		MaxNotionalUSD:    1000,
		MaxPositionSizes:  map[string]float64{"m1:yes": 50},
		DailyLossLimitUSD: 100,
	}

	assert.True(t, limits.ValidatePosition("m1:yes", 50))
	assert.True(t, limits.ValidatePosition("m1:yes", -50))
	assert.False(t, limits.ValidatePosition("m1:yes", 50.5))
	// Symbols without a configured limit are unauthorized.
	assert.False(t, limits.ValidatePosition("m1:no", 1))
}

func TestLimitsValidateLoss(t *testing.T) {
	limits := Limits{DailyLossLimitUSD: 100}

	assert.True(t, limits.ValidateLoss(0))
	assert.True(t, limits.ValidateLoss(100))
	assert.False(t, limits.ValidateLoss(100.01))
}

func TestInventoryCaps(t *testing.T) {
	caps := InventoryCaps{MaxInventory: map[string]float64{"m1:yes": 20}}

	assert.True(t, caps.WithinCaps("m1:yes", 20))
	assert.True(t, caps.WithinCaps("m1:yes", -15))
	assert.False(t, caps.WithinCaps("m1:yes", 21))
	assert.False(t, caps.WithinCaps("m1:no", 0.5))
}

func TestPnLTrackerAccumulatesRealized(t *testing.T) {
	tracker := NewPnLTracker()

	tracker.AddRealized("m1:yes", 2.5)
	tracker.AddRealized("m1:yes", -1.0)
	tracker.UpdateUnrealized("m1:yes", 0.75)

	positions := tracker.Positions()
	assert.InDelta(t, 1.5, positions["m1:yes"].Realized, 1e-9)
	assert.InDelta(t, 0.75, positions["m1:yes"].Unrealized, 1e-9)
	assert.InDelta(t, 2.25, tracker.TotalPnL(), 1e-9)
}

func TestPnLTrackerUnrealizedIsReplaced(t *testing.T) {
	tracker := NewPnLTracker()

	tracker.UpdateUnrealized("m1:yes", 5)
	tracker.UpdateUnrealized("m1:yes", -2)

	assert.InDelta(t, -2, tracker.TotalPnL(), 1e-9)
}

func TestPnLTrackerSumsAcrossSymbols(t *testing.T) {
	tracker := NewPnLTracker()

	tracker.AddRealized("m1:yes", 1)
	tracker.AddRealized("m1:no", 2)
	tracker.UpdateUnrealized("m2:yes", 3)

	assert.InDelta(t, 6, tracker.TotalPnL(), 1e-9)
}
