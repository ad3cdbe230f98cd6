package clock

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestValidMinute_Exhaustive(t *testing.T) {
	for diff := -60; diff <= 60; diff++ {
		want := diff == 0 || diff == -1 || diff == 59
		assert.Equal(t, want, ValidMinute(diff), "diff=%d", diff)
	}
}

func TestFresh_AcrossHourBoundary(t *testing.T) {
	assert.True(t, Fresh(59, 0), "stamped 59, now 0 is one minute behind")
	assert.True(t, Fresh(0, 0))
	assert.False(t, Fresh(0, 59), "stamped in the future")
	assert.False(t, Fresh(58, 0))
	assert.True(t, Fresh(30, 31))
	assert.False(t, Fresh(29, 31))
}

func TestFreshProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("current and previous minute are fresh", prop.ForAll(
		func(now uint8) bool {
			prev := uint8((int(now) + MinutesPerHour - 1) % MinutesPerHour)
			return Fresh(now, now) && Fresh(prev, now)
		},
		gen.UInt8Range(0, 59),
	))

	properties.Property("anything older than one minute is stale", prop.ForAll(
		func(now uint8, age int) bool {
			origin := uint8((int(now) + MinutesPerHour - age) % MinutesPerHour)
			return !Fresh(origin, now)
		},
		gen.UInt8Range(0, 59),
		gen.IntRange(2, 59),
	))

	properties.TestingRun(t)
}

func TestManual(t *testing.T) {
	c := NewManual(58)
	assert.Equal(t, uint8(58), c.Minute())
	c.Advance(1)
	assert.Equal(t, uint8(59), c.Minute())
	c.Advance(1)
	assert.Equal(t, uint8(0), c.Minute())
	c.Advance(-1)
	assert.Equal(t, uint8(59), c.Minute())
	c.Set(75)
	assert.Equal(t, uint8(15), c.Minute())
}
