package roster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestNormalizeDefaults(t *testing.T) {
	out := Normalize([]WorkerPreference{{WorkerID: "w1"}}, 30)
	require.Len(t, out, 1)
	assert.True(t, out[0].AllowDay)
	assert.True(t, out[0].AllowNight)
	assert.Equal(t, 50, out[0].Ratio)
	assert.Equal(t, 1, out[0].Days)
}

func TestNormalizeCoercesInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		pref  WorkerPreference
		ratio int
		days  int
	}{
		{name: "ratio above range", pref: WorkerPreference{Ratio: floatPtr(150)}, ratio: 100, days: 1},
		{name: "ratio below range", pref: WorkerPreference{Ratio: floatPtr(-5)}, ratio: 0, days: 1},
		{name: "ratio NaN", pref: WorkerPreference{Ratio: floatPtr(math.NaN())}, ratio: 50, days: 1},
		{name: "days zero", pref: WorkerPreference{Days: floatPtr(0)}, ratio: 50, days: 1},
		{name: "days NaN", pref: WorkerPreference{Days: floatPtr(math.NaN())}, ratio: 50, days: 1},
		{name: "days beyond month", pref: WorkerPreference{Days: floatPtr(45)}, ratio: 50, days: 30},
		{name: "ratio huge", pref: WorkerPreference{Ratio: floatPtr(1e30)}, ratio: 100, days: 1},
		{name: "ratio hugely negative", pref: WorkerPreference{Ratio: floatPtr(-1e30)}, ratio: 0, days: 1},
		{name: "ratio infinite", pref: WorkerPreference{Ratio: floatPtr(math.Inf(1))}, ratio: 100, days: 1},
		{name: "ratio negative infinite", pref: WorkerPreference{Ratio: floatPtr(math.Inf(-1))}, ratio: 0, days: 1},
		{name: "days huge", pref: WorkerPreference{Days: floatPtr(1e30)}, ratio: 50, days: 30},
		{name: "days hugely negative", pref: WorkerPreference{Days: floatPtr(-1e30)}, ratio: 50, days: 1},
		{name: "days infinite", pref: WorkerPreference{Days: floatPtr(math.Inf(1))}, ratio: 50, days: 30},
		{name: "fractional values round", pref: WorkerPreference{Ratio: floatPtr(59.6), Days: floatPtr(11.4)}, ratio: 60, days: 11},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.pref.WorkerID = "w1"
			out := Normalize([]WorkerPreference{tc.pref}, 30)
			require.Len(t, out, 1)
			assert.Equal(t, tc.ratio, out[0].Ratio)
			assert.Equal(t, tc.days, out[0].Days)
		})
	}
}

func TestNormalizeHoursIgnoreNaNAndNegatives(t *testing.T) {
	out := Normalize([]WorkerPreference{
		{WorkerID: "w1", CapacityHours: math.NaN(), CommittedHours: -4},
		{WorkerID: "w2", CapacityHours: 160, CommittedHours: 12},
	}, 30)
	require.Len(t, out, 2)
	assert.Zero(t, out[0].CapacityHours)
	assert.Zero(t, out[0].BaseHours)
	assert.Equal(t, 160.0, out[1].CapacityHours)
	assert.Equal(t, 12.0, out[1].BaseHours)
}

func TestNormalizeBothShiftsDisallowedAllowsBoth(t *testing.T) {
	out := Normalize([]WorkerPreference{{WorkerID: "w1", AllowDay: boolPtr(false), AllowNight: boolPtr(false)}}, 30)
	require.Len(t, out, 1)
	assert.True(t, out[0].AllowDay)
	assert.True(t, out[0].AllowNight)
}

func TestNormalizeDropsBlankAndDuplicateWorkers(t *testing.T) {
	out := Normalize([]WorkerPreference{
		{WorkerID: "w1", Priority: true},
		{WorkerID: ""},
		{WorkerID: "w1"},
		{WorkerID: "w2", CommittedHours: -4},
	}, 30)
	require.Len(t, out, 2)
	assert.True(t, out[0].Priority)
	assert.Equal(t, "w2", out[1].WorkerID)
	assert.Zero(t, out[1].BaseHours)
}

func TestComputeTargetsComplementaryRatiosMatchMonthHours(t *testing.T) {
	engine := New(DefaultConfig())
	days := 30
	prefs := engine.ComputeTargets(Normalize([]WorkerPreference{
		{WorkerID: "a", Ratio: floatPtr(60), Days: floatPtr(float64(days))},
		{WorkerID: "b", Ratio: floatPtr(40), Days: floatPtr(float64(days))},
	}, days), days)

	var dayHours, nightHours float64
	for _, p := range prefs {
		dayHours += p.TargetDayHours
		nightHours += p.TargetNightHours
	}
	assert.InDelta(t, float64(days)*8, dayHours, 8)
	assert.InDelta(t, float64(days)*10, nightHours, 10)
	assert.Equal(t, 18, prefs[0].TargetDayShifts)
	assert.Equal(t, 12, prefs[0].TargetNightShifts)
}

func TestComputeTargetsHonoursAllowFlags(t *testing.T) {
	engine := New(DefaultConfig())
	prefs := engine.ComputeTargets(Normalize([]WorkerPreference{
		{WorkerID: "nights", AllowDay: boolPtr(false), Ratio: floatPtr(80), Days: floatPtr(10)},
		{WorkerID: "days", AllowNight: boolPtr(false), Ratio: floatPtr(20), Days: floatPtr(10)},
		{WorkerID: "split", Ratio: floatPtr(50), Days: floatPtr(5)},
	}, 30), 30)

	assert.Equal(t, 0, prefs[0].TargetDayShifts)
	assert.Equal(t, 10, prefs[0].TargetNightShifts)
	assert.Equal(t, 100.0, prefs[0].TargetNightHours)
	assert.Equal(t, 10, prefs[1].TargetDayShifts)
	assert.Equal(t, 0, prefs[1].TargetNightShifts)
	assert.Equal(t, 3, prefs[2].TargetDayShifts)
	assert.Equal(t, 2, prefs[2].TargetNightShifts)
}

func TestComputeTargetsSpreadCap(t *testing.T) {
	engine := New(DefaultConfig())
	prefs := engine.ComputeTargets(Normalize([]WorkerPreference{
		{WorkerID: "capacity", SpreadAcrossPatients: true, CapacityHours: 160},
		{WorkerID: "fallback", SpreadAcrossPatients: true, Days: floatPtr(10)},
		{WorkerID: "single", CapacityHours: 160},
	}, 30), 30)

	assert.Equal(t, 80.0, prefs[0].MaxPatientHours)
	assert.True(t, prefs[0].Capped())
	assert.Equal(t, 45.0, prefs[1].MaxPatientHours)
	assert.Zero(t, prefs[2].MaxPatientHours)
	assert.False(t, prefs[2].Capped())
}
