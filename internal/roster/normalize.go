package roster

import "math"

const (
	defaultRatio = 50
	minDays      = 1
)

// Normalize coerces raw preferences into a consistent shape. Blank and
// duplicate worker ids are dropped, keeping the first occurrence. The function
// never fails: invalid values fall back to their defaults.
func Normalize(prefs []WorkerPreference, daysInMonth int) []NormalizedPreference {
	if daysInMonth < minDays {
		daysInMonth = minDays
	}
	seen := make(map[string]struct{}, len(prefs))
	out := make([]NormalizedPreference, 0, len(prefs))
	for _, raw := range prefs {
		if raw.WorkerID == "" {
			continue
		}
		if _, dup := seen[raw.WorkerID]; dup {
			continue
		}
		seen[raw.WorkerID] = struct{}{}
		out = append(out, normalizeOne(raw, daysInMonth))
	}
	return out
}

func normalizeOne(raw WorkerPreference, daysInMonth int) NormalizedPreference {
	allowDay := boolOr(raw.AllowDay, true)
	allowNight := boolOr(raw.AllowNight, true)
	if !allowDay && !allowNight {
		allowDay, allowNight = true, true
	}

	ratio := defaultRatio
	if raw.Ratio != nil && !math.IsNaN(*raw.Ratio) {
		ratio = clampRound(*raw.Ratio, 0, 100)
	}

	days := minDays
	if raw.Days != nil && !math.IsNaN(*raw.Days) {
		days = clampRound(*raw.Days, minDays, daysInMonth)
	}

	return NormalizedPreference{
		WorkerID:             raw.WorkerID,
		AllowDay:             allowDay,
		AllowNight:           allowNight,
		Ratio:                ratio,
		Days:                 days,
		Priority:             raw.Priority,
		SpreadAcrossPatients: raw.SpreadAcrossPatients,
		CapacityHours:        nonNegative(raw.CapacityHours),
		BaseHours:            nonNegative(raw.CommittedHours),
	}
}

// ComputeTargets derives per-type shift and hour targets and, for spreading
// workers, the per-patient hour cap. The input slice is not modified.
func (e *Engine) ComputeTargets(prefs []NormalizedPreference, daysInMonth int) []NormalizedPreference {
	out := make([]NormalizedPreference, len(prefs))
	for i, p := range prefs {
		days := clampInt(p.Days, minDays, maxInt(daysInMonth, minDays))
		day := int(math.Round(float64(days*p.Ratio) / 100))
		night := days - day
		switch {
		case !p.AllowDay:
			day, night = 0, days
		case !p.AllowNight:
			day, night = days, 0
		}

		p.Days = days
		p.TargetDayShifts = day
		p.TargetNightShifts = night
		p.TargetDayHours = float64(day) * e.cfg.DayShiftHours
		p.TargetNightHours = float64(night) * e.cfg.NightShiftHours
		p.MaxPatientHours = 0
		if p.SpreadAcrossPatients {
			capacity := p.CapacityHours
			if capacity <= 0 {
				capacity = p.TargetDayHours + p.TargetNightHours
			}
			p.MaxPatientHours = capacity * e.cfg.SpreadCapFraction
		}
		out[i] = p
	}
	return out
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// clampRound bounds v in float space before rounding, so huge and infinite
// values land on the nearest bound instead of overflowing the conversion.
func clampRound(v float64, lo, hi int) int {
	v = math.Min(math.Max(v, float64(lo)), float64(hi))
	return clampInt(int(math.Round(v)), lo, hi)
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
