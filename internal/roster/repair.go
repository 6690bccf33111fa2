package roster

// Repair runs the backfill loop until the plan stops changing or the pass bound
// is reached. Each pass first gives idle workers with demand one slot, then
// fills empty slots, falling back to relaxed mode when no compliant worker
// exists.
func (e *Engine) Repair(p *Plan) {
	for pass := 1; pass <= e.cfg.MaxRepairPasses; pass++ {
		p.passes = pass
		changed := p.placeIdle()
		if p.fillGaps() {
			changed = true
		}
		if !changed {
			return
		}
	}
}

// Passes returns how many repair passes ran.
func (p *Plan) Passes() int {
	return p.passes
}

func (p *Plan) placeIdle() bool {
	changed := false
	for i := range p.prefs {
		pref := &p.prefs[i]
		if pref.Days < 1 || p.states[pref.WorkerID].Assigned() > 0 {
			continue
		}
		if p.forcePlace(pref) {
			changed = true
		}
	}
	return changed
}

// forcePlace puts an idle worker on the first slot of a preferred type whose
// occupant can spare it. Occupants holding a single slot are never displaced.
func (p *Plan) forcePlace(pref *NormalizedPreference) bool {
	for _, relaxed := range []bool{false, true} {
		for _, shift := range preferredShifts(pref) {
			for day := 1; day <= p.month.Days(); day++ {
				date := p.month.Date(day)
				occ := p.grid[keyOf(date, shift)]
				if occ == pref.WorkerID {
					continue
				}
				if occ != "" && p.states[occ].Assigned() <= 1 {
					continue
				}
				ok, rule := p.eligible(pref, date, shift, relaxed)
				if !ok {
					continue
				}
				p.place(date, shift, pref.WorkerID)
				if rule != "" {
					p.relaxations = append(p.relaxations, Relaxation{
						Date: date, Shift: shift, WorkerID: pref.WorkerID, Rule: rule, Displaced: occ,
					})
				}
				return true
			}
		}
	}
	return false
}

// preferredShifts orders the allowed types by target, day first on ties.
func preferredShifts(pref *NormalizedPreference) []ShiftType {
	out := make([]ShiftType, 0, 2)
	for _, shift := range shiftOrder {
		if pref.Allows(shift) {
			out = append(out, shift)
		}
	}
	if len(out) == 2 && pref.TargetNightShifts > pref.TargetDayShifts {
		out[0], out[1] = out[1], out[0]
	}
	return out
}

func (p *Plan) fillGaps() bool {
	changed := false
	for day := 1; day <= p.month.Days(); day++ {
		date := p.month.Date(day)
		for _, shift := range shiftOrder {
			if p.grid[keyOf(date, shift)] != "" {
				continue
			}
			w, _ := p.pick(date, shift, false)
			var rule ViolationReason
			if w == "" {
				w, rule = p.pick(date, shift, true)
			}
			if w == "" {
				continue
			}
			p.place(date, shift, w)
			if rule != "" {
				p.relaxations = append(p.relaxations, Relaxation{Date: date, Shift: shift, WorkerID: w, Rule: rule})
			}
			changed = true
		}
	}
	return changed
}
