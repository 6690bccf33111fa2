package roster

// Schedule runs the greedy pass over the month: every day in order, day slot
// before night slot. Seeded workers are kept when eligible; otherwise the
// best-ranked eligible worker wins. Slots without candidates stay empty for
// Repair to resolve.
func (e *Engine) Schedule(prefs []NormalizedPreference, seed []Assignment, busy []BusyAssignment, month Month) *Plan {
	p := newPlan(e.cfg, month, prefs, seed, busy)
	p.fill()
	return p
}

func (p *Plan) fill() {
	for day := 1; day <= p.month.Days(); day++ {
		date := p.month.Date(day)
		for _, shift := range shiftOrder {
			key := keyOf(date, shift)
			p.decided[key] = true

			if w, ok := p.seed[key]; ok {
				if idx, known := p.byID[w]; known {
					if ok, _ := p.eligible(&p.prefs[idx], date, shift, false); ok {
						p.place(date, shift, w)
						p.seedAccepted++
						continue
					}
				}
			}
			if w, _ := p.pick(date, shift, false); w != "" {
				p.place(date, shift, w)
			}
		}
	}
	p.seed = nil
	p.decided = nil
}
