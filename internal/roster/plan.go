package roster

import (
	"sort"
	"time"
)

// Relaxation records a backfill placement that broke an own-plan rest rule to
// keep a slot covered.
type Relaxation struct {
	Date     time.Time
	Shift    ShiftType
	WorkerID string
	Rule     ViolationReason
	// Displaced is the previous occupant when the placement displaced someone.
	Displaced string
}

// Plan is the working state of one scheduling run. It is not safe for
// concurrent use; parallel runs each build their own Plan.
type Plan struct {
	cfg   Config
	month Month

	prefs  []NormalizedPreference
	byID   map[string]int
	states map[string]*WorkerState

	grid    map[slotKey]string
	notes   map[slotKey]string
	seed    map[slotKey]string
	decided map[slotKey]bool
	busy    map[slotKey]map[string]string

	relaxations  []Relaxation
	seedAccepted int
	passes       int
}

func newPlan(cfg Config, month Month, prefs []NormalizedPreference, seed []Assignment, busy []BusyAssignment) *Plan {
	p := &Plan{
		cfg:     cfg,
		month:   month,
		prefs:   prefs,
		byID:    make(map[string]int, len(prefs)),
		states:  make(map[string]*WorkerState, len(prefs)),
		grid:    make(map[slotKey]string, month.Days()*2),
		notes:   make(map[slotKey]string),
		seed:    make(map[slotKey]string),
		decided: make(map[slotKey]bool, month.Days()*2),
		busy:    indexBusy(busy),
	}
	for i, pref := range prefs {
		p.byID[pref.WorkerID] = i
		p.states[pref.WorkerID] = &WorkerState{BaseHours: pref.BaseHours}
	}
	for _, a := range seed {
		date := Civil(a.Date)
		if !month.Contains(date) || !a.Shift.Valid() {
			continue
		}
		key := keyOf(date, a.Shift)
		if a.Note != "" {
			p.notes[key] = a.Note
		}
		if a.WorkerID != "" {
			p.seed[key] = a.WorkerID
		}
	}
	return p
}

func indexBusy(busy []BusyAssignment) map[slotKey]map[string]string {
	idx := make(map[slotKey]map[string]string, len(busy))
	for _, b := range busy {
		if b.WorkerID == "" || !b.Shift.Valid() {
			continue
		}
		key := keyOf(Civil(b.Date), b.Shift)
		if idx[key] == nil {
			idx[key] = make(map[string]string)
		}
		idx[key][b.WorkerID] = b.PatientID
	}
	return idx
}

func (p *Plan) busyAt(workerID string, date time.Time, shift ShiftType) bool {
	_, ok := p.busy[keyOf(date, shift)][workerID]
	return ok
}

// occupant returns the slot holder, falling back to the seed while the slot is
// still undecided during the greedy pass.
func (p *Plan) occupant(date time.Time, shift ShiftType) string {
	key := keyOf(date, shift)
	if w := p.grid[key]; w != "" {
		return w
	}
	if p.seed != nil && !p.decided[key] {
		return p.seed[key]
	}
	return ""
}

// eligible applies the exclusion rules for placing pref on a slot. In relaxed
// mode the own-plan same-day and rest rules are dropped and the dropped rule is
// returned; the allow flag, busy conflicts and the spread cap always apply.
func (p *Plan) eligible(pref *NormalizedPreference, date time.Time, shift ShiftType, relaxed bool) (bool, ViolationReason) {
	w := pref.WorkerID
	if !pref.Allows(shift) || p.busyAt(w, date, shift) {
		return false, ""
	}
	st := p.states[w]
	if pref.Capped() && st.AssignedHours+st.BaseHours >= pref.MaxPatientHours {
		return false, ""
	}

	other := shift.Other()
	var restDate time.Time
	var restShift ShiftType
	if shift == ShiftDay {
		restDate, restShift = date.AddDate(0, 0, -1), ShiftNight
	} else {
		restDate, restShift = date.AddDate(0, 0, 1), ShiftDay
	}
	if p.busyAt(w, date, other) || p.busyAt(w, restDate, restShift) {
		return false, ""
	}

	var rule ViolationReason
	switch {
	case p.occupant(date, other) == w:
		rule = ReasonSameDay
	case p.grid[keyOf(restDate, restShift)] == w:
		rule = ReasonNightToDay
	}
	if rule == "" {
		return true, ""
	}
	return relaxed, rule
}

// pick returns the best-ranked eligible worker for the slot.
func (p *Plan) pick(date time.Time, shift ShiftType, relaxed bool) (string, ViolationReason) {
	var (
		best     Candidate
		bestRule ViolationReason
		found    bool
	)
	for i := range p.prefs {
		pref := &p.prefs[i]
		ok, rule := p.eligible(pref, date, shift, relaxed)
		if !ok {
			continue
		}
		st := p.states[pref.WorkerID]
		c := Candidate{
			WorkerID:      pref.WorkerID,
			Priority:      pref.Priority,
			Target:        pref.Target(shift),
			Assigned:      st.AssignedFor(shift),
			TotalAssigned: st.Assigned(),
		}
		if !found || Better(c, best, p.cfg.Tolerance) {
			best, bestRule, found = c, rule, true
		}
	}
	if !found {
		return "", ""
	}
	return best.WorkerID, bestRule
}

// place puts the worker on the slot, releasing any previous occupant.
func (p *Plan) place(date time.Time, shift ShiftType, workerID string) {
	key := keyOf(date, shift)
	if prev := p.grid[key]; prev != "" {
		p.release(date, shift)
	}
	p.grid[key] = workerID
	st := p.states[workerID]
	if shift == ShiftNight {
		st.AssignedNightShifts++
	} else {
		st.AssignedDayShifts++
	}
	st.AssignedHours += p.cfg.Hours(shift)
	if st.LastShift == nil || later(date, shift, st.LastShift.Date, st.LastShift.Shift) {
		st.LastShift = &ShiftRef{Date: date, Shift: shift}
	}
}

func (p *Plan) release(date time.Time, shift ShiftType) {
	key := keyOf(date, shift)
	w := p.grid[key]
	if w == "" {
		return
	}
	delete(p.grid, key)
	st := p.states[w]
	if shift == ShiftNight {
		st.AssignedNightShifts--
	} else {
		st.AssignedDayShifts--
	}
	st.AssignedHours -= p.cfg.Hours(shift)
	st.LastShift = p.lastShiftOf(w)
}

func (p *Plan) lastShiftOf(workerID string) *ShiftRef {
	for day := p.month.Days(); day >= 1; day-- {
		date := p.month.Date(day)
		for i := len(shiftOrder) - 1; i >= 0; i-- {
			if p.grid[keyOf(date, shiftOrder[i])] == workerID {
				return &ShiftRef{Date: date, Shift: shiftOrder[i]}
			}
		}
	}
	return nil
}

func later(date time.Time, shift ShiftType, than time.Time, thanShift ShiftType) bool {
	if !date.Equal(than) {
		return date.After(than)
	}
	return shift == ShiftNight && thanShift == ShiftDay
}

// Month returns the month the plan covers.
func (p *Plan) Month() Month {
	return p.month
}

// Assignments lists every slot of the month in date order, day before night.
func (p *Plan) Assignments() []Assignment {
	out := make([]Assignment, 0, p.month.Days()*2)
	for day := 1; day <= p.month.Days(); day++ {
		date := p.month.Date(day)
		for _, shift := range shiftOrder {
			key := keyOf(date, shift)
			out = append(out, Assignment{Date: date, Shift: shift, WorkerID: p.grid[key], Note: p.notes[key]})
		}
	}
	return out
}

// States returns a copy of the per-worker usage.
func (p *Plan) States() map[string]*WorkerState {
	out := make(map[string]*WorkerState, len(p.states))
	for id, st := range p.states {
		out[id] = st.clone()
	}
	return out
}

// Unfilled lists slots without a worker.
func (p *Plan) Unfilled() []ShiftRef {
	var out []ShiftRef
	for day := 1; day <= p.month.Days(); day++ {
		date := p.month.Date(day)
		for _, shift := range shiftOrder {
			if p.grid[keyOf(date, shift)] == "" {
				out = append(out, ShiftRef{Date: date, Shift: shift})
			}
		}
	}
	return out
}

// Idle lists workers that ended the run without any slot, sorted by id.
func (p *Plan) Idle() []string {
	var out []string
	for _, pref := range p.prefs {
		if p.states[pref.WorkerID].Assigned() == 0 {
			out = append(out, pref.WorkerID)
		}
	}
	sort.Strings(out)
	return out
}

// Relaxations lists relaxed placements in the order they were made.
func (p *Plan) Relaxations() []Relaxation {
	return append([]Relaxation(nil), p.relaxations...)
}
