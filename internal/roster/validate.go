package roster

import (
	"fmt"
	"sort"
	"time"
)

// ViolationReason tags the rule a violation broke.
type ViolationReason string

const (
	// ReasonBusySameSlot: the worker holds the same slot for another patient.
	ReasonBusySameSlot ViolationReason = "busy_same_slot"
	// ReasonBusyNightBefore: a day shift follows the worker's night shift elsewhere.
	ReasonBusyNightBefore ViolationReason = "busy_night_before_day"
	// ReasonBusyDayAfter: a night shift precedes the worker's day shift elsewhere.
	ReasonBusyDayAfter ViolationReason = "busy_day_after_night"
	ReasonSameDay      ViolationReason = "same_day"
	ReasonNightToDay   ViolationReason = "night_to_day"
)

// RestRule reports whether the reason is an own-plan rest rule. These are the
// only rules relaxed-mode backfill may break.
func (r ViolationReason) RestRule() bool {
	return r == ReasonSameDay || r == ReasonNightToDay
}

// Violation is a rule breach found in a candidate plan.
type Violation struct {
	WorkerID string
	Date     time.Time
	NextDate *time.Time
	Shift    ShiftType
	Reason   ViolationReason
	// PatientID is the other patient for busy conflicts.
	PatientID string
}

// Message renders the violation for end users.
func (v *Violation) Message() string {
	date := v.Date.Format(DateLayout)
	switch v.Reason {
	case ReasonBusySameSlot:
		return fmt.Sprintf("worker %s already works the %s shift on %s for patient %s", v.WorkerID, v.Shift, date, v.PatientID)
	case ReasonBusyNightBefore:
		return fmt.Sprintf("worker %s works a night shift on %s for patient %s and cannot take the day shift on %s", v.WorkerID, date, v.PatientID, v.NextDate.Format(DateLayout))
	case ReasonBusyDayAfter:
		return fmt.Sprintf("worker %s works a day shift on %s for patient %s and cannot take the night shift on %s", v.WorkerID, v.NextDate.Format(DateLayout), v.PatientID, date)
	case ReasonSameDay:
		return fmt.Sprintf("worker %s is assigned both day and night shifts on %s", v.WorkerID, date)
	case ReasonNightToDay:
		return fmt.Sprintf("worker %s works the night of %s and the day of %s", v.WorkerID, date, v.NextDate.Format(DateLayout))
	}
	return fmt.Sprintf("worker %s violates %s on %s", v.WorkerID, v.Reason, date)
}

func (v *Violation) Error() string {
	return v.Message()
}

// Validate returns the first violation in candidate against busy, or nil.
// Cross-patient busy conflicts are checked before own-plan rest rules.
func Validate(candidate []Assignment, busy []BusyAssignment) *Violation {
	out := check(candidate, busy, true)
	if len(out) == 0 {
		return nil
	}
	return &out[0]
}

// ValidateAll returns every violation in the same order Validate would find
// them.
func ValidateAll(candidate []Assignment, busy []BusyAssignment) []Violation {
	return check(candidate, busy, false)
}

func check(candidate []Assignment, busy []BusyAssignment, first bool) []Violation {
	sorted := sortAssigned(candidate)
	busyIdx := indexBusy(busy)
	lookup := func(w string, date time.Time, shift ShiftType) (string, bool) {
		pid, ok := busyIdx[keyOf(date, shift)][w]
		return pid, ok
	}

	var out []Violation
	add := func(v Violation) bool {
		out = append(out, v)
		return first
	}

	for _, a := range sorted {
		w := a.WorkerID
		if pid, ok := lookup(w, a.Date, a.Shift); ok {
			if add(Violation{WorkerID: w, Date: a.Date, Shift: a.Shift, Reason: ReasonBusySameSlot, PatientID: pid}) {
				return out
			}
		}
		switch a.Shift {
		case ShiftDay:
			prev := a.Date.AddDate(0, 0, -1)
			if pid, ok := lookup(w, prev, ShiftNight); ok {
				next := a.Date
				if add(Violation{WorkerID: w, Date: prev, NextDate: &next, Shift: a.Shift, Reason: ReasonBusyNightBefore, PatientID: pid}) {
					return out
				}
			}
		case ShiftNight:
			next := a.Date.AddDate(0, 0, 1)
			if pid, ok := lookup(w, next, ShiftDay); ok {
				if add(Violation{WorkerID: w, Date: a.Date, NextDate: &next, Shift: a.Shift, Reason: ReasonBusyDayAfter, PatientID: pid}) {
					return out
				}
			}
		}
	}

	own := make(map[slotKey]map[string]struct{}, len(sorted))
	for _, a := range sorted {
		key := keyOf(a.Date, a.Shift)
		if own[key] == nil {
			own[key] = make(map[string]struct{})
		}
		own[key][a.WorkerID] = struct{}{}
	}
	holdsOwn := func(w string, date time.Time, shift ShiftType) bool {
		_, ok := own[keyOf(date, shift)][w]
		return ok
	}
	holdsBusy := func(w string, date time.Time, shift ShiftType) bool {
		_, ok := lookup(w, date, shift)
		return ok
	}

	// Own-plan pairs are reported once: same-day from the day entry, night-to-day
	// from the night entry. Busy neighbours on adjacent dates were covered above.
	for _, a := range sorted {
		w := a.WorkerID
		switch a.Shift {
		case ShiftDay:
			if holdsOwn(w, a.Date, ShiftNight) || holdsBusy(w, a.Date, ShiftNight) {
				if add(Violation{WorkerID: w, Date: a.Date, Shift: a.Shift, Reason: ReasonSameDay}) {
					return out
				}
			}
		case ShiftNight:
			if !holdsOwn(w, a.Date, ShiftDay) && holdsBusy(w, a.Date, ShiftDay) {
				if add(Violation{WorkerID: w, Date: a.Date, Shift: a.Shift, Reason: ReasonSameDay}) {
					return out
				}
			}
			next := a.Date.AddDate(0, 0, 1)
			if holdsOwn(w, next, ShiftDay) {
				if add(Violation{WorkerID: w, Date: a.Date, NextDate: &next, Shift: a.Shift, Reason: ReasonNightToDay}) {
					return out
				}
			}
		}
	}
	return out
}

// sortAssigned drops unassigned slots and orders by date, day before night,
// then worker id.
func sortAssigned(in []Assignment) []Assignment {
	out := make([]Assignment, 0, len(in))
	for _, a := range in {
		if !a.Assigned() || !a.Shift.Valid() {
			continue
		}
		a.Date = Civil(a.Date)
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Shift != out[j].Shift {
			return out[i].Shift == ShiftDay
		}
		return out[i].WorkerID < out[j].WorkerID
	})
	return out
}
