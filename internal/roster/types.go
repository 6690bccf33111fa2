package roster

import (
	"fmt"
	"time"
)

// ShiftType identifies one of the two daily coverage slots.
type ShiftType string

const (
	ShiftDay   ShiftType = "day"
	ShiftNight ShiftType = "night"
)

// DateLayout is the calendar date format used for slot keys and payloads.
const DateLayout = "2006-01-02"

// shiftOrder is the fill order within one calendar day.
var shiftOrder = [2]ShiftType{ShiftDay, ShiftNight}

// Valid reports whether the shift type is known.
func (s ShiftType) Valid() bool {
	return s == ShiftDay || s == ShiftNight
}

// Other returns the opposite slot of the same date.
func (s ShiftType) Other() ShiftType {
	if s == ShiftDay {
		return ShiftNight
	}
	return ShiftDay
}

// ParseShiftType converts a raw value, accepting upper or lower case.
func ParseShiftType(raw string) (ShiftType, error) {
	switch ShiftType(raw) {
	case ShiftDay, "DAY", "Day":
		return ShiftDay, nil
	case ShiftNight, "NIGHT", "Night":
		return ShiftNight, nil
	}
	return "", fmt.Errorf("unknown shift type %q", raw)
}

// Month is the calendar month a plan covers.
type Month struct {
	Year  int
	Month time.Month
	// Span, when between 1 and the calendar length, limits the plan to the
	// first Span days. Zero covers the whole month.
	Span int
}

// CalendarDays returns the number of calendar days in the month.
func (m Month) CalendarDays() int {
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Days returns the number of days the plan covers.
func (m Month) Days() int {
	n := m.CalendarDays()
	if m.Span > 0 && m.Span < n {
		return m.Span
	}
	return n
}

// Date returns the UTC midnight of the given day of month.
func (m Month) Date(day int) time.Time {
	return time.Date(m.Year, m.Month, day, 0, 0, 0, 0, time.UTC)
}

// Contains reports whether t falls inside the covered days of the month.
func (m Month) Contains(t time.Time) bool {
	return t.Year() == m.Year && t.Month() == m.Month && t.Day() <= m.Days()
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Civil truncates t to its calendar date at UTC midnight.
func Civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD value.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// Config holds the numeric constants the engine runs with.
type Config struct {
	DayShiftHours   float64
	NightShiftHours float64
	// Tolerance is how many shifts of one type a worker may receive above target
	// before ranking pushes them behind everyone still within target.
	Tolerance int
	// SpreadCapFraction is the share of a worker's monthly capacity assignable to
	// one patient when the worker spreads across patients.
	SpreadCapFraction float64
	MaxRepairPasses   int
}

// DefaultConfig returns the domain defaults: 8h day, 10h night, tolerance 1.
func DefaultConfig() Config {
	return Config{
		DayShiftHours:     8,
		NightShiftHours:   10,
		Tolerance:         1,
		SpreadCapFraction: 0.5,
		MaxRepairPasses:   5,
	}
}

func (c Config) sanitize() Config {
	def := DefaultConfig()
	if c.DayShiftHours <= 0 {
		c.DayShiftHours = def.DayShiftHours
	}
	if c.NightShiftHours <= 0 {
		c.NightShiftHours = def.NightShiftHours
	}
	if c.Tolerance < 0 {
		c.Tolerance = def.Tolerance
	}
	if c.SpreadCapFraction <= 0 || c.SpreadCapFraction > 1 {
		c.SpreadCapFraction = def.SpreadCapFraction
	}
	if c.MaxRepairPasses <= 0 {
		c.MaxRepairPasses = def.MaxRepairPasses
	}
	return c
}

// Hours returns the duration credited for one shift of the given type.
func (c Config) Hours(shift ShiftType) float64 {
	if shift == ShiftNight {
		return c.NightShiftHours
	}
	return c.DayShiftHours
}

// WorkerPreference is the raw scheduling request for one worker. Pointer fields
// are optional; missing values are coerced during normalisation.
type WorkerPreference struct {
	WorkerID   string
	AllowDay   *bool
	AllowNight *bool
	// Ratio is the desired percentage of day shifts (100 day-only, 0 night-only).
	Ratio *float64
	// Days is the requested total shift count for the month.
	Days                 *float64
	Priority             bool
	SpreadAcrossPatients bool
	// CapacityHours is the worker's monthly capacity across all patients.
	CapacityHours float64
	// CommittedHours were already committed to this patient before the run.
	CommittedHours float64
}

// NormalizedPreference is a sanitised preference with derived targets.
type NormalizedPreference struct {
	WorkerID             string
	AllowDay             bool
	AllowNight           bool
	Ratio                int
	Days                 int
	Priority             bool
	SpreadAcrossPatients bool
	CapacityHours        float64
	BaseHours            float64

	TargetDayShifts   int
	TargetNightShifts int
	TargetDayHours    float64
	TargetNightHours  float64
	// MaxPatientHours is only meaningful when SpreadAcrossPatients is set.
	MaxPatientHours float64
}

// Allows reports whether the worker accepts the shift type.
func (p NormalizedPreference) Allows(shift ShiftType) bool {
	if shift == ShiftNight {
		return p.AllowNight
	}
	return p.AllowDay
}

// Target returns the target shift count for the type.
func (p NormalizedPreference) Target(shift ShiftType) int {
	if shift == ShiftNight {
		return p.TargetNightShifts
	}
	return p.TargetDayShifts
}

// Capped reports whether a spread cap applies.
func (p NormalizedPreference) Capped() bool {
	return p.SpreadAcrossPatients && p.MaxPatientHours > 0
}

// Assignment is one slot of a plan. An empty WorkerID means unassigned.
type Assignment struct {
	Date     time.Time
	Shift    ShiftType
	WorkerID string
	Note     string
}

// Assigned reports whether a worker holds the slot.
func (a Assignment) Assigned() bool {
	return a.WorkerID != ""
}

// BusyAssignment is a worker's commitment on another patient's plan.
type BusyAssignment struct {
	Date      time.Time
	Shift     ShiftType
	WorkerID  string
	PatientID string
}

// ShiftRef points at one slot.
type ShiftRef struct {
	Date  time.Time
	Shift ShiftType
}

func (r ShiftRef) String() string {
	return fmt.Sprintf("%s/%s", r.Date.Format(DateLayout), r.Shift)
}

// WorkerState tracks one worker's usage during a single run.
type WorkerState struct {
	AssignedDayShifts   int
	AssignedNightShifts int
	AssignedHours       float64
	BaseHours           float64
	LastShift           *ShiftRef
}

// Assigned returns the total number of slots held.
func (s *WorkerState) Assigned() int {
	return s.AssignedDayShifts + s.AssignedNightShifts
}

// AssignedFor returns the slot count held of one type.
func (s *WorkerState) AssignedFor(shift ShiftType) int {
	if shift == ShiftNight {
		return s.AssignedNightShifts
	}
	return s.AssignedDayShifts
}

func (s *WorkerState) clone() *WorkerState {
	c := *s
	if s.LastShift != nil {
		last := *s.LastShift
		c.LastShift = &last
	}
	return &c
}

type slotKey struct {
	date  string
	shift ShiftType
}

func keyOf(date time.Time, shift ShiftType) slotKey {
	return slotKey{date: date.Format(DateLayout), shift: shift}
}
