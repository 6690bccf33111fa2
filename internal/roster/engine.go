// Package roster assigns caregivers to the day and night shifts of one
// patient's month. It performs no I/O and keeps no state between runs.
package roster

// Engine runs the scheduling pipeline with a fixed configuration. It is safe
// for concurrent use.
type Engine struct {
	cfg Config
}

// New builds an engine; invalid configuration values fall back to defaults.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.sanitize()}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Request is the input of one generation run.
type Request struct {
	Month Month
	// DaysInMonth overrides the planning horizon when between 1 and the
	// calendar length; zero plans the whole calendar month.
	DaysInMonth int
	Preferences []WorkerPreference
	// Seed is an optional draft; entries are kept only when they pass the
	// eligibility rules.
	Seed []Assignment
	// Busy holds the workers' commitments to other patients.
	Busy []BusyAssignment
}

// Result is the outcome of one generation run.
type Result struct {
	Month        Month
	Assignments  []Assignment
	Preferences  []NormalizedPreference
	States       map[string]*WorkerState
	Relaxations  []Relaxation
	Unfilled     []ShiftRef
	Idle         []string
	SeedAccepted int
	RepairPasses int
}

// Generate normalises the preferences, computes quotas, runs the greedy pass
// and the backfill repair.
func (e *Engine) Generate(req Request) *Result {
	month := req.Month
	if req.DaysInMonth > 0 {
		month.Span = req.DaysInMonth
	}
	days := month.Days()
	prefs := e.ComputeTargets(Normalize(req.Preferences, days), days)

	plan := e.Schedule(prefs, req.Seed, req.Busy, month)
	e.Repair(plan)

	return &Result{
		Month:        month,
		Assignments:  plan.Assignments(),
		Preferences:  prefs,
		States:       plan.States(),
		Relaxations:  plan.Relaxations(),
		Unfilled:     plan.Unfilled(),
		Idle:         plan.Idle(),
		SeedAccepted: plan.seedAccepted,
		RepairPasses: plan.Passes(),
	}
}

// Relaxed reports whether any placement broke a rest rule.
func (r *Result) Relaxed() bool {
	return len(r.Relaxations) > 0
}
