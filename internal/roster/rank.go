package roster

// Candidate is the ranking view of one eligible worker for one slot.
type Candidate struct {
	WorkerID string
	Priority bool
	// Target and Assigned refer to the shift type being filled.
	Target        int
	Assigned      int
	TotalAssigned int
}

// Deficit is how many shifts of the type the worker still needs.
func (c Candidate) Deficit() int {
	return c.Target - c.Assigned
}

// WithinTolerance reports whether one more shift keeps the worker at or below
// target plus tolerance.
func (c Candidate) WithinTolerance(tolerance int) bool {
	return c.Assigned+1 <= c.Target+tolerance
}

// Better reports whether a ranks ahead of b. Keys in order: staying within
// tolerance, priority, larger deficit, fewer total assignments, worker id.
func Better(a, b Candidate, tolerance int) bool {
	if wa, wb := a.WithinTolerance(tolerance), b.WithinTolerance(tolerance); wa != wb {
		return wa
	}
	if a.Priority != b.Priority {
		return a.Priority
	}
	if da, db := a.Deficit(), b.Deficit(); da != db {
		return da > db
	}
	if a.TotalAssigned != b.TotalAssigned {
		return a.TotalAssigned < b.TotalAssigned
	}
	return a.WorkerID < b.WorkerID
}
