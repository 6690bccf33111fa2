package service

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/noah-isme/care-roster-api/internal/dto"
	"github.com/noah-isme/care-roster-api/internal/models"
	"github.com/noah-isme/care-roster-api/internal/roster"
	appErrors "github.com/noah-isme/care-roster-api/pkg/errors"
	"github.com/noah-isme/care-roster-api/pkg/export"
)

var rosterExportHeaders = []string{"date", "shift", "worker_id", "worker_name", "hours", "note"}

func preferenceWorkerIDs(prefs []dto.WorkerPreferenceRequest) []string {
	seen := make(map[string]struct{}, len(prefs))
	ids := make([]string, 0, len(prefs))
	for _, p := range prefs {
		if _, ok := seen[p.WorkerID]; ok {
			continue
		}
		seen[p.WorkerID] = struct{}{}
		ids = append(ids, p.WorkerID)
	}
	return ids
}

func assignedWorkerIDs(assignments []roster.Assignment) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, a := range assignments {
		if !a.Assigned() {
			continue
		}
		if _, ok := seen[a.WorkerID]; ok {
			continue
		}
		seen[a.WorkerID] = struct{}{}
		ids = append(ids, a.WorkerID)
	}
	sort.Strings(ids)
	return ids
}

func toEnginePreferences(prefs []dto.WorkerPreferenceRequest, workers map[string]models.Worker) []roster.WorkerPreference {
	out := make([]roster.WorkerPreference, 0, len(prefs))
	for _, p := range prefs {
		out = append(out, roster.WorkerPreference{
			WorkerID:             p.WorkerID,
			AllowDay:             p.AllowDay,
			AllowNight:           p.AllowNight,
			Ratio:                p.Ratio,
			Days:                 p.Days,
			Priority:             p.Priority,
			SpreadAcrossPatients: p.SpreadAcrossPatients,
			CapacityHours:        workers[p.WorkerID].MonthlyCapacityHours,
			CommittedHours:       p.CommittedHours,
		})
	}
	return out
}

// parseAssignments converts payload slots, rejecting dates outside month and
// repeated slots.
func parseAssignments(month roster.Month, in []dto.RosterAssignment) ([]roster.Assignment, error) {
	out := make([]roster.Assignment, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for i, item := range in {
		date, err := roster.ParseDate(item.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("assignments[%d].date must be YYYY-MM-DD", i))
		}
		if !month.Contains(date) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("assignments[%d].date %s is outside %s", i, item.Date, month))
		}
		shift, err := roster.ParseShiftType(item.Shift)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("assignments[%d].shift must be day or night", i))
		}
		key := item.Date + "/" + string(shift)
		if _, dup := seen[key]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("slot %s is listed more than once", key))
		}
		seen[key] = struct{}{}
		out = append(out, roster.Assignment{Date: date, Shift: shift, WorkerID: item.WorkerID, Note: item.Note})
	}
	return out, nil
}

// completeMonth returns one assignment per slot of month in date order, day
// first. Slots missing from in are unassigned.
func completeMonth(month roster.Month, in []roster.Assignment) []roster.Assignment {
	index := make(map[string]roster.Assignment, len(in))
	for _, a := range in {
		index[roster.ShiftRef{Date: a.Date, Shift: a.Shift}.String()] = a
	}
	out := make([]roster.Assignment, 0, month.Days()*2)
	for day := 1; day <= month.Days(); day++ {
		date := month.Date(day)
		for _, shift := range []roster.ShiftType{roster.ShiftDay, roster.ShiftNight} {
			slot := roster.Assignment{Date: date, Shift: shift}
			if a, ok := index[roster.ShiftRef{Date: date, Shift: shift}.String()]; ok {
				slot.WorkerID = a.WorkerID
				slot.Note = a.Note
			}
			out = append(out, slot)
		}
	}
	return out
}

func countUnassigned(assignments []roster.Assignment) int {
	n := 0
	for _, a := range assignments {
		if !a.Assigned() {
			n++
		}
	}
	return n
}

func toEngineBusy(rows []models.BusyAssignment) ([]roster.BusyAssignment, []models.BusyAssignment) {
	out := make([]roster.BusyAssignment, 0, len(rows))
	var skipped []models.BusyAssignment
	for _, row := range rows {
		shift, err := roster.ParseShiftType(row.ShiftType)
		if err != nil || row.WorkerID == "" {
			skipped = append(skipped, row)
			continue
		}
		out = append(out, roster.BusyAssignment{
			Date:      roster.Civil(row.Date),
			Shift:     shift,
			WorkerID:  row.WorkerID,
			PatientID: row.PatientID,
		})
	}
	return out, skipped
}

func toModelAssignments(assignments []roster.Assignment) []models.CarePlanAssignment {
	out := make([]models.CarePlanAssignment, 0, len(assignments))
	for _, a := range assignments {
		row := models.CarePlanAssignment{Date: a.Date, ShiftType: string(a.Shift)}
		if a.Assigned() {
			worker := a.WorkerID
			row.WorkerID = &worker
		}
		if a.Note != "" {
			note := a.Note
			row.Note = &note
		}
		out = append(out, row)
	}
	return out
}

func toAssignmentDTOs(assignments []roster.Assignment, names map[string]string) []dto.RosterAssignment {
	out := make([]dto.RosterAssignment, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, dto.RosterAssignment{
			Date:       a.Date.Format(roster.DateLayout),
			Shift:      string(a.Shift),
			WorkerID:   a.WorkerID,
			WorkerName: names[a.WorkerID],
			Note:       a.Note,
		})
	}
	return out
}

func detailsToDTOs(rows []models.CarePlanAssignmentDetail) []dto.RosterAssignment {
	out := make([]dto.RosterAssignment, 0, len(rows))
	for _, row := range rows {
		item := dto.RosterAssignment{
			Date:  row.Date.Format(roster.DateLayout),
			Shift: row.ShiftType,
		}
		if row.WorkerID != nil {
			item.WorkerID = *row.WorkerID
		}
		if row.WorkerName != nil {
			item.WorkerName = *row.WorkerName
		}
		if row.Note != nil {
			item.Note = *row.Note
		}
		out = append(out, item)
	}
	return out
}

func toShiftRefDTO(ref roster.ShiftRef) dto.ShiftRef {
	return dto.ShiftRef{Date: ref.Date.Format(roster.DateLayout), Shift: string(ref.Shift)}
}

func toStateDTOs(prefs []roster.NormalizedPreference, states map[string]*roster.WorkerState) []dto.WorkerRosterState {
	out := make([]dto.WorkerRosterState, 0, len(prefs))
	for _, p := range prefs {
		item := dto.WorkerRosterState{
			WorkerID:          p.WorkerID,
			TargetDayShifts:   p.TargetDayShifts,
			TargetNightShifts: p.TargetNightShifts,
			MaxPatientHours:   p.MaxPatientHours,
		}
		if st, ok := states[p.WorkerID]; ok {
			item.AssignedDayShifts = st.AssignedDayShifts
			item.AssignedNightShifts = st.AssignedNightShifts
			item.AssignedHours = st.AssignedHours
			item.BaseHours = st.BaseHours
			if st.LastShift != nil {
				last := toShiftRefDTO(*st.LastShift)
				item.LastShift = &last
			}
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out
}

func toRelaxationDTOs(in []roster.Relaxation) []dto.RosterRelaxation {
	out := make([]dto.RosterRelaxation, 0, len(in))
	for _, r := range in {
		out = append(out, dto.RosterRelaxation{
			Date:      r.Date.Format(roster.DateLayout),
			Shift:     string(r.Shift),
			WorkerID:  r.WorkerID,
			Rule:      string(r.Rule),
			Displaced: r.Displaced,
		})
	}
	return out
}

func toViolationDTO(v roster.Violation) dto.RosterViolation {
	out := dto.RosterViolation{
		WorkerID:  v.WorkerID,
		Date:      v.Date.Format(roster.DateLayout),
		Shift:     string(v.Shift),
		Reason:    string(v.Reason),
		PatientID: v.PatientID,
		Message:   v.Message(),
	}
	if v.NextDate != nil {
		out.NextDate = v.NextDate.Format(roster.DateLayout)
	}
	return out
}

func toViolationDTOs(in []roster.Violation) []dto.RosterViolation {
	out := make([]dto.RosterViolation, 0, len(in))
	for _, v := range in {
		out = append(out, toViolationDTO(v))
	}
	return out
}

// ViolationFromError extracts the structured violation carried by a save
// conflict.
func ViolationFromError(err error) (*dto.RosterViolation, bool) {
	var v *roster.Violation
	if !errors.As(err, &v) || v == nil {
		return nil, false
	}
	out := toViolationDTO(*v)
	return &out, true
}

// blockingViolation returns the first violation that prevents a save. With
// acceptRelaxed, own-plan rest-rule breaches are counted instead; busy
// conflicts always block.
func blockingViolation(violations []roster.Violation, acceptRelaxed bool) (*roster.Violation, int) {
	tolerated := 0
	for i := range violations {
		if acceptRelaxed && violations[i].Reason.RestRule() {
			tolerated++
			continue
		}
		return &violations[i], tolerated
	}
	return nil, tolerated
}

func conflictError(v *roster.Violation) error {
	return appErrors.Wrap(v, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, v.Message())
}

func rosterDataset(plan *dto.RosterPlanResponse, cfg roster.Config) export.Dataset {
	rows := make([]map[string]string, 0, len(plan.Assignments))
	for _, a := range plan.Assignments {
		hours := ""
		if a.WorkerID != "" {
			hours = strconv.FormatFloat(cfg.Hours(roster.ShiftType(a.Shift)), 'f', -1, 64)
		}
		rows = append(rows, map[string]string{
			"date":        a.Date,
			"shift":       a.Shift,
			"worker_id":   a.WorkerID,
			"worker_name": a.WorkerName,
			"hours":       hours,
			"note":        a.Note,
		})
	}
	return export.Dataset{Headers: rosterExportHeaders, Rows: rows}
}

func rosterExportFilename(patientID string, year, month int) string {
	return fmt.Sprintf("roster-%s-%04d-%02d.csv", patientID, year, month)
}

func validatePeriod(patientID string, year, month int) error {
	if patientID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "patientId is required")
	}
	if year < 2000 || year > 2100 {
		return appErrors.Clone(appErrors.ErrValidation, "year must be between 2000 and 2100")
	}
	if month < 1 || month > 12 {
		return appErrors.Clone(appErrors.ErrValidation, "month must be between 1 and 12")
	}
	return nil
}

func monthOf(year, month int) roster.Month {
	return roster.Month{Year: year, Month: time.Month(month)}
}
