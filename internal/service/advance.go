package service

import (
	"fmt"
	"time"

	"github.com/unclebandit/dripline/internal/model"
)

// Advance moves j from executed to the step that follows it in steps, which
// must be sorted by order. A following wait step is left with a nil
// NextEligibleAt so its first visit starts the wait; any other step is due
// immediately. With no following step the journey completes. It reports
// whether the journey completed.
func Advance(j *model.Journey, steps []model.Step, executed model.Step, now time.Time) bool {
	j.LastRunAt = &now

	idx := stepIndex(steps, executed.ID)
	if idx < 0 || idx+1 >= len(steps) {
		j.Status = model.JourneyCompleted
		j.CurrentStepID = nil
		j.NextEligibleAt = nil
		j.Record(&executed.ID, model.HistoryCompleted, now, "")
		return true
	}

	next := steps[idx+1]
	nextID := next.ID
	j.CurrentStepID = &nextID
	if next.Kind() == model.StepWait {
		j.NextEligibleAt = nil
	} else {
		j.NextEligibleAt = &now
	}
	j.Record(&executed.ID, model.HistoryAdvanced, now, fmt.Sprintf("next step %d (%s)", next.ID, next.Kind()))
	return false
}

// stepIndex finds a step by ID, returning -1 when absent.
func stepIndex(steps []model.Step, id int) int {
	for i := range steps {
		if steps[i].ID == id {
			return i
		}
	}
	return -1
}
