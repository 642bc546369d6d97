package theatre

import (
	"time"

	"github.com/google/uuid"
)

// TheatreSlot is a bookable block of operating time. AssignedCaseIDs keeps
// insertion order; the sum of assigned case durations never exceeds
// DurationMinutes.
type TheatreSlot struct {
	SlotID          uuid.UUID   `json:"slot_id"`
	HospitalName    string      `json:"hospital_name"`
	Date            time.Time   `json:"date"`
	StartTime       string      `json:"start_time"`
	DurationMinutes int         `json:"duration_minutes"`
	AssignedCaseIDs []uuid.UUID `json:"assigned_case_ids"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// RemainingMinutes returns the slot time left after the given assigned case
// durations.
func (s *TheatreSlot) RemainingMinutes(durations []int) int {
	remaining := s.DurationMinutes
	for _, d := range durations {
		remaining -= d
	}
	return remaining
}

// DefaultDurationMinutes is the estimate for procedure types without a
// specific entry.
const DefaultDurationMinutes = 60

// DefaultDurations maps procedure types to estimated theatre minutes.
var DefaultDurations = map[string]int{
	"fusion_biopsy": 45,
	"hifu":          90,
	"ire":           120,
}

// EstimateDuration returns the estimated theatre minutes for a procedure
// type.
func EstimateDuration(procedureType string) int {
	if d, ok := DefaultDurations[procedureType]; ok {
		return d
	}
	return DefaultDurationMinutes
}
