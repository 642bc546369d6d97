package theatre

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrSlotNotFound = errors.New("theatre slot not found")

// CapacityExceededError is returned when assigning a case would push a slot
// past its duration.
type CapacityExceededError struct {
	SlotID           uuid.UUID
	RemainingMinutes int
	RequiredMinutes  int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("slot %s has %d minutes remaining, case needs %d",
		e.SlotID, e.RemainingMinutes, e.RequiredMinutes)
}

// ListFilter narrows List to a date range. Zero bounds are open.
type ListFilter struct {
	From time.Time
	To   time.Time
}

// Matches reports whether the slot date falls inside the filter bounds.
func (f ListFilter) Matches(s *TheatreSlot) bool {
	if !f.From.IsZero() && s.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && s.Date.After(f.To) {
		return false
	}
	return true
}

type Repository interface {
	Create(ctx context.Context, s *TheatreSlot) error
	GetByID(ctx context.Context, slotID uuid.UUID) (*TheatreSlot, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*TheatreSlot, int, error)
	Delete(ctx context.Context, slotID uuid.UUID) error

	// Assign appends a case to the slot's ordered assignment list.
	Assign(ctx context.Context, slotID, caseID uuid.UUID) error
	// Release removes a case from whatever slot holds it. Releasing an
	// unassigned case is a no-op.
	Release(ctx context.Context, caseID uuid.UUID) error
	// SlotForCase returns the slot a case is assigned to, or ErrSlotNotFound.
	SlotForCase(ctx context.Context, caseID uuid.UUID) (*TheatreSlot, error)
}
