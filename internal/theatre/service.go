package theatre

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/casecoord/casecoord/internal/cases"
	"github.com/casecoord/casecoord/internal/platform/db"
)

type Service struct {
	slots Repository
	cases *cases.Service
	tx    db.TxRunner
}

func NewService(slots Repository, caseSvc *cases.Service, tx db.TxRunner) *Service {
	return &Service{slots: slots, cases: caseSvc, tx: tx}
}

func (s *Service) CreateSlot(ctx context.Context, slot *TheatreSlot) error {
	if slot.HospitalName == "" {
		return fmt.Errorf("hospital name is required")
	}
	if slot.DurationMinutes <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	return s.slots.Create(ctx, slot)
}

func (s *Service) GetSlot(ctx context.Context, slotID uuid.UUID) (*TheatreSlot, error) {
	return s.slots.GetByID(ctx, slotID)
}

func (s *Service) ListSlots(ctx context.Context, f ListFilter, limit, offset int) ([]*TheatreSlot, int, error) {
	return s.slots.List(ctx, f, limit, offset)
}

func (s *Service) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return err
	}
	if len(slot.AssignedCaseIDs) > 0 {
		return fmt.Errorf("slot has assigned cases")
	}
	return s.slots.Delete(ctx, slotID)
}

// AssignCase assigns a case to a slot and moves it to scheduled. The
// capacity check, the assignment row and the status transition commit in one
// transaction; a capacity violation or an illegal transition rolls back both.
func (s *Service) AssignCase(ctx context.Context, slotID, caseID uuid.UUID) (*TheatreSlot, error) {
	var out *TheatreSlot
	err := s.tx(ctx, func(ctx context.Context) error {
		slot, err := s.slots.GetByID(ctx, slotID)
		if err != nil {
			return err
		}
		cr, err := s.cases.Get(ctx, caseID)
		if err != nil {
			return err
		}
		if _, err := cases.Next(cr.Status, cases.EventAssignToSlot); err != nil {
			return err
		}

		remaining := slot.DurationMinutes
		for _, assignedID := range slot.AssignedCaseIDs {
			assigned, err := s.cases.Get(ctx, assignedID)
			if err != nil {
				return err
			}
			remaining -= EstimateDuration(assigned.ProcedureType)
		}
		need := EstimateDuration(cr.ProcedureType)
		if need > remaining {
			return &CapacityExceededError{
				SlotID:           slotID,
				RemainingMinutes: remaining,
				RequiredMinutes:  need,
			}
		}

		if err := s.slots.Assign(ctx, slotID, caseID); err != nil {
			return err
		}
		if _, err := s.cases.ApplyEvent(ctx, caseID, cases.EventAssignToSlot); err != nil {
			return err
		}
		slot.AssignedCaseIDs = append(slot.AssignedCaseIDs, caseID)
		out = slot
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReleaseCase cancels a case back to draft and frees any slot time it
// holds, atomically. Cases without an assignment cancel the same way; the
// release is then a no-op.
func (s *Service) ReleaseCase(ctx context.Context, caseID uuid.UUID) error {
	return s.tx(ctx, func(ctx context.Context) error {
		if _, err := s.cases.ApplyEvent(ctx, caseID, cases.EventCancel); err != nil {
			return err
		}
		return s.slots.Release(ctx, caseID)
	})
}

func (s *Service) SlotForCase(ctx context.Context, caseID uuid.UUID) (*TheatreSlot, error) {
	return s.slots.SlotForCase(ctx, caseID)
}
