package matching

import (
	"context"

	"github.com/casecoord/casecoord/internal/cases"
	"github.com/casecoord/casecoord/internal/theatre"
)

type Service struct {
	cfg     Config
	cases   *cases.Service
	theatre *theatre.Service
}

func NewService(cfg Config, caseSvc *cases.Service, theatreSvc *theatre.Service) *Service {
	return &Service{cfg: cfg, cases: caseSvc, theatre: theatreSvc}
}

const slotFetchLimit = 500

// Propose packs every planning-stage case into the open theatre slots and
// returns the groupings worth booking. Slot capacity already consumed by
// assigned cases is subtracted before packing.
func (s *Service) Propose(ctx context.Context) ([]Grouping, error) {
	unscheduled, err := s.cases.ListByStatus(ctx, cases.StatusPlanning)
	if err != nil {
		return nil, err
	}
	slots, _, err := s.theatre.ListSlots(ctx, theatre.ListFilter{}, slotFetchLimit, 0)
	if err != nil {
		return nil, err
	}

	available := make([]*theatre.TheatreSlot, 0, len(slots))
	for _, slot := range slots {
		remaining := slot.DurationMinutes
		for _, assignedID := range slot.AssignedCaseIDs {
			cr, err := s.cases.Get(ctx, assignedID)
			if err != nil {
				return nil, err
			}
			remaining -= theatre.EstimateDuration(cr.ProcedureType)
		}
		if remaining <= 0 {
			continue
		}
		cp := *slot
		cp.DurationMinutes = remaining
		available = append(available, &cp)
	}

	return ProposeGroupings(s.cfg, unscheduled, available), nil
}
