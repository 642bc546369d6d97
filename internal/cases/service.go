package cases

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// HandleChecker verifies that an identifier handle exists in the vault.
// Implemented by the vault so case records cannot point at dangling handles.
type HandleChecker interface {
	HasHandle(ctx context.Context, handle string) (bool, error)
}

// SlotReleaser frees any theatre time a case holds and applies the cancel
// transition in the same transaction. Implemented by the theatre service.
type SlotReleaser interface {
	ReleaseCase(ctx context.Context, caseID uuid.UUID) error
}

// ErrAssignRequiresSlot is returned when assign_to_slot arrives as a bare
// event. Scheduling only happens through a slot assignment, which commits
// the capacity check, the assignment row and the transition together.
var ErrAssignRequiresSlot = errors.New("assign_to_slot requires a theatre slot assignment")

type Service struct {
	repo     Repository
	emails   EmailRepository
	handles  HandleChecker
	releaser SlotReleaser
}

func NewService(repo Repository, emails EmailRepository, handles HandleChecker) *Service {
	return &Service{repo: repo, emails: emails, handles: handles}
}

// SetSlotReleaser wires the theatre service in after construction; the two
// services reference each other.
func (s *Service) SetSlotReleaser(r SlotReleaser) {
	s.releaser = r
}

var validImagingQualities = map[string]bool{
	"": true, "poor": true, "adequate": true, "good": true, "excellent": true,
}

func (s *Service) validate(ctx context.Context, cr *CaseRecord) error {
	if cr.ProcedureType == "" {
		return fmt.Errorf("procedure type is required")
	}
	if cr.TargetCount < 0 {
		return fmt.Errorf("target count must not be negative")
	}
	if cr.GlandVolume < 0 {
		return fmt.Errorf("gland volume must not be negative")
	}
	if !validImagingQualities[cr.ImagingQuality] {
		return fmt.Errorf("invalid imaging quality: %s", cr.ImagingQuality)
	}
	if cr.Handle != nil && *cr.Handle != "" {
		ok, err := s.handles.HasHandle(ctx, *cr.Handle)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnknownHandle
		}
	}
	return nil
}

// Create stores a new case in draft status.
func (s *Service) Create(ctx context.Context, cr *CaseRecord) error {
	if err := s.validate(ctx, cr); err != nil {
		return err
	}
	cr.Status = StatusDraft
	return s.repo.Create(ctx, cr)
}

func (s *Service) Get(ctx context.Context, caseID uuid.UUID) (*CaseRecord, error) {
	return s.repo.GetByID(ctx, caseID)
}

// Update merges the patch into the stored record and persists the result.
// Fields the patch leaves nil are untouched; status only moves through
// Transition.
func (s *Service) Update(ctx context.Context, caseID uuid.UUID, patch CasePatch) (*CaseRecord, error) {
	cr, err := s.repo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if patch.Handle != nil {
		if *patch.Handle == "" {
			cr.Handle = nil
		} else {
			h := *patch.Handle
			cr.Handle = &h
		}
	}
	if patch.ProcedureType != nil {
		cr.ProcedureType = *patch.ProcedureType
	}
	if patch.LesionClassification != nil {
		cr.LesionClassification = *patch.LesionClassification
	}
	if patch.TargetCount != nil {
		cr.TargetCount = *patch.TargetCount
	}
	if patch.ImagingQuality != nil {
		cr.ImagingQuality = *patch.ImagingQuality
	}
	if patch.GlandVolume != nil {
		cr.GlandVolume = *patch.GlandVolume
	}
	if err := s.validate(ctx, cr); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, cr); err != nil {
		return nil, err
	}
	return cr, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*CaseRecord, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListByStatus(ctx context.Context, status Status) ([]*CaseRecord, error) {
	if !validStatuses[status] {
		return nil, fmt.Errorf("invalid status: %s", status)
	}
	return s.repo.ListByStatus(ctx, status)
}

// Transition applies a lifecycle event requested by a caller that holds no
// slot context. assign_to_slot is rejected here; cancel goes through the
// theatre service so a scheduled case gives its slot time back.
func (s *Service) Transition(ctx context.Context, caseID uuid.UUID, event Event) (*CaseRecord, error) {
	if event == EventAssignToSlot {
		return nil, ErrAssignRequiresSlot
	}
	if event == EventCancel && s.releaser != nil {
		if err := s.releaser.ReleaseCase(ctx, caseID); err != nil {
			return nil, err
		}
		return s.repo.GetByID(ctx, caseID)
	}
	return s.ApplyEvent(ctx, caseID, event)
}

// ApplyEvent advances the state machine with no slot coordination. The
// theatre service calls this inside its assignment and release
// transactions. The status row update is a compare-and-set against the
// status the event was validated from, so a failed transition leaves the
// record untouched.
func (s *Service) ApplyEvent(ctx context.Context, caseID uuid.UUID, event Event) (*CaseRecord, error) {
	cr, err := s.repo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	next, err := Next(cr.Status, event)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, caseID, cr.Status, next); err != nil {
		return nil, err
	}
	cr.Status = next
	return cr, nil
}

func (s *Service) Stats(ctx context.Context) (*StatusCounts, error) {
	return s.repo.CountByStatus(ctx)
}

// -- Email events --

func (s *Service) AddEmailEvent(ctx context.Context, e *EmailEvent) error {
	if _, err := s.repo.GetByID(ctx, e.CaseID); err != nil {
		return err
	}
	return s.emails.Add(ctx, e)
}

func (s *Service) PendingEmailCount(ctx context.Context, caseID uuid.UUID) (int, error) {
	return s.emails.PendingCount(ctx, caseID)
}

// ListPendingEmails returns all unresolved email events, oldest first.
func (s *Service) ListPendingEmails(ctx context.Context) ([]*EmailEvent, error) {
	return s.emails.ListPending(ctx)
}

// MarkEmailResolved resolves all pending email events for a case and returns
// how many were resolved.
func (s *Service) MarkEmailResolved(ctx context.Context, caseID uuid.UUID) (int, error) {
	if _, err := s.repo.GetByID(ctx, caseID); err != nil {
		return 0, err
	}
	return s.emails.MarkResolved(ctx, caseID)
}
