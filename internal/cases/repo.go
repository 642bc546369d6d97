package cases

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrCaseNotFound = errors.New("case not found")

// ErrUnknownHandle is returned when a case references a handle with no
// matching vault record.
var ErrUnknownHandle = errors.New("unknown identifier handle")

type Repository interface {
	Create(ctx context.Context, cr *CaseRecord) error
	GetByID(ctx context.Context, caseID uuid.UUID) (*CaseRecord, error)
	Update(ctx context.Context, cr *CaseRecord) error
	List(ctx context.Context, limit, offset int) ([]*CaseRecord, int, error)
	ListByStatus(ctx context.Context, status Status) ([]*CaseRecord, error)
	UpdateStatus(ctx context.Context, caseID uuid.UUID, from, to Status) error
	CountByStatus(ctx context.Context) (*StatusCounts, error)
}

type EmailRepository interface {
	Add(ctx context.Context, e *EmailEvent) error
	PendingCount(ctx context.Context, caseID uuid.UUID) (int, error)
	ListPending(ctx context.Context) ([]*EmailEvent, error)
	MarkResolved(ctx context.Context, caseID uuid.UUID) (int, error)
}
