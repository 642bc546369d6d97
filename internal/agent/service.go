package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/casecoord/casecoord/internal/cases"
)

const caseFetchLimit = 1000

type Service struct {
	anon   *Anonymizer
	client Client
	cases  *cases.Service
}

func NewService(anon *Anonymizer, client Client, caseSvc *cases.Service) *Service {
	return &Service{anon: anon, client: client, cases: caseSvc}
}

// Analyze sends the anonymized bucket state to the agent and returns its
// recommendations. A whitelist failure blocks the network call entirely.
func (s *Service) Analyze(ctx context.Context, query string) (*AnalyzeResponse, error) {
	caseList, _, err := s.cases.List(ctx, caseFetchLimit, 0)
	if err != nil {
		return nil, err
	}
	emails, err := s.cases.ListPendingEmails(ctx)
	if err != nil {
		return nil, err
	}

	log := make([]EmailLogEntry, 0, len(emails))
	for _, e := range emails {
		log = append(log, EmailLogEntry{Subject: e.Subject, Timestamp: e.CreatedAt.Unix()})
	}

	state, err := BuildBucketState(s.anon, caseList, log)
	if err != nil {
		return nil, err
	}
	return s.client.AnalyzeBuckets(ctx, state, query)
}

// AcceptResult reports the outcome of applying a recommendation to one case.
type AcceptResult struct {
	AnonymousID string       `json:"anonymous_id"`
	Status      cases.Status `json:"status,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Accept applies a lifecycle event to the cases behind the given anonymous
// IDs. Each case succeeds or fails independently; an unknown anonymous ID
// fails the whole call since it means the IDs did not come from this
// deployment's anonymizer.
func (s *Service) Accept(ctx context.Context, anonymousIDs []string, event cases.Event) ([]AcceptResult, error) {
	if event == cases.EventAssignToSlot {
		return nil, cases.ErrAssignRequiresSlot
	}
	caseIDs := make([]uuid.UUID, len(anonymousIDs))
	for i, id := range anonymousIDs {
		caseID, ok := s.anon.Resolve(id)
		if !ok {
			return nil, fmt.Errorf("unknown anonymous id %s", id)
		}
		caseIDs[i] = caseID
	}

	results := make([]AcceptResult, len(anonymousIDs))
	for i, caseID := range caseIDs {
		results[i] = AcceptResult{AnonymousID: anonymousIDs[i]}
		cr, err := s.cases.Transition(ctx, caseID, event)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		results[i].Status = cr.Status
	}
	return results, nil
}

// DraftEmail asks the agent to draft an email about the given cases. The
// agent sees only anonymous IDs; drafts always require coordinator approval
// before anything is sent.
func (s *Service) DraftEmail(ctx context.Context, purpose string, anonymousIDs []string) (*EmailDraft, error) {
	for _, id := range anonymousIDs {
		if _, ok := s.anon.Resolve(id); !ok {
			return nil, fmt.Errorf("unknown anonymous id %s", id)
		}
	}
	draft, err := s.client.DraftEmail(ctx, purpose, anonymousIDs)
	if err != nil {
		return nil, err
	}
	draft.RequiresApproval = true
	return draft, nil
}
