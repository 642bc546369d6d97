package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/casecoord/casecoord/internal/cases"
)

// -- Anonymizer --

func TestAnonymousID_StableAndPrefixed(t *testing.T) {
	anon, err := NewAnonymizer([]byte("deployment-key"))
	if err != nil {
		t.Fatalf("new anonymizer: %v", err)
	}
	caseID := uuid.New()

	a := anon.AnonymousID(caseID)
	b := anon.AnonymousID(caseID)
	if a != b {
		t.Errorf("anonymous id not stable: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "#") || len(a) != 1+anonymousIDHexLen {
		t.Errorf("unexpected id shape: %s", a)
	}
	if strings.Contains(a, caseID.String()) {
		t.Error("anonymous id embeds the case id")
	}
}

func TestAnonymousID_DifferentKeysDifferentIDs(t *testing.T) {
	caseID := uuid.New()
	a1, _ := NewAnonymizer([]byte("deployment-one"))
	a2, _ := NewAnonymizer([]byte("deployment-two"))
	if a1.AnonymousID(caseID) == a2.AnonymousID(caseID) {
		t.Error("same id across deployments allows correlation")
	}
}

func TestResolve_RoundTrip(t *testing.T) {
	anon, _ := NewAnonymizer([]byte("key"))
	caseID := uuid.New()
	id := anon.AnonymousID(caseID)

	got, ok := anon.Resolve(id)
	if !ok || got != caseID {
		t.Errorf("Resolve(%s) = %s,%v, want %s", id, got, ok, caseID)
	}
	if _, ok := anon.Resolve("#000000000000"); ok {
		t.Error("resolved an id that was never issued")
	}
}

func TestReset_DropsReverseMapping(t *testing.T) {
	anon, _ := NewAnonymizer([]byte("key"))
	caseID := uuid.New()
	id := anon.AnonymousID(caseID)

	anon.Reset()
	if _, ok := anon.Resolve(id); ok {
		t.Error("id still resolves after reset")
	}

	// Re-issuing after reset restores the same stable id.
	if again := anon.AnonymousID(caseID); again != id {
		t.Errorf("id changed across reset: %s vs %s", again, id)
	}
}

// -- Payload builder --

func TestBuildBucketState_Buckets(t *testing.T) {
	anon, _ := NewAnonymizer([]byte("key"))
	caseList := []*cases.CaseRecord{
		{CaseID: uuid.New(), Status: cases.StatusDraft, ProcedureType: "hifu"},
		{CaseID: uuid.New(), Status: cases.StatusPlanning, ProcedureType: "ire"},
		{CaseID: uuid.New(), Status: cases.StatusScheduled, ProcedureType: "hifu"},
		{CaseID: uuid.New(), Status: cases.StatusConfirmed, ProcedureType: "fusion_biopsy"},
		{CaseID: uuid.New(), Status: cases.StatusCompleted, ProcedureType: "hifu"},
	}

	state, err := BuildBucketState(anon, caseList, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(state.Unsorted) != 2 {
		t.Errorf("unsorted = %v, want 2 ids", state.Unsorted)
	}
	if len(state.WantsToProceed) != 1 {
		t.Errorf("wants_to_proceed = %v, want 1 id", state.WantsToProceed)
	}
	if len(state.Booked) != 2 {
		t.Errorf("booked = %v, want 2 ids", state.Booked)
	}
	if len(state.CaseMetadata) != len(caseList) {
		t.Errorf("metadata for %d cases, want %d", len(state.CaseMetadata), len(caseList))
	}
}

func TestBuildBucketState_NeverLeaksIdentifiers(t *testing.T) {
	anon, _ := NewAnonymizer([]byte("key"))
	rng := rand.New(rand.NewSource(1))
	statuses := []cases.Status{
		cases.StatusDraft, cases.StatusPlanning, cases.StatusScheduled,
		cases.StatusConfirmed, cases.StatusCompleted,
	}

	for trial := 0; trial < 50; trial++ {
		var caseList []*cases.CaseRecord
		var handles []string
		for i := 0; i < 1+rng.Intn(8); i++ {
			handle := fmt.Sprintf("%032x", rng.Uint64())
			handles = append(handles, handle)
			caseList = append(caseList, &cases.CaseRecord{
				CaseID:               uuid.New(),
				Handle:               &handle,
				Status:               statuses[rng.Intn(len(statuses))],
				ProcedureType:        "hifu",
				LesionClassification: "Gleason_7",
				TargetCount:          rng.Intn(5),
				ImagingQuality:       "good",
				GlandVolume:          float64(rng.Intn(120)),
				CreatedAt:            time.Now(),
				UpdatedAt:            time.Now(),
			})
		}

		state, err := BuildBucketState(anon, caseList, nil)
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		raw, err := json.Marshal(state)
		if err != nil {
			t.Fatalf("trial %d: marshal: %v", trial, err)
		}
		payload := string(raw)
		for _, cr := range caseList {
			if strings.Contains(payload, cr.CaseID.String()) {
				t.Fatalf("trial %d: payload contains case id %s", trial, cr.CaseID)
			}
		}
		for _, h := range handles {
			if strings.Contains(payload, h) {
				t.Fatalf("trial %d: payload contains vault handle %s", trial, h)
			}
		}
		if strings.Contains(payload, "gland_volume") {
			t.Fatalf("trial %d: payload contains withheld field", trial)
		}
	}
}

func TestWhitelist_CoversEveryCaseRecordField(t *testing.T) {
	if err := checkWhitelist(); err != nil {
		t.Fatalf("case record has unclassified fields: %v", err)
	}
	// Both sets stay disjoint.
	for name := range forwardedFields {
		if withheldFields[name] {
			t.Errorf("field %s is both forwarded and withheld", name)
		}
	}
}

func TestWhitelist_UnclassifiedFieldBlocksBuild(t *testing.T) {
	type widened struct {
		ProcedureType string
		TargetCount   int
		PatientName   string
	}
	err := checkFieldsClassified(reflect.TypeOf(widened{}))
	if !errors.Is(err, ErrWhitelistViolation) {
		t.Fatalf("err = %v, want ErrWhitelistViolation", err)
	}
	if !strings.Contains(err.Error(), "PatientName") {
		t.Errorf("error does not name the offending field: %v", err)
	}
}

// -- Service --

type stubClient struct {
	lastState *BucketState
	lastQuery string
	resp      *AnalyzeResponse
	draft     *EmailDraft
	err       error
}

func (s *stubClient) AnalyzeBuckets(_ context.Context, state *BucketState, query string) (*AnalyzeResponse, error) {
	s.lastState = state
	s.lastQuery = query
	return s.resp, s.err
}

func (s *stubClient) DraftEmail(_ context.Context, purpose string, ids []string) (*EmailDraft, error) {
	if s.err != nil {
		return nil, s.err
	}
	d := *s.draft
	return &d, nil
}

type mockCaseRepo struct {
	cases map[uuid.UUID]*cases.CaseRecord
}

func newMockCaseRepo() *mockCaseRepo {
	return &mockCaseRepo{cases: make(map[uuid.UUID]*cases.CaseRecord)}
}

func (m *mockCaseRepo) Create(_ context.Context, cr *cases.CaseRecord) error {
	cr.CaseID = uuid.New()
	cp := *cr
	m.cases[cr.CaseID] = &cp
	return nil
}

func (m *mockCaseRepo) GetByID(_ context.Context, id uuid.UUID) (*cases.CaseRecord, error) {
	cr, ok := m.cases[id]
	if !ok {
		return nil, cases.ErrCaseNotFound
	}
	cp := *cr
	return &cp, nil
}

func (m *mockCaseRepo) Update(_ context.Context, cr *cases.CaseRecord) error {
	cp := *cr
	m.cases[cr.CaseID] = &cp
	return nil
}

func (m *mockCaseRepo) List(_ context.Context, limit, offset int) ([]*cases.CaseRecord, int, error) {
	var result []*cases.CaseRecord
	for _, cr := range m.cases {
		result = append(result, cr)
	}
	return result, len(result), nil
}

func (m *mockCaseRepo) ListByStatus(_ context.Context, status cases.Status) ([]*cases.CaseRecord, error) {
	var result []*cases.CaseRecord
	for _, cr := range m.cases {
		if cr.Status == status {
			result = append(result, cr)
		}
	}
	return result, nil
}

func (m *mockCaseRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to cases.Status) error {
	cr, ok := m.cases[id]
	if !ok || cr.Status != from {
		return cases.ErrCaseNotFound
	}
	cr.Status = to
	return nil
}

func (m *mockCaseRepo) CountByStatus(_ context.Context) (*cases.StatusCounts, error) {
	return &cases.StatusCounts{}, nil
}

type mockEmailRepo struct{}

func (mockEmailRepo) Add(context.Context, *cases.EmailEvent) error { return nil }
func (mockEmailRepo) PendingCount(context.Context, uuid.UUID) (int, error) {
	return 0, nil
}
func (mockEmailRepo) ListPending(context.Context) ([]*cases.EmailEvent, error) {
	return []*cases.EmailEvent{{Subject: "slot offer", CreatedAt: time.Unix(1700000000, 0)}}, nil
}
func (mockEmailRepo) MarkResolved(context.Context, uuid.UUID) (int, error) {
	return 0, nil
}

type allowAllHandles struct{}

func (allowAllHandles) HasHandle(context.Context, string) (bool, error) { return true, nil }

func newTestService(client Client) (*Service, *mockCaseRepo, *Anonymizer) {
	repo := newMockCaseRepo()
	caseSvc := cases.NewService(repo, mockEmailRepo{}, allowAllHandles{})
	anon, _ := NewAnonymizer([]byte("key"))
	return NewService(anon, client, caseSvc), repo, anon
}

func TestAnalyze_SendsAnonymizedState(t *testing.T) {
	stub := &stubClient{resp: &AnalyzeResponse{}}
	svc, repo, _ := newTestService(stub)
	ctx := context.Background()

	handle := "a3f1c9d2e8b4a6f0a3f1c9d2e8b4a6f0"
	cr := &cases.CaseRecord{ProcedureType: "hifu", Handle: &handle, Status: cases.StatusDraft}
	if err := repo.Create(ctx, cr); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.Analyze(ctx, "what next"); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if stub.lastState == nil {
		t.Fatal("client never received a bucket state")
	}
	if stub.lastQuery != "what next" {
		t.Errorf("query = %q", stub.lastQuery)
	}
	if len(stub.lastState.EmailLog) != 1 || stub.lastState.EmailLog[0].Subject != "slot offer" {
		t.Errorf("email log = %+v", stub.lastState.EmailLog)
	}
	raw, _ := json.Marshal(stub.lastState)
	if strings.Contains(string(raw), handle) {
		t.Error("bucket state leaked the vault handle")
	}
}

func TestAnalyze_ClientErrorPropagates(t *testing.T) {
	stub := &stubClient{err: errors.New("agent unreachable")}
	svc, _, _ := newTestService(stub)
	if _, err := svc.Analyze(context.Background(), ""); err == nil {
		t.Error("expected error from client")
	}
}

func TestAccept_AppliesTransitions(t *testing.T) {
	stub := &stubClient{resp: &AnalyzeResponse{}}
	svc, repo, anon := newTestService(stub)
	ctx := context.Background()

	cr := &cases.CaseRecord{ProcedureType: "hifu", Status: cases.StatusDraft}
	if err := repo.Create(ctx, cr); err != nil {
		t.Fatalf("seed: %v", err)
	}
	id := anon.AnonymousID(cr.CaseID)

	results, err := svc.Accept(ctx, []string{id}, cases.EventBeginPlanning)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if len(results) != 1 || results[0].Error != "" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Status != cases.StatusPlanning {
		t.Errorf("status = %s, want planning", results[0].Status)
	}
	stored, _ := repo.GetByID(ctx, cr.CaseID)
	if stored.Status != cases.StatusPlanning {
		t.Errorf("stored status = %s, want planning", stored.Status)
	}
}

func TestAccept_RejectsSlotAssignment(t *testing.T) {
	stub := &stubClient{}
	svc, repo, anon := newTestService(stub)
	ctx := context.Background()

	cr := &cases.CaseRecord{ProcedureType: "hifu", Status: cases.StatusPlanning}
	if err := repo.Create(ctx, cr); err != nil {
		t.Fatalf("seed: %v", err)
	}
	id := anon.AnonymousID(cr.CaseID)

	_, err := svc.Accept(ctx, []string{id}, cases.EventAssignToSlot)
	if !errors.Is(err, cases.ErrAssignRequiresSlot) {
		t.Fatalf("err = %v, want ErrAssignRequiresSlot", err)
	}
	stored, _ := repo.GetByID(ctx, cr.CaseID)
	if stored.Status != cases.StatusPlanning {
		t.Errorf("case scheduled without a slot: status = %s", stored.Status)
	}
}

func TestAccept_UnknownAnonymousID(t *testing.T) {
	stub := &stubClient{}
	svc, _, _ := newTestService(stub)
	if _, err := svc.Accept(context.Background(), []string{"#ffffffffffff"}, cases.EventBeginPlanning); err == nil {
		t.Error("expected error for unknown anonymous id")
	}
}

func TestAccept_PartialFailureReported(t *testing.T) {
	stub := &stubClient{}
	svc, repo, anon := newTestService(stub)
	ctx := context.Background()

	draft := &cases.CaseRecord{ProcedureType: "hifu", Status: cases.StatusDraft}
	done := &cases.CaseRecord{ProcedureType: "hifu", Status: cases.StatusCompleted}
	repo.Create(ctx, draft)
	repo.Create(ctx, done)

	results, err := svc.Accept(ctx,
		[]string{anon.AnonymousID(draft.CaseID), anon.AnonymousID(done.CaseID)},
		cases.EventBeginPlanning)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if results[0].Error != "" {
		t.Errorf("draft case should transition: %s", results[0].Error)
	}
	if results[1].Error == "" {
		t.Error("completed case should fail to transition")
	}
}

func TestDraftEmail_AlwaysRequiresApproval(t *testing.T) {
	stub := &stubClient{draft: &EmailDraft{To: "theatre@stmarys.nhs.uk", Subject: "slot request", RequiresApproval: false}}
	svc, repo, anon := newTestService(stub)
	ctx := context.Background()

	cr := &cases.CaseRecord{ProcedureType: "hifu", Status: cases.StatusPlanning}
	repo.Create(ctx, cr)
	id := anon.AnonymousID(cr.CaseID)

	draft, err := svc.DraftEmail(ctx, "book_theatre", []string{id})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if !draft.RequiresApproval {
		t.Error("draft must require approval")
	}
}
