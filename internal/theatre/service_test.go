package theatre

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/casecoord/casecoord/internal/cases"
	"github.com/casecoord/casecoord/internal/platform/db"
)

// -- Mock repositories --

type mockSlotRepo struct {
	slots       map[uuid.UUID]*TheatreSlot
	assignments map[uuid.UUID]uuid.UUID // caseID -> slotID
	order       map[uuid.UUID][]uuid.UUID
}

func newMockSlotRepo() *mockSlotRepo {
	return &mockSlotRepo{
		slots:       make(map[uuid.UUID]*TheatreSlot),
		assignments: make(map[uuid.UUID]uuid.UUID),
		order:       make(map[uuid.UUID][]uuid.UUID),
	}
}

func (m *mockSlotRepo) Create(_ context.Context, s *TheatreSlot) error {
	s.SlotID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = time.Now()
	m.slots[s.SlotID] = s
	return nil
}

func (m *mockSlotRepo) GetByID(_ context.Context, slotID uuid.UUID) (*TheatreSlot, error) {
	s, ok := m.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	cp.AssignedCaseIDs = append([]uuid.UUID(nil), m.order[slotID]...)
	return &cp, nil
}

func (m *mockSlotRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*TheatreSlot, int, error) {
	var result []*TheatreSlot
	for id := range m.slots {
		s, _ := m.GetByID(context.Background(), id)
		if f.Matches(s) {
			result = append(result, s)
		}
	}
	return result, len(result), nil
}

func (m *mockSlotRepo) Delete(_ context.Context, slotID uuid.UUID) error {
	if _, ok := m.slots[slotID]; !ok {
		return ErrSlotNotFound
	}
	delete(m.slots, slotID)
	return nil
}

func (m *mockSlotRepo) Assign(_ context.Context, slotID, caseID uuid.UUID) error {
	m.assignments[caseID] = slotID
	m.order[slotID] = append(m.order[slotID], caseID)
	return nil
}

func (m *mockSlotRepo) Release(_ context.Context, caseID uuid.UUID) error {
	slotID, ok := m.assignments[caseID]
	if !ok {
		return nil
	}
	delete(m.assignments, caseID)
	ids := m.order[slotID]
	for i, id := range ids {
		if id == caseID {
			m.order[slotID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockSlotRepo) SlotForCase(_ context.Context, caseID uuid.UUID) (*TheatreSlot, error) {
	slotID, ok := m.assignments[caseID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return m.GetByID(context.Background(), slotID)
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
	return nil, nil
}
func (mockEmailRepo) MarkResolved(context.Context, uuid.UUID) (int, error) {
	return 0, nil
}

type allowAllHandles struct{}

func (allowAllHandles) HasHandle(context.Context, string) (bool, error) { return true, nil }

func newTestService() (*Service, *mockSlotRepo, *mockCaseRepo) {
	slots := newMockSlotRepo()
	caseRepo := newMockCaseRepo()
	caseSvc := cases.NewService(caseRepo, mockEmailRepo{}, allowAllHandles{})
	return NewService(slots, caseSvc, db.PassthroughTx), slots, caseRepo
}

// newWiredServices wires the case service back to the theatre service the
// way the server does, so cancel releases slot time.
func newWiredServices() (*Service, *cases.Service, *mockCaseRepo) {
	slots := newMockSlotRepo()
	caseRepo := newMockCaseRepo()
	caseSvc := cases.NewService(caseRepo, mockEmailRepo{}, allowAllHandles{})
	svc := NewService(slots, caseSvc, db.PassthroughTx)
	caseSvc.SetSlotReleaser(svc)
	return svc, caseSvc, caseRepo
}

func addCase(t *testing.T, repo *mockCaseRepo, procedureType string, status cases.Status) uuid.UUID {
	t.Helper()
	cr := &cases.CaseRecord{ProcedureType: procedureType, Status: status}
	if err := repo.Create(context.Background(), cr); err != nil {
		t.Fatalf("seeding case: %v", err)
	}
	return cr.CaseID
}

func addSlot(t *testing.T, svc *Service, minutes int) uuid.UUID {
	t.Helper()
	s := &TheatreSlot{HospitalName: "St Mary's", StartTime: "08:00", DurationMinutes: minutes}
	if err := svc.CreateSlot(context.Background(), s); err != nil {
		t.Fatalf("creating slot: %v", err)
	}
	return s.SlotID
}

// -- Tests --

func TestEstimateDuration(t *testing.T) {
	tests := []struct {
		procedureType string
		want          int
	}{
		{"fusion_biopsy", 45},
		{"hifu", 90},
		{"ire", 120},
		{"cryotherapy", 60},
		{"", 60},
	}
	for _, tt := range tests {
		if got := EstimateDuration(tt.procedureType); got != tt.want {
			t.Errorf("EstimateDuration(%q) = %d, want %d", tt.procedureType, got, tt.want)
		}
	}
}

func TestAssignCase_MovesToScheduled(t *testing.T) {
	svc, _, caseRepo := newTestService()
	ctx := context.Background()

	slotID := addSlot(t, svc, 180)
	caseID := addCase(t, caseRepo, "hifu", cases.StatusPlanning)

	slot, err := svc.AssignCase(ctx, slotID, caseID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(slot.AssignedCaseIDs) != 1 || slot.AssignedCaseIDs[0] != caseID {
		t.Errorf("assigned ids = %v, want [%s]", slot.AssignedCaseIDs, caseID)
	}
	cr, _ := caseRepo.GetByID(ctx, caseID)
	if cr.Status != cases.StatusScheduled {
		t.Errorf("case status = %s, want scheduled", cr.Status)
	}
}

func TestAssignCase_CapacityEnforced(t *testing.T) {
	svc, slots, caseRepo := newTestService()
	ctx := context.Background()

	// 180 minutes: two hifu cases fit (90+90), a third does not.
	slotID := addSlot(t, svc, 180)
	for i := 0; i < 2; i++ {
		caseID := addCase(t, caseRepo, "hifu", cases.StatusPlanning)
		if _, err := svc.AssignCase(ctx, slotID, caseID); err != nil {
			t.Fatalf("assign %d: %v", i, err)
		}
	}

	third := addCase(t, caseRepo, "hifu", cases.StatusPlanning)
	_, err := svc.AssignCase(ctx, slotID, third)
	var capacity *CapacityExceededError
	if !errors.As(err, &capacity) {
		t.Fatalf("err = %v, want CapacityExceededError", err)
	}
	if capacity.RemainingMinutes != 0 || capacity.RequiredMinutes != 90 {
		t.Errorf("error detail = %+v", capacity)
	}

	// Nothing applied: case still planning, not assigned.
	cr, _ := caseRepo.GetByID(ctx, third)
	if cr.Status != cases.StatusPlanning {
		t.Errorf("failed assign changed status to %s", cr.Status)
	}
	if _, ok := slots.assignments[third]; ok {
		t.Error("failed assign left assignment row")
	}
}

func TestAssignCase_ExactFit(t *testing.T) {
	svc, _, caseRepo := newTestService()
	ctx := context.Background()

	slotID := addSlot(t, svc, 135)
	a := addCase(t, caseRepo, "hifu", cases.StatusPlanning)          // 90
	b := addCase(t, caseRepo, "fusion_biopsy", cases.StatusPlanning) // 45

	if _, err := svc.AssignCase(ctx, slotID, a); err != nil {
		t.Fatalf("assign a: %v", err)
	}
	slot, err := svc.AssignCase(ctx, slotID, b)
	if err != nil {
		t.Fatalf("assign b (exact fit): %v", err)
	}
	if got := slot.RemainingMinutes([]int{90, 45}); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
}

func TestAssignCase_RequiresPlanningStatus(t *testing.T) {
	svc, slots, caseRepo := newTestService()
	ctx := context.Background()

	slotID := addSlot(t, svc, 180)
	caseID := addCase(t, caseRepo, "hifu", cases.StatusDraft)

	_, err := svc.AssignCase(ctx, slotID, caseID)
	var invalid *cases.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
	if _, ok := slots.assignments[caseID]; ok {
		t.Error("illegal transition left assignment row")
	}
}

func TestAssignCase_PreservesInsertionOrder(t *testing.T) {
	svc, _, caseRepo := newTestService()
	ctx := context.Background()

	slotID := addSlot(t, svc, 300)
	var want []uuid.UUID
	for i := 0; i < 3; i++ {
		caseID := addCase(t, caseRepo, "fusion_biopsy", cases.StatusPlanning)
		if _, err := svc.AssignCase(ctx, slotID, caseID); err != nil {
			t.Fatalf("assign %d: %v", i, err)
		}
		want = append(want, caseID)
	}

	slot, err := svc.GetSlot(ctx, slotID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if len(slot.AssignedCaseIDs) != len(want) {
		t.Fatalf("assigned %d cases, want %d", len(slot.AssignedCaseIDs), len(want))
	}
	for i := range want {
		if slot.AssignedCaseIDs[i] != want[i] {
			t.Errorf("position %d = %s, want %s", i, slot.AssignedCaseIDs[i], want[i])
		}
	}
}

func TestReleaseCase_FreesCapacity(t *testing.T) {
	svc, _, caseRepo := newTestService()
	ctx := context.Background()

	slotID := addSlot(t, svc, 90)
	a := addCase(t, caseRepo, "hifu", cases.StatusPlanning)
	if _, err := svc.AssignCase(ctx, slotID, a); err != nil {
		t.Fatalf("assign: %v", err)
	}

	b := addCase(t, caseRepo, "hifu", cases.StatusPlanning)
	if _, err := svc.AssignCase(ctx, slotID, b); err == nil {
		t.Fatal("slot should be full")
	}

	if err := svc.ReleaseCase(ctx, a); err != nil {
		t.Fatalf("release: %v", err)
	}
	cr, _ := caseRepo.GetByID(ctx, a)
	if cr.Status != cases.StatusDraft {
		t.Errorf("released case status = %s, want draft", cr.Status)
	}

	if _, err := svc.AssignCase(ctx, slotID, b); err != nil {
		t.Errorf("assign after release: %v", err)
	}
}

func TestCancelledCaseReturnsSlotTime(t *testing.T) {
	svc, caseSvc, caseRepo := newWiredServices()
	ctx := context.Background()

	slotID := addSlot(t, svc, 90)
	a := addCase(t, caseRepo, "hifu", cases.StatusPlanning)
	if _, err := svc.AssignCase(ctx, slotID, a); err != nil {
		t.Fatalf("assign: %v", err)
	}

	got, err := caseSvc.Transition(ctx, a, cases.EventCancel)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != cases.StatusDraft {
		t.Errorf("status = %s, want draft", got.Status)
	}
	slot, _ := svc.GetSlot(ctx, slotID)
	if len(slot.AssignedCaseIDs) != 0 {
		t.Fatalf("assignment kept after cancel: %v", slot.AssignedCaseIDs)
	}

	b := addCase(t, caseRepo, "hifu", cases.StatusPlanning)
	if _, err := svc.AssignCase(ctx, slotID, b); err != nil {
		t.Errorf("slot capacity still consumed after cancel: %v", err)
	}

	// The cancelled case can be planned and assigned again.
	if _, err := caseSvc.Transition(ctx, a, cases.EventBeginPlanning); err != nil {
		t.Fatalf("replan: %v", err)
	}
	other := addSlot(t, svc, 90)
	if _, err := svc.AssignCase(ctx, other, a); err != nil {
		t.Errorf("reassign after cancel: %v", err)
	}
}

func TestConfirmedCaseCancelReleasesSlot(t *testing.T) {
	svc, caseSvc, caseRepo := newWiredServices()
	ctx := context.Background()

	slotID := addSlot(t, svc, 120)
	a := addCase(t, caseRepo, "hifu", cases.StatusPlanning)
	if _, err := svc.AssignCase(ctx, slotID, a); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := caseSvc.Transition(ctx, a, cases.EventConfirm); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if _, err := caseSvc.Transition(ctx, a, cases.EventCancel); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	slot, _ := svc.GetSlot(ctx, slotID)
	if len(slot.AssignedCaseIDs) != 0 {
		t.Errorf("assignment kept after cancel: %v", slot.AssignedCaseIDs)
	}
}

func TestDeleteSlot_RejectsWhenAssigned(t *testing.T) {
	svc, _, caseRepo := newTestService()
	ctx := context.Background()

	slotID := addSlot(t, svc, 180)
	caseID := addCase(t, caseRepo, "hifu", cases.StatusPlanning)
	if _, err := svc.AssignCase(ctx, slotID, caseID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	if err := svc.DeleteSlot(ctx, slotID); err == nil {
		t.Error("deleting a slot with assigned cases should fail")
	}
}

func TestCreateSlot_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if err := svc.CreateSlot(ctx, &TheatreSlot{DurationMinutes: 60}); err == nil {
		t.Error("missing hospital name accepted")
	}
	if err := svc.CreateSlot(ctx, &TheatreSlot{HospitalName: "St Mary's"}); err == nil {
		t.Error("zero duration accepted")
	}
}

func TestListFilter_DateBounds(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 9, d, 0, 0, 0, 0, time.UTC) }
	slot := &TheatreSlot{Date: day(15)}

	tests := []struct {
		name   string
		filter ListFilter
		want   bool
	}{
		{"open bounds", ListFilter{}, true},
		{"inside range", ListFilter{From: day(10), To: day(20)}, true},
		{"on from bound", ListFilter{From: day(15)}, true},
		{"on to bound", ListFilter{To: day(15)}, true},
		{"before from", ListFilter{From: day(16)}, false},
		{"after to", ListFilter{To: day(14)}, false},
	}
	for _, tt := range tests {
		if got := tt.filter.Matches(slot); got != tt.want {
			t.Errorf("%s: Matches = %v, want %v", tt.name, got, tt.want)
		}
	}
}
