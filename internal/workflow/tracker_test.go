package workflow

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"docflow/internal/models"
	"docflow/internal/pkg/lease"
)

// fakeRunStore mirrors the repository's append-only and forward-only rules.
type fakeRunStore struct {
	mu     sync.Mutex
	nextID uint
	runs   map[uint]*models.WorkflowRun
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{nextID: 1, runs: make(map[uint]*models.WorkflowRun)}
}

func (s *fakeRunStore) Create(run *models.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.ID = s.nextID
	s.nextID++
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *fakeRunStore) FindByID(id uint) (*models.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *fakeRunStore) FindByCorrelation(subjectID uint, correlationID string) (*models.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, run := range s.runs {
		if run.SubjectID == subjectID && run.CorrelationID != nil && *run.CorrelationID == correlationID {
			cp := *run
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeRunStore) AppendStep(runID uint, step models.WorkflowStep, advanceTo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	steps, err := run.StepList()
	if err != nil {
		return err
	}
	steps = append(steps, step)
	raw, err := json.Marshal(steps)
	if err != nil {
		return err
	}
	run.Steps = string(raw)
	if advanceTo != "" &&
		!models.RunStatusTerminal(run.Status) &&
		models.RunStatusRank(advanceTo) > models.RunStatusRank(run.Status) {
		run.Status = advanceTo
	}
	return nil
}

func (s *fakeRunStore) SetTerminal(runID uint, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if models.RunStatusTerminal(run.Status) {
		return nil
	}
	run.Status = status
	if errMsg != "" {
		run.Error = errMsg
	}
	return nil
}

// alertRecorder captures operator alerts raised by the tracker.
type alertRecorder struct {
	mu   sync.Mutex
	runs []string
}

func (a *alertRecorder) JobFailed(uint, uint, string) {}

func (a *alertRecorder) RunFailed(_, _ uint, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs = append(a.runs, reason)
}

func newTestTracker() (*Tracker, *fakeRunStore, *alertRecorder) {
	store := newFakeRunStore()
	alerts := &alertRecorder{}
	return NewTracker(store, lease.NewMemory(), alerts, zap.NewNop()), store, alerts
}

func TestStartCreatesRunWithInitialStep(t *testing.T) {
	tracker, _, _ := newTestTracker()

	run, created, err := tracker.Start(context.Background(), 7, "resp-1")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected a new run")
	}
	if run.Status != models.RunStatusStarted {
		t.Errorf("status = %s, want started", run.Status)
	}
	steps, err := run.StepList()
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 1 || steps[0].Name != "start" || steps[0].Status != models.StepStatusSuccess {
		t.Errorf("initial steps = %+v", steps)
	}
}

func TestStartWithHeldCorrelationReturnsExistingRun(t *testing.T) {
	tracker, _, _ := newTestTracker()

	first, created, err := tracker.Start(context.Background(), 7, "resp-1")
	if err != nil || !created {
		t.Fatalf("first start: created=%v err=%v", created, err)
	}

	second, created, err := tracker.Start(context.Background(), 7, "resp-1")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("duplicate correlation must not create a second run")
	}
	if second.ID != first.ID {
		t.Errorf("returned run %d, want %d", second.ID, first.ID)
	}
}

func TestStartWithoutCorrelationAlwaysCreates(t *testing.T) {
	tracker, _, _ := newTestTracker()

	_, created1, _ := tracker.Start(context.Background(), 7, "")
	_, created2, _ := tracker.Start(context.Background(), 7, "")
	if !created1 || !created2 {
		t.Error("uncorrelated starts must each create a run")
	}
}

func TestStepLogIsAppendOnly(t *testing.T) {
	tracker, store, _ := newTestTracker()
	run, _, err := tracker.Start(context.Background(), 7, "resp-1")
	if err != nil {
		t.Fatal(err)
	}

	names := []string{"fetch-transcript", "generate", "store"}
	prevLen := 1
	for i, name := range names {
		if err := tracker.AppendStep(context.Background(), run.ID, models.WorkflowStep{
			Name:   name,
			Status: models.StepStatusSuccess,
		}, ""); err != nil {
			t.Fatal(err)
		}

		got, _ := store.FindByID(run.ID)
		steps, _ := got.StepList()
		if len(steps) != prevLen+1 {
			t.Fatalf("after append %d: len = %d, want %d", i, len(steps), prevLen+1)
		}
		prevLen = len(steps)

		// Earlier entries are untouched.
		if steps[0].Name != "start" {
			t.Fatal("first step was rewritten")
		}
		if steps[len(steps)-1].Name != name {
			t.Fatalf("last step = %s, want %s", steps[len(steps)-1].Name, name)
		}
	}
}

func TestAppendStepAdvancesStatusForwardOnly(t *testing.T) {
	tracker, store, _ := newTestTracker()
	run, _, _ := tracker.Start(context.Background(), 7, "")

	if err := tracker.AppendStep(context.Background(), run.ID, models.WorkflowStep{Name: "generate"}, models.RunStatusGenerating); err != nil {
		t.Fatal(err)
	}
	got, _ := store.FindByID(run.ID)
	if got.Status != models.RunStatusGenerating {
		t.Fatalf("status = %s, want generating", got.Status)
	}

	// A stale callback cannot move the run backwards.
	if err := tracker.AppendStep(context.Background(), run.ID, models.WorkflowStep{Name: "late"}, models.RunStatusStarted); err != nil {
		t.Fatal(err)
	}
	got, _ = store.FindByID(run.ID)
	if got.Status != models.RunStatusGenerating {
		t.Errorf("status = %s, want generating after stale advance", got.Status)
	}
}

func TestCompleteDoesNotTouchStepLog(t *testing.T) {
	tracker, store, _ := newTestTracker()
	run, _, _ := tracker.Start(context.Background(), 7, "")

	if err := tracker.Complete(context.Background(), run.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := store.FindByID(run.ID)
	if got.Status != models.RunStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	steps, _ := got.StepList()
	if len(steps) != 1 {
		t.Errorf("steps = %d, want 1", len(steps))
	}
}

func TestFailAppendsErrorStepAndReason(t *testing.T) {
	tracker, store, alerts := newTestTracker()
	run, _, _ := tracker.Start(context.Background(), 7, "")

	if err := tracker.Fail(context.Background(), run.ID, "generator timed out"); err != nil {
		t.Fatal(err)
	}
	got, _ := store.FindByID(run.ID)
	if got.Status != models.RunStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Error != "generator timed out" {
		t.Errorf("error = %q", got.Error)
	}
	steps, _ := got.StepList()
	last := steps[len(steps)-1]
	if last.Name != "error" || last.Status != models.StepStatusError || last.Detail != "generator timed out" {
		t.Errorf("last step = %+v", last)
	}
	if len(alerts.runs) != 1 || alerts.runs[0] != "generator timed out" {
		t.Errorf("alerts = %v, want one alert with the failure reason", alerts.runs)
	}
}

func TestCompletedRunIgnoresLateCompletion(t *testing.T) {
	tracker, store, _ := newTestTracker()
	run, _, _ := tracker.Start(context.Background(), 7, "")

	if err := tracker.Fail(context.Background(), run.ID, "boom"); err != nil {
		t.Fatal(err)
	}
	if err := tracker.Complete(context.Background(), run.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := store.FindByID(run.ID)
	if got.Status != models.RunStatusFailed {
		t.Errorf("status = %s, want failed to stick", got.Status)
	}
}
