package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"docflow/internal/delay"
	"docflow/internal/models"
	"docflow/internal/trigger"
)

// fakeJobStore is an in-memory JobStore.
type fakeJobStore struct {
	mu     sync.Mutex
	nextID uint
	jobs   map[uint]*models.CronJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{nextID: 1, jobs: make(map[uint]*models.CronJob)}
}

func (s *fakeJobStore) Insert(job *models.CronJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.ID = s.nextID
	s.nextID++
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *fakeJobStore) InsertIfAbsent(job *models.CronJob) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.RecurrenceKey == nil || *job.RecurrenceKey == "" {
		return false, errors.New("recurrence key is required")
	}
	for _, existing := range s.jobs {
		if existing.RecurrenceKey != nil && *existing.RecurrenceKey == *job.RecurrenceKey {
			return false, nil
		}
	}
	job.ID = s.nextID
	s.nextID++
	cp := *job
	s.jobs[job.ID] = &cp
	return true, nil
}

func (s *fakeJobStore) FindByID(id uint) (*models.CronJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *fakeJobStore) ListScheduledBefore(beforeMillis int64) ([]models.CronJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CronJob
	for _, job := range s.jobs {
		if job.Status == models.JobStatusScheduled && job.ScheduledTime <= beforeMillis {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *fakeJobStore) MarkExecuting(id uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != models.JobStatusScheduled {
		return false, nil
	}
	job.Status = models.JobStatusExecuting
	return true, nil
}

func (s *fakeJobStore) PatchStatus(id uint, status, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	job.Status = status
	if lastError != "" {
		job.LastError = lastError
	}
	return nil
}

func (s *fakeJobStore) CancelScheduledForSubject(subjectID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, job := range s.jobs {
		if job.SubjectID == subjectID && job.Status == models.JobStatusScheduled {
			job.Status = models.JobStatusCancelled
			n++
		}
	}
	return n, nil
}

func (s *fakeJobStore) byStatus(subjectID uint, status string) []models.CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CronJob
	for _, job := range s.jobs {
		if job.SubjectID == subjectID && job.Status == status {
			out = append(out, *job)
		}
	}
	return out
}

// fakeSubjectStore holds clients by id.
type fakeSubjectStore struct {
	mu      sync.Mutex
	clients map[uint]*models.Client
}

func newFakeSubjectStore(clients ...*models.Client) *fakeSubjectStore {
	s := &fakeSubjectStore{clients: make(map[uint]*models.Client)}
	for _, c := range clients {
		s.clients[c.ID] = c
	}
	return s
}

func (s *fakeSubjectStore) FindByID(id uint) (*models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

// recordingExecutor captures armed payloads without firing them.
type recordingExecutor struct {
	mu     sync.Mutex
	armed  []delay.FirePayload
	delays []time.Duration
	err    error
}

func (e *recordingExecutor) ArmAfter(_ context.Context, d time.Duration, p delay.FirePayload) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	e.armed = append(e.armed, p)
	e.delays = append(e.delays, d)
	return "trigger-id", nil
}

func (e *recordingExecutor) byKind(kind string) []delay.FirePayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []delay.FirePayload
	for _, p := range e.armed {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// scriptedTrigger fails a set number of times before succeeding.
type scriptedTrigger struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	lastReq  trigger.Request
}

func (t *scriptedTrigger) Trigger(_ context.Context, req trigger.Request) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.lastReq = req
	if t.calls <= t.failures {
		if t.err != nil {
			return t.err
		}
		return trigger.ErrExternalCall
	}
	return nil
}

// recordingNotifier captures alerts.
type recordingNotifier struct {
	mu         sync.Mutex
	jobAlerts  int
	runAlerts  int
	lastReason string
}

func (n *recordingNotifier) JobFailed(_, _ uint, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobAlerts++
	n.lastReason = reason
}

func (n *recordingNotifier) RunFailed(_, _ uint, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runAlerts++
	n.lastReason = reason
}
