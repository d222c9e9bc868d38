// Package testutil provides shared test doubles for domain interfaces, used
// by tests across the codebase. This follows the Go convention of a shared
// test utility package (like net/http/httptest).
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"
	"time"

	"retail-medallion/internal/domain"
)

// === Object Store ===

// MemStore implements domain.ObjectStore in memory.
type MemStore struct {
	Name string

	// GetErr and PutErr, when set, are returned instead of touching the map.
	GetErr error
	PutErr error

	// PutHook, when set, runs before every Put; a non-nil error fails that Put
	// and leaves the object unchanged.
	PutHook func(key string) error

	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	gets    int
}

var _ domain.ObjectStore = (*MemStore)(nil)

// NewMemStore returns an empty store whose URIs start with mem://name/.
func NewMemStore(name string) *MemStore {
	return &MemStore{Name: name, objects: make(map[string][]byte)}
}

// Get implements the interface method for testing.
func (m *MemStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	data, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound("object %q not found", m.URI(key))
	}
	return io.NopCloser(bytes.NewReader(slices.Clone(data))), nil
}

// Put implements the interface method for testing. The body is read fully
// before the object is replaced.
func (m *MemStore) Put(ctx context.Context, key string, r io.Reader) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	if m.PutHook != nil {
		if err := m.PutHook(key); err != nil {
			return err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.puts++
	return nil
}

// Exists implements the interface method for testing.
func (m *MemStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

// URI implements the interface method for testing.
func (m *MemStore) URI(key string) string {
	return fmt.Sprintf("mem://%s/%s", m.Name, key)
}

// Set stores an object directly.
func (m *MemStore) Set(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = slices.Clone(data)
}

// Object returns a stored object and whether it exists.
func (m *MemStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return slices.Clone(data), ok
}

// Keys returns the stored keys in sorted order.
func (m *MemStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Gets returns the number of Get calls that reached the map.
func (m *MemStore) Gets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

// Puts returns the number of successful Put calls.
func (m *MemStore) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// === Run Repository Mock ===

// MockRunRepo implements domain.RunRepository in memory. Any Fn field that is
// set replaces the default behaviour for that method.
type MockRunRepo struct {
	CreateRunFn   func(ctx context.Context, run *domain.PipelineRun) (*domain.PipelineRun, error)
	FinishStageFn func(ctx context.Context, id int64, status string, report domain.StageReport, errMsg *string) error

	mu     sync.Mutex
	runs   map[string]*domain.PipelineRun
	order  []string
	nextID int64
}

var _ domain.RunRepository = (*MockRunRepo)(nil)

func (m *MockRunRepo) init() {
	if m.runs == nil {
		m.runs = make(map[string]*domain.PipelineRun)
	}
}

// CreateRun implements the interface method for testing.
func (m *MockRunRepo) CreateRun(ctx context.Context, run *domain.PipelineRun) (*domain.PipelineRun, error) {
	if m.CreateRunFn != nil {
		return m.CreateRunFn(ctx, run)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	stored := *run
	stored.Stages = nil
	m.runs[run.ID] = &stored
	m.order = append(m.order, run.ID)
	out := stored
	return &out, nil
}

// FinishRun implements the interface method for testing.
func (m *MockRunRepo) FinishRun(_ context.Context, id, status string, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	r, ok := m.runs[id]
	if !ok {
		return domain.ErrNotFound("pipeline run %q not found", id)
	}
	now := time.Now().UTC()
	r.Status = status
	r.FinishedAt = &now
	r.ErrorMessage = errMsg
	return nil
}

// StartStage implements the interface method for testing.
func (m *MockRunRepo) StartStage(_ context.Context, runID, stage string) (*domain.StageRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	r, ok := m.runs[runID]
	if !ok {
		return nil, domain.ErrNotFound("pipeline run %q not found", runID)
	}
	m.nextID++
	now := time.Now().UTC()
	sr := domain.StageRun{ID: m.nextID, RunID: runID, Stage: stage, Status: domain.StageStatusRunning, StartedAt: &now}
	r.Stages = append(r.Stages, sr)
	out := sr
	return &out, nil
}

// FinishStage implements the interface method for testing.
func (m *MockRunRepo) FinishStage(ctx context.Context, id int64, status string, report domain.StageReport, errMsg *string) error {
	if m.FinishStageFn != nil {
		return m.FinishStageFn(ctx, id, status, report, errMsg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	for _, r := range m.runs {
		for i := range r.Stages {
			sr := &r.Stages[i]
			if sr.ID != id {
				continue
			}
			now := time.Now().UTC()
			sr.Status = status
			sr.InputRows = report.InputRows
			sr.AdmittedRows = report.AdmittedRows
			sr.RejectedRows = report.RejectedRows
			sr.Output = report.Output
			sr.FinishedAt = &now
			sr.ErrorMessage = errMsg
			return nil
		}
	}
	return domain.ErrNotFound("stage run %d not found", id)
}

// SkipStage implements the interface method for testing.
func (m *MockRunRepo) SkipStage(_ context.Context, runID, stage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	r, ok := m.runs[runID]
	if !ok {
		return domain.ErrNotFound("pipeline run %q not found", runID)
	}
	m.nextID++
	r.Stages = append(r.Stages, domain.StageRun{ID: m.nextID, RunID: runID, Stage: stage, Status: domain.StageStatusSkipped})
	return nil
}

// GetRun implements the interface method for testing.
func (m *MockRunRepo) GetRun(_ context.Context, id string) (*domain.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	r, ok := m.runs[id]
	if !ok {
		return nil, domain.ErrNotFound("pipeline run %q not found", id)
	}
	out := *r
	out.Stages = slices.Clone(r.Stages)
	return &out, nil
}

// ListRuns implements the interface method for testing. Newest runs first.
func (m *MockRunRepo) ListRuns(_ context.Context, limit int) ([]domain.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	var out []domain.PipelineRun
	for i := len(m.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		r := *m.runs[m.order[i]]
		r.Stages = slices.Clone(r.Stages)
		out = append(out, r)
	}
	return out, nil
}
