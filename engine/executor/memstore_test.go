package executor_test

import (
	"context"
	"sync"
	"time"

	"github.com/realtalishaw/super-enigma/engine/core"
	"github.com/realtalishaw/super-enigma/engine/infra/cache"
	"github.com/realtalishaw/super-enigma/engine/store"
)

// memWorkflowStore and memRunStore are hand-written in-memory doubles for
// store.WorkflowStore/store.RunStore, following the memScheduleStore
// pattern in engine/scheduler/scheduler_test.go.

type memWorkflowStore struct {
	mu   sync.Mutex
	docs map[string]*store.DAGVersion
}

func newMemWorkflowStore() *memWorkflowStore {
	return &memWorkflowStore{docs: map[string]*store.DAGVersion{}}
}

func (m *memWorkflowStore) put(v *store.DAGVersion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[v.WorkflowID] = v
}

func (m *memWorkflowStore) SaveDAG(_ context.Context, v *store.DAGVersion) error {
	m.put(v)
	return nil
}

func (m *memWorkflowStore) LoadDAG(_ context.Context, workflowID string, _ int) (*store.DAGVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.docs[workflowID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (m *memWorkflowStore) LoadLatestDAG(_ context.Context, workflowID string) (*store.DAGVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.docs[workflowID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (m *memWorkflowStore) ListVersions(_ context.Context, workflowID string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.docs[workflowID]; ok {
		return []int{v.Version}, nil
	}
	return nil, nil
}

type memRunStore struct {
	mu        sync.Mutex
	runs      map[core.ID]*store.Run
	nodeExecs map[core.ID]map[string]*store.NodeExecution
	arrivals  map[core.ID]map[string][]*store.JoinArrival
}

func newMemRunStore() *memRunStore {
	return &memRunStore{
		runs:      map[core.ID]*store.Run{},
		nodeExecs: map[core.ID]map[string]*store.NodeExecution{},
		arrivals:  map[core.ID]map[string][]*store.JoinArrival{},
	}
}

func (m *memRunStore) CreateRun(_ context.Context, r *store.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.runs[r.ID] = &cp
	m.nodeExecs[r.ID] = map[string]*store.NodeExecution{}
	m.arrivals[r.ID] = map[string][]*store.JoinArrival{}
	return nil
}

func (m *memRunStore) GetRun(_ context.Context, id core.ID) (*store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRunStore) SetRunStatus(
	_ context.Context, id core.ID, status store.RunStatus, finishedAt *time.Time, runErr string,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = status
	r.FinishedAt = finishedAt
	r.Error = runErr
	return nil
}

func (m *memRunStore) UpsertNodeExecution(_ context.Context, ne *store.NodeExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byNode, ok := m.nodeExecs[ne.RunID]
	if !ok {
		byNode = map[string]*store.NodeExecution{}
		m.nodeExecs[ne.RunID] = byNode
	}
	cp := *ne
	if existing, ok := byNode[ne.NodeID]; ok {
		cp.Attempt = existing.Attempt + 1
	}
	byNode[ne.NodeID] = &cp
	return nil
}

func (m *memRunStore) GetNodeExecution(_ context.Context, runID core.ID, nodeID string) (*store.NodeExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byNode, ok := m.nodeExecs[runID]
	if !ok {
		return nil, store.ErrNotFound
	}
	ne, ok := byNode[nodeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *ne
	return &cp, nil
}

func (m *memRunStore) ListNodeExecutions(_ context.Context, runID core.ID) ([]*store.NodeExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.NodeExecution
	for _, ne := range m.nodeExecs[runID] {
		cp := *ne
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memRunStore) RecordJoinArrival(_ context.Context, a *store.JoinArrival) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byJoin, ok := m.arrivals[a.RunID]
	if !ok {
		byJoin = map[string][]*store.JoinArrival{}
		m.arrivals[a.RunID] = byJoin
	}
	for _, existing := range byJoin[a.JoinNodeID] {
		if existing.FromNodeID == a.FromNodeID {
			return nil
		}
	}
	cp := *a
	byJoin[a.JoinNodeID] = append(byJoin[a.JoinNodeID], &cp)
	return nil
}

func (m *memRunStore) ListJoinArrivals(_ context.Context, runID core.ID, joinNodeID string) ([]*store.JoinArrival, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.arrivals[runID][joinNodeID], nil
}

// memLockManager always grants the lease; executor tests run a single
// worker per run, so lease contention is out of scope here (covered by
// engine/scheduler/lease's own tests against the same LockManager
// abstraction).
type memLockManager struct{}

type memLock struct{ resource string }

func (l *memLock) Release(_ context.Context) error { return nil }
func (l *memLock) Refresh(_ context.Context) error { return nil }
func (l *memLock) Resource() string                { return l.resource }
func (l *memLock) IsHeld() bool                    { return true }

func (memLockManager) Acquire(_ context.Context, resource string, _ time.Duration) (cache.Lock, error) {
	return &memLock{resource: resource}, nil
}
