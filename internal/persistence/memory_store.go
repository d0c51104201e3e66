package persistence

import (
	"context"
	"sync"

	"github.com/tmattila/stagegate/pkg/api"
)

// InMemoryStore is a goroutine-safe implementation of InstanceStore and
// EventStore backed by maps. It is non-durable and intended for tests and
// development.
type InMemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*api.WorkflowInstance
	events    map[string][]api.WorkflowEvent
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		instances: make(map[string]*api.WorkflowInstance),
		events:    make(map[string][]api.WorkflowEvent),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ InstanceStore = (*InMemoryStore)(nil)

var _ EventStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) CreateInstance(ctx context.Context, inst *api.WorkflowInstance, created api.WorkflowEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ProjectID]; ok {
		return api.ErrDuplicateInstance
	}

	created.ID = 1
	s.instances[inst.ProjectID] = inst.Clone()
	s.events[inst.ProjectID] = []api.WorkflowEvent{created}
	return nil
}

func (s *InMemoryStore) GetInstance(ctx context.Context, projectID string) (*api.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[projectID]
	if !ok {
		return nil, api.ErrInstanceNotFound
	}

	return inst.Clone(), nil
}

func (s *InMemoryStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]*api.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.WorkflowInstance

	for _, inst := range s.instances {
		if matchesFilter(inst, filter) {
			result = append(result, inst.Clone())
		}
	}

	return result, nil
}

func (s *InMemoryStore) CompareAndSwap(ctx context.Context, projectID string, expectedVersion int64, mutate Mutator) (*api.WorkflowInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.instances[projectID]
	if !ok {
		return nil, api.ErrInstanceNotFound
	}
	if current.Version != expectedVersion {
		return nil, api.ErrVersionConflict
	}

	next := current.Clone()
	ev, err := mutate(next)
	if err != nil {
		return nil, err
	}

	next.Version = expectedVersion + 1
	ev.ID = int64(len(s.events[projectID])) + 1

	s.instances[projectID] = next
	s.events[projectID] = append(s.events[projectID], *ev)

	return next.Clone(), nil
}

func (s *InMemoryStore) ListEvents(ctx context.Context, projectID string, sinceID int64) ([]api.WorkflowEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.events[projectID]
	var out []api.WorkflowEvent
	for _, ev := range all {
		if ev.ID > sinceID {
			out = append(out, ev)
		}
	}
	return out, nil
}
