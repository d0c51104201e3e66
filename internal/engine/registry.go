package engine

import (
	"fmt"
	"sync"

	"github.com/tmattila/stagegate/pkg/api"
)

type templateRegistry struct {
	mu   sync.RWMutex
	byID map[string]map[string]*api.WorkflowTemplate
}

func newTemplateRegistry() *templateRegistry {
	return &templateRegistry{
		byID: make(map[string]map[string]*api.WorkflowTemplate),
	}
}

func (r *templateRegistry) Register(t *api.WorkflowTemplate) error {
	if t.Version == "" {
		t.Version = "v1"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	versions := r.byID[t.ID]
	if versions == nil {
		versions = make(map[string]*api.WorkflowTemplate)
		r.byID[t.ID] = versions
	}

	if _, exists := versions[t.Version]; exists {
		return fmt.Errorf("template %q version %q already registered", t.ID, t.Version)
	}

	versions[t.Version] = t
	return nil
}

func (r *templateRegistry) Get(id, version string) (*api.WorkflowTemplate, error) {
	if version == "" {
		version = "v1"
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.byID[id]
	if versions == nil {
		return nil, fmt.Errorf("%w: %q", api.ErrTemplateNotFound, id)
	}

	t, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q version %q", api.ErrTemplateNotFound, id, version)
	}

	return t, nil
}
