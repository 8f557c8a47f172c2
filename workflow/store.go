package workflow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store owns the workflows and templates of one orchestrator instance.
// There is no package-level state; independent stores never share graphs.
type Store struct {
	mu        sync.RWMutex
	graphs    map[string]*Graph
	order     []string
	templates map[string]Template
	logger    *zap.Logger
}

// NewStore creates a store preloaded with the built-in templates
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		graphs:    make(map[string]*Graph),
		templates: make(map[string]Template),
		logger:    logger.With(zap.String("component", "workflow_store")),
	}
	for _, t := range BuiltinTemplates() {
		s.templates[t.Name] = t
	}
	return s
}

// CreateWorkflow allocates a new empty graph and returns its id
func (s *Store) CreateWorkflow(name, description string) string {
	g := NewGraph(name, description)
	s.mu.Lock()
	s.graphs[g.ID()] = g
	s.order = append(s.order, g.ID())
	s.mu.Unlock()

	s.logger.Debug("workflow created", zap.String("workflow_id", g.ID()), zap.String("name", name))
	return g.ID()
}

// Workflow returns the live graph with the given id
func (s *Store) Workflow(id string) (*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.graphs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return g, nil
}

// Workflows returns all graphs in creation order
func (s *Store) Workflows() []*Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Graph, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.graphs[id])
	}
	return out
}

// DeleteWorkflow removes a graph
func (s *Store) DeleteWorkflow(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.graphs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	delete(s.graphs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.logger.Debug("workflow deleted", zap.String("workflow_id", id))
	return nil
}

// SaveWorkflow inserts or replaces a graph under its own id
func (s *Store) SaveWorkflow(g *Graph) error {
	if g == nil || g.ID() == "" {
		return fmt.Errorf("workflow must have an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.graphs[g.ID()]; !exists {
		s.order = append(s.order, g.ID())
	}
	s.graphs[g.ID()] = g
	return nil
}

// RegisterTemplate adds or replaces a template
func (s *Store) RegisterTemplate(t Template) error {
	if t.Name == "" || t.Build == nil {
		return fmt.Errorf("template requires a name and a build function")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.Name] = t
	return nil
}

// Templates lists the registered templates sorted by name
func (s *Store) Templates() []TemplateInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TemplateInfo, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// InstantiateTemplate builds a new workflow from the named template and stores it
func (s *Store) InstantiateTemplate(name string) (*Graph, error) {
	s.mu.RLock()
	t, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	g := newGraphWithID(uuid.NewString(), t.Name, t.Description)
	if err := t.Build(g); err != nil {
		return nil, fmt.Errorf("build template %s: %w", name, err)
	}
	if err := s.SaveWorkflow(g); err != nil {
		return nil, err
	}
	s.logger.Info("workflow created from template",
		zap.String("template", name),
		zap.String("workflow_id", g.ID()),
		zap.Int("nodes", g.Len()),
	)
	return g, nil
}
