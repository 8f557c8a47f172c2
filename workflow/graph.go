package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Edge is a directed link declaring that the source output feeds the target.
// Label and Metadata are descriptive. Condition is only evaluated on edges
// leaving a decision node when decision branching is enabled.
type Edge struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Target    string         `json:"target"`
	Label     string         `json:"label,omitempty"`
	Condition string         `json:"condition,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (e *Edge) clone() Edge {
	out := *e
	if e.Metadata != nil {
		out.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// EdgeOption customizes an edge created by Connect
type EdgeOption func(*Edge)

// WithEdgeID sets an explicit edge id (used when importing definitions)
func WithEdgeID(id string) EdgeOption {
	return func(e *Edge) {
		if id != "" {
			e.ID = id
		}
	}
}

// WithLabel sets the edge label
func WithLabel(label string) EdgeOption {
	return func(e *Edge) { e.Label = label }
}

// WithCondition sets the edge condition ("true" / "false" after a decision node)
func WithCondition(cond string) EdgeOption {
	return func(e *Edge) { e.Condition = cond }
}

// WithEdgeMetadata attaches an arbitrary metadata entry
func WithEdgeMetadata(key string, value any) EdgeOption {
	return func(e *Edge) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

// NodeOption customizes a node created by AddNode
type NodeOption func(*Node)

// WithNodeID sets an explicit node id instead of a generated one
func WithNodeID(id string) NodeOption {
	return func(n *Node) {
		if id != "" {
			n.ID = id
		}
	}
}

// WithNodeName sets the node label
func WithNodeName(name string) NodeOption {
	return func(n *Node) {
		if name != "" {
			n.Name = name
		}
	}
}

// ConnectionCheck is the outcome of a compatibility check
type ConnectionCheck struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

const reasonToolToTool = "cannot connect tool to tool: tool output must be consumed by an agent or decision node"

// ValidateConnection is the authoritative compatibility rule between node kinds.
// Tool -> Tool is always rejected; every other pair of known kinds is accepted.
func ValidateConnection(source, target NodeKind) ConnectionCheck {
	if !source.Valid() {
		return ConnectionCheck{Reason: fmt.Sprintf("unknown source kind %q", source)}
	}
	if !target.Valid() {
		return ConnectionCheck{Reason: fmt.Sprintf("unknown target kind %q", target)}
	}
	if source == KindTool && target == KindTool {
		return ConnectionCheck{Reason: reasonToolToTool}
	}
	return ConnectionCheck{Valid: true}
}

// Graph is the authoritative node and edge set of one workflow.
// It is safe for concurrent use; accessors return copies.
type Graph struct {
	id string

	mu          sync.RWMutex
	name        string
	description string
	createdAt   time.Time
	updatedAt   time.Time
	nodes       map[string]*Node
	order       []string
	edges       []*Edge
}

// NewGraph creates an empty graph with a fresh id
func NewGraph(name, description string) *Graph {
	return newGraphWithID(uuid.NewString(), name, description)
}

func newGraphWithID(id, name, description string) *Graph {
	now := time.Now()
	return &Graph{
		id:          id,
		name:        name,
		description: description,
		createdAt:   now,
		updatedAt:   now,
		nodes:       make(map[string]*Node),
	}
}

// ID returns the workflow id
func (g *Graph) ID() string { return g.id }

// Name returns the workflow name
func (g *Graph) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.name
}

// Description returns the workflow description
func (g *Graph) Description() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.description
}

// CreatedAt returns the creation time
func (g *Graph) CreatedAt() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.createdAt
}

// UpdatedAt returns the time of the last edit
func (g *Graph) UpdatedAt() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.updatedAt
}

// Rename changes the workflow name and description
func (g *Graph) Rename(name, description string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.name = name
	g.description = description
	g.touch()
}

func (g *Graph) touch() { g.updatedAt = time.Now() }

// AddNode builds a node of the given kind with default configuration.
// A non-nil cfg is overlaid on the defaults and must match kind.
func (g *Graph) AddNode(kind NodeKind, cfg NodeConfig, pos Position, opts ...NodeOption) (Node, error) {
	if !kind.Valid() {
		return Node{}, &ValidationError{Reason: fmt.Sprintf("unknown node kind %q", kind)}
	}
	resolved, err := resolveConfig(kind, cfg)
	if err != nil {
		return Node{}, err
	}

	node := &Node{
		ID:       uuid.NewString(),
		Kind:     kind,
		Name:     defaultNodeName(kind, resolved),
		Position: pos,
		Status:   NodeStatusIdle,
		Config:   resolved,
	}
	for _, opt := range opts {
		opt(node)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[node.ID]; exists {
		return Node{}, fmt.Errorf("%w: %s", ErrDuplicateNode, node.ID)
	}
	g.nodes[node.ID] = node
	g.order = append(g.order, node.ID)
	g.touch()
	return node.clone(), nil
}

// resolveConfig returns a private copy of cfg with defaults applied
func resolveConfig(kind NodeKind, cfg NodeConfig) (NodeConfig, error) {
	if cfg == nil {
		return DefaultConfig(kind)
	}
	if cfg.Kind() != kind {
		return nil, &ValidationError{
			SourceKind: kind,
			Reason:     fmt.Sprintf("config of kind %q does not match node kind %q", cfg.Kind(), kind),
		}
	}
	out := cloneConfig(cfg)
	applyDefaults(out)
	return out, nil
}

// Connect adds an edge from sourceID to targetID. Missing nodes yield a
// *StructuralError and incompatible kinds a *ValidationError; on error the
// edge set is unchanged.
func (g *Graph) Connect(sourceID, targetID string, opts ...EdgeOption) (Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	src, ok := g.nodes[sourceID]
	if !ok {
		return Edge{}, &StructuralError{WorkflowID: g.id, NodeID: sourceID, Reason: reasonNodeMissing}
	}
	dst, ok := g.nodes[targetID]
	if !ok {
		return Edge{}, &StructuralError{WorkflowID: g.id, NodeID: targetID, Reason: reasonNodeMissing}
	}
	if check := ValidateConnection(src.Kind, dst.Kind); !check.Valid {
		return Edge{}, &ValidationError{SourceKind: src.Kind, TargetKind: dst.Kind, Reason: check.Reason}
	}
	for _, e := range g.edges {
		if e.Source == sourceID && e.Target == targetID {
			return Edge{}, &ValidationError{
				SourceKind: src.Kind,
				TargetKind: dst.Kind,
				Reason:     fmt.Sprintf("edge %s -> %s already exists", sourceID, targetID),
			}
		}
	}

	edge := &Edge{ID: uuid.NewString(), Source: sourceID, Target: targetID}
	for _, opt := range opts {
		opt(edge)
	}
	for _, e := range g.edges {
		if e.ID == edge.ID {
			return Edge{}, &ValidationError{Reason: fmt.Sprintf("duplicate edge id %q", edge.ID)}
		}
	}
	g.edges = append(g.edges, edge)
	g.touch()
	return edge.clone(), nil
}

// Disconnect removes an edge by id
func (g *Graph) Disconnect(edgeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, e := range g.edges {
		if e.ID == edgeID {
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			g.touch()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrEdgeNotFound, edgeID)
}

// UpdateNodeConfig replaces the configuration of a node; the kind cannot change
func (g *Graph) UpdateNodeConfig(nodeID string, cfg NodeConfig) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	resolved, err := resolveConfig(node.Kind, cfg)
	if err != nil {
		return err
	}
	node.Config = resolved
	g.touch()
	return nil
}

// RenameNode changes the node label
func (g *Graph) RenameNode(nodeID, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	node.Name = name
	g.touch()
	return nil
}

// MoveNode updates the canvas position of a node
func (g *Graph) MoveNode(nodeID string, pos Position) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	node.Position = pos
	g.touch()
	return nil
}

// RemoveNode deletes a node together with every incident edge
func (g *Graph) RemoveNode(nodeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[nodeID]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	delete(g.nodes, nodeID)
	for i, id := range g.order {
		if id == nodeID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.Source != nodeID && e.Target != nodeID {
			kept = append(kept, e)
		}
	}
	g.edges = kept
	g.touch()
	return nil
}

// Node returns a copy of the node with the given id
func (g *Graph) Node(nodeID string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[nodeID]
	if !ok {
		return Node{}, false
	}
	return node.clone(), true
}

// Nodes returns copies of all nodes in insertion order
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id].clone())
	}
	return out
}

// Edges returns copies of all edges in insertion order
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e.clone())
	}
	return out
}

// Outgoing returns the edges leaving nodeID in insertion order
func (g *Graph) Outgoing(nodeID string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for _, e := range g.edges {
		if e.Source == nodeID {
			out = append(out, e.clone())
		}
	}
	return out
}

// EntryNodes returns nodes with no incoming edge, in insertion order
func (g *Graph) EntryNodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	incoming := make(map[string]bool, len(g.edges))
	for _, e := range g.edges {
		incoming[e.Target] = true
	}
	var out []Node
	for _, id := range g.order {
		if !incoming[id] {
			out = append(out, g.nodes[id].clone())
		}
	}
	return out
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Clone returns a deep copy of the graph with the same ids
func (g *Graph) Clone() *Graph {
	return g.cloneAs(g.id)
}

func (g *Graph) cloneAs(id string) *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := &Graph{
		id:          id,
		name:        g.name,
		description: g.description,
		createdAt:   g.createdAt,
		updatedAt:   g.updatedAt,
		nodes:       make(map[string]*Node, len(g.nodes)),
		order:       append([]string(nil), g.order...),
		edges:       make([]*Edge, 0, len(g.edges)),
	}
	for id, n := range g.nodes {
		c := n.clone()
		out.nodes[id] = &c
	}
	for _, e := range g.edges {
		c := e.clone()
		out.edges = append(out.edges, &c)
	}
	return out
}

// GraphSnapshot is a point-in-time, serializable view of a graph
type GraphSnapshot struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
}

// Snapshot returns a consistent copy of the graph state
func (g *Graph) Snapshot() GraphSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	snap := GraphSnapshot{
		ID:          g.id,
		Name:        g.name,
		Description: g.description,
		CreatedAt:   g.createdAt,
		UpdatedAt:   g.updatedAt,
		Nodes:       make([]Node, 0, len(g.order)),
		Edges:       make([]Edge, 0, len(g.edges)),
	}
	for _, id := range g.order {
		snap.Nodes = append(snap.Nodes, g.nodes[id].clone())
	}
	for _, e := range g.edges {
		snap.Edges = append(snap.Edges, e.clone())
	}
	return snap
}

// plan is the immutable view of a graph the executor traverses
type plan struct {
	workflowID string
	entries    []string
	nodes      map[string]Node
	outgoing   map[string][]Edge
}

func (g *Graph) plan() plan {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p := plan{
		workflowID: g.id,
		nodes:      make(map[string]Node, len(g.nodes)),
		outgoing:   make(map[string][]Edge),
	}
	incoming := make(map[string]bool, len(g.edges))
	for _, e := range g.edges {
		incoming[e.Target] = true
		p.outgoing[e.Source] = append(p.outgoing[e.Source], e.clone())
	}
	for _, id := range g.order {
		p.nodes[id] = g.nodes[id].clone()
		if !incoming[id] {
			p.entries = append(p.entries, id)
		}
	}
	return p
}

// markNode writes the advisory status of a node. Nodes removed mid-run are ignored.
func (g *Graph) markNode(nodeID string, status NodeStatus, result *ExecutionResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[nodeID]
	if !ok {
		return
	}
	node.Status = status
	if result != nil {
		res := result.clone()
		node.LastExecution = &res
	}
}
