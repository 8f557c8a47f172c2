package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Definition is the portable JSON/YAML form of a workflow graph
type Definition struct {
	ID          string           `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []NodeDefinition `json:"nodes" yaml:"nodes"`
	Edges       []EdgeDefinition `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// NodeDefinition describes one node. Config holds the kind-specific fields.
type NodeDefinition struct {
	ID       string         `json:"id" yaml:"id"`
	Kind     string         `json:"kind" yaml:"kind"`
	Name     string         `json:"name,omitempty" yaml:"name,omitempty"`
	Position Position       `json:"position" yaml:"position"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// EdgeDefinition describes one edge
type EdgeDefinition struct {
	ID        string         `json:"id,omitempty" yaml:"id,omitempty"`
	Source    string         `json:"source" yaml:"source"`
	Target    string         `json:"target" yaml:"target"`
	Label     string         `json:"label,omitempty" yaml:"label,omitempty"`
	Condition string         `json:"condition,omitempty" yaml:"condition,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ExportDefinition converts a graph into its portable form
func ExportDefinition(g *Graph) (*Definition, error) {
	snap := g.Snapshot()
	def := &Definition{
		ID:          snap.ID,
		Name:        snap.Name,
		Description: snap.Description,
		Nodes:       make([]NodeDefinition, 0, len(snap.Nodes)),
		Edges:       make([]EdgeDefinition, 0, len(snap.Edges)),
	}
	for _, n := range snap.Nodes {
		cfg, err := configToMap(n.Config)
		if err != nil {
			return nil, fmt.Errorf("export node %s: %w", n.ID, err)
		}
		def.Nodes = append(def.Nodes, NodeDefinition{
			ID:       n.ID,
			Kind:     string(n.Kind),
			Name:     n.Name,
			Position: n.Position,
			Config:   cfg,
		})
	}
	for _, e := range snap.Edges {
		def.Edges = append(def.Edges, EdgeDefinition{
			ID:        e.ID,
			Source:    e.Source,
			Target:    e.Target,
			Label:     e.Label,
			Condition: e.Condition,
			Metadata:  e.Metadata,
		})
	}
	return def, nil
}

// Validate checks names, kinds, ids and edge endpoints without building a graph
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(d.Nodes) == 0 {
		return fmt.Errorf("workflow must have at least one node")
	}

	kinds := make(map[string]NodeKind, len(d.Nodes))
	for i, n := range d.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node %d: id is required", i)
		}
		if _, dup := kinds[n.ID]; dup {
			return fmt.Errorf("node %s: %w", n.ID, ErrDuplicateNode)
		}
		kind, err := ParseNodeKind(n.Kind)
		if err != nil {
			return fmt.Errorf("node %s: %w", n.ID, err)
		}
		kinds[n.ID] = kind
	}

	for i, e := range d.Edges {
		src, ok := kinds[e.Source]
		if !ok {
			return &StructuralError{WorkflowID: d.ID, NodeID: e.Source, Reason: reasonNodeMissing}
		}
		dst, ok := kinds[e.Target]
		if !ok {
			return &StructuralError{WorkflowID: d.ID, NodeID: e.Target, Reason: reasonNodeMissing}
		}
		if check := ValidateConnection(src, dst); !check.Valid {
			return fmt.Errorf("edge %d (%s -> %s): %w", i, e.Source, e.Target,
				&ValidationError{SourceKind: src, TargetKind: dst, Reason: check.Reason})
		}
	}
	return nil
}

// BuildGraph validates the definition and materializes it as a graph.
// A definition without an id gets a fresh one.
func (d *Definition) BuildGraph() (*Graph, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	g := newGraphWithID(id, d.Name, d.Description)

	for _, n := range d.Nodes {
		kind, _ := ParseNodeKind(n.Kind)
		cfg, err := configFromMap(kind, n.Config)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		if _, err := g.AddNode(kind, cfg, n.Position, WithNodeID(n.ID), WithNodeName(n.Name)); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
	}
	for _, e := range d.Edges {
		opts := []EdgeOption{WithEdgeID(e.ID), WithLabel(e.Label), WithCondition(e.Condition)}
		for k, v := range e.Metadata {
			opts = append(opts, WithEdgeMetadata(k, v))
		}
		if _, err := g.Connect(e.Source, e.Target, opts...); err != nil {
			return nil, fmt.Errorf("edge %s -> %s: %w", e.Source, e.Target, err)
		}
	}
	return g, nil
}

// ToJSON renders the definition as indented JSON
func (d *Definition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML renders the definition as YAML
func (d *Definition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// DefinitionFromJSON parses and validates a JSON definition
func DefinitionFromJSON(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from JSON: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &def, nil
}

// DefinitionFromYAML parses and validates a YAML definition
func DefinitionFromYAML(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from YAML: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &def, nil
}

// LoadDefinitionFile reads a definition, choosing the format by extension
// (.json, otherwise YAML).
func LoadDefinitionFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return DefinitionFromJSON(data)
	}
	return DefinitionFromYAML(data)
}

// SaveToFile writes the definition, choosing the format by extension
func (d *Definition) SaveToFile(path string) error {
	var (
		out string
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		out, err = d.ToJSON()
	} else {
		out, err = d.ToYAML()
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
