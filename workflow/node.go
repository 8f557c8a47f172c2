package workflow

import (
	"fmt"
	"strings"
)

// NodeKind identifies the type of a workflow node
type NodeKind string

const (
	// KindAgent runs an AI agent
	KindAgent NodeKind = "agent"
	// KindTool invokes a single tool
	KindTool NodeKind = "tool"
	// KindDecision evaluates ordered conditions
	KindDecision NodeKind = "decision"
	// KindHandoff transfers control to another agent
	KindHandoff NodeKind = "handoff"
	// KindHuman waits for a human in the loop
	KindHuman NodeKind = "human"
	// KindMemory reads or writes agent memory
	KindMemory NodeKind = "memory"
	// KindGuardrail applies safety rules
	KindGuardrail NodeKind = "guardrail"
	// KindAggregator merges upstream outputs
	KindAggregator NodeKind = "aggregator"
	// KindMonitor observes the run
	KindMonitor NodeKind = "monitor"
	// KindChatInterface is a conversational entry surface
	KindChatInterface NodeKind = "chat_interface"
)

var allKinds = []NodeKind{
	KindAgent,
	KindTool,
	KindDecision,
	KindHandoff,
	KindHuman,
	KindMemory,
	KindGuardrail,
	KindAggregator,
	KindMonitor,
	KindChatInterface,
}

// Kinds returns every known node kind in declaration order
func Kinds() []NodeKind {
	out := make([]NodeKind, len(allKinds))
	copy(out, allKinds)
	return out
}

// Valid reports whether k is a known node kind
func (k NodeKind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseNodeKind converts a string such as "Tool" or "chat_interface" into a NodeKind
func ParseNodeKind(s string) (NodeKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	switch normalized {
	case "chatinterface", "chat-interface":
		normalized = string(KindChatInterface)
	}
	kind := NodeKind(normalized)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown node kind: %q", s)
	}
	return kind, nil
}

// NodeStatus is the advisory run-time status of a node
type NodeStatus string

const (
	NodeStatusIdle      NodeStatus = "idle"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusError     NodeStatus = "error"
)

// Position is the canvas coordinate of a node. It has no effect on execution.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is a typed unit of work in a workflow graph
type Node struct {
	// ID is generated at creation time and never changes
	ID string `json:"id"`
	// Kind selects the configuration type and execution strategy
	Kind NodeKind `json:"kind"`
	// Name is a human readable label
	Name string `json:"name"`
	// Position is presentation-only
	Position Position `json:"position"`
	// Status is written by the executor only (last writer wins)
	Status NodeStatus `json:"status"`
	// Config carries the kind-specific configuration
	Config NodeConfig `json:"config"`
	// LastExecution is the result of the most recent run that reached this node
	LastExecution *ExecutionResult `json:"last_execution,omitempty"`
}

// clone returns a copy that does not share the result pointer
func (n *Node) clone() Node {
	out := *n
	if n.LastExecution != nil {
		res := n.LastExecution.clone()
		out.LastExecution = &res
	}
	if n.Config != nil {
		out.Config = cloneConfig(n.Config)
	}
	return out
}

// defaultNodeName derives a label from the config when the caller gave none
func defaultNodeName(kind NodeKind, cfg NodeConfig) string {
	switch c := cfg.(type) {
	case *AgentConfig:
		if c.Name != "" {
			return c.Name
		}
	case *ToolConfig:
		if c.ToolName != "" {
			return c.ToolName
		}
	}
	return string(kind)
}
