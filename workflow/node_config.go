package workflow

import (
	"encoding/json"
	"fmt"
)

// NodeConfig is the kind-specific configuration of a node.
// Exactly one concrete type exists per NodeKind; only pointer types implement it.
type NodeConfig interface {
	Kind() NodeKind
}

// ReasoningPattern controls how an agent plans its work
type ReasoningPattern string

const (
	ReasoningSequential     ReasoningPattern = "sequential"
	ReasoningParallel       ReasoningPattern = "parallel"
	ReasoningReAct          ReasoningPattern = "react"
	ReasoningChainOfThought ReasoningPattern = "chain_of_thought"
)

// ContextCompression controls how an agent shrinks long histories
type ContextCompression string

const (
	CompressionNone     ContextCompression = "none"
	CompressionSummary  ContextCompression = "summary"
	CompressionTruncate ContextCompression = "truncate"
)

// ToolSelection controls how an agent chooses tools
type ToolSelection string

const (
	ToolSelectionAuto   ToolSelection = "auto"
	ToolSelectionManual ToolSelection = "manual"
	ToolSelectionNone   ToolSelection = "none"
)

// FallbackAction is what a tool node does once its retries are exhausted
type FallbackAction string

const (
	// FallbackError fails the node (hard error)
	FallbackError FallbackAction = "error"
	// FallbackSkip passes the current data through and marks the result as skipped
	FallbackSkip FallbackAction = "skip"
)

// ToolAccessPolicy lists the tools an agent may use
type ToolAccessPolicy struct {
	Selection    ToolSelection `json:"selection" yaml:"selection"`
	AllowedTools []string      `json:"allowed_tools,omitempty" yaml:"allowed_tools,omitempty"`
}

// AgentConfig configures an agent node
type AgentConfig struct {
	AgentID            string             `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	Name               string             `json:"name,omitempty" yaml:"name,omitempty"`
	Model              string             `json:"model,omitempty" yaml:"model,omitempty"`
	SystemPrompt       string             `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Capabilities       []string           `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Reasoning          ReasoningPattern   `json:"reasoning" yaml:"reasoning"`
	ContextCompression ContextCompression `json:"context_compression" yaml:"context_compression"`
	ToolAccess         ToolAccessPolicy   `json:"tool_access" yaml:"tool_access"`
	MaxTokens          int                `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature        float64            `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

func (*AgentConfig) Kind() NodeKind { return KindAgent }

// ToolConnection describes how a tool backend is reached
type ToolConnection struct {
	Endpoint  string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Method    string            `json:"method,omitempty" yaml:"method,omitempty"`
	TimeoutMs int               `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// ToolErrorHandling is the per-tool retry policy
type ToolErrorHandling struct {
	RetryCount     int            `json:"retry_count" yaml:"retry_count"`
	RetryDelayMs   int            `json:"retry_delay_ms,omitempty" yaml:"retry_delay_ms,omitempty"`
	FallbackAction FallbackAction `json:"fallback_action" yaml:"fallback_action"`
}

// ToolConfig configures a tool node
type ToolConfig struct {
	ToolName      string            `json:"tool_name,omitempty" yaml:"tool_name,omitempty"`
	Description   string            `json:"description,omitempty" yaml:"description,omitempty"`
	Connection    ToolConnection    `json:"connection" yaml:"connection"`
	ErrorHandling ToolErrorHandling `json:"error_handling" yaml:"error_handling"`
}

func (*ToolConfig) Kind() NodeKind { return KindTool }

// ConditionOperator compares a field of the current data with a value
type ConditionOperator string

const (
	OpEquals    ConditionOperator = "equals"
	OpNotEquals ConditionOperator = "not_equals"
	OpContains  ConditionOperator = "contains"
	OpExists    ConditionOperator = "exists"
	OpGreater   ConditionOperator = "gt"
	OpLess      ConditionOperator = "lt"
)

// DecisionCondition is one ordered rule of a decision node
type DecisionCondition struct {
	Label      string            `json:"label,omitempty" yaml:"label,omitempty"`
	Field      string            `json:"field" yaml:"field"`
	Operator   ConditionOperator `json:"operator" yaml:"operator"`
	Value      any               `json:"value,omitempty" yaml:"value,omitempty"`
	Confidence float64           `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// DecisionConfig configures a decision node
type DecisionConfig struct {
	Conditions          []DecisionCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	ConfidenceThreshold float64             `json:"confidence_threshold" yaml:"confidence_threshold"`
	DefaultOutcome      bool                `json:"default_outcome" yaml:"default_outcome"`
}

func (*DecisionConfig) Kind() NodeKind { return KindDecision }

// HandoffConfig configures a handoff node
type HandoffConfig struct {
	TargetAgent     string `json:"target_agent,omitempty" yaml:"target_agent,omitempty"`
	Reason          string `json:"reason,omitempty" yaml:"reason,omitempty"`
	PreserveContext bool   `json:"preserve_context" yaml:"preserve_context"`
}

func (*HandoffConfig) Kind() NodeKind { return KindHandoff }

// HumanConfig configures a human-in-the-loop node
type HumanConfig struct {
	Assignee  string `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Prompt    string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

func (*HumanConfig) Kind() NodeKind { return KindHuman }

// MemoryConfig configures a memory node
type MemoryConfig struct {
	Scope      string `json:"scope" yaml:"scope"`
	Namespace  string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	MaxEntries int    `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
}

func (*MemoryConfig) Kind() NodeKind { return KindMemory }

// GuardrailConfig configures a guardrail node
type GuardrailConfig struct {
	Rules        []string `json:"rules,omitempty" yaml:"rules,omitempty"`
	BlockedTerms []string `json:"blocked_terms,omitempty" yaml:"blocked_terms,omitempty"`
	Action       string   `json:"action" yaml:"action"`
}

func (*GuardrailConfig) Kind() NodeKind { return KindGuardrail }

// AggregatorConfig configures an aggregator node
type AggregatorConfig struct {
	Strategy string `json:"strategy" yaml:"strategy"`
}

func (*AggregatorConfig) Kind() NodeKind { return KindAggregator }

// MonitorConfig configures a monitor node
type MonitorConfig struct {
	Metrics        []string `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	AlertThreshold float64  `json:"alert_threshold,omitempty" yaml:"alert_threshold,omitempty"`
}

func (*MonitorConfig) Kind() NodeKind { return KindMonitor }

// ChatInterfaceConfig configures a chat interface node
type ChatInterfaceConfig struct {
	Channel  string `json:"channel" yaml:"channel"`
	Greeting string `json:"greeting,omitempty" yaml:"greeting,omitempty"`
}

func (*ChatInterfaceConfig) Kind() NodeKind { return KindChatInterface }

// DefaultConfig returns the default configuration for a node kind
func DefaultConfig(kind NodeKind) (NodeConfig, error) {
	var cfg NodeConfig
	switch kind {
	case KindAgent:
		cfg = &AgentConfig{}
	case KindTool:
		cfg = &ToolConfig{}
	case KindDecision:
		cfg = &DecisionConfig{}
	case KindHandoff:
		cfg = &HandoffConfig{}
	case KindHuman:
		cfg = &HumanConfig{}
	case KindMemory:
		cfg = &MemoryConfig{}
	case KindGuardrail:
		cfg = &GuardrailConfig{}
	case KindAggregator:
		cfg = &AggregatorConfig{}
	case KindMonitor:
		cfg = &MonitorConfig{}
	case KindChatInterface:
		cfg = &ChatInterfaceConfig{}
	default:
		return nil, fmt.Errorf("unknown node kind: %q", kind)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills zero-valued fields with the kind defaults
func applyDefaults(cfg NodeConfig) {
	switch c := cfg.(type) {
	case *AgentConfig:
		if c.Reasoning == "" {
			c.Reasoning = ReasoningSequential
		}
		if c.ContextCompression == "" {
			c.ContextCompression = CompressionSummary
		}
		if c.ToolAccess.Selection == "" {
			c.ToolAccess.Selection = ToolSelectionAuto
		}
	case *ToolConfig:
		// A zero policy means "not configured"; an explicit fallback keeps RetryCount as given.
		if c.ErrorHandling.FallbackAction == "" {
			if c.ErrorHandling.RetryCount == 0 {
				c.ErrorHandling.RetryCount = 3
			}
			c.ErrorHandling.FallbackAction = FallbackError
		}
		if c.Connection.Method == "" {
			c.Connection.Method = "POST"
		}
	case *DecisionConfig:
		if c.ConfidenceThreshold == 0 {
			c.ConfidenceThreshold = 0.7
		}
	case *HandoffConfig:
	case *HumanConfig:
	case *MemoryConfig:
		if c.Scope == "" {
			c.Scope = "session"
		}
	case *GuardrailConfig:
		if c.Action == "" {
			c.Action = "block"
		}
	case *AggregatorConfig:
		if c.Strategy == "" {
			c.Strategy = "merge"
		}
	case *MonitorConfig:
	case *ChatInterfaceConfig:
		if c.Channel == "" {
			c.Channel = "web"
		}
	}
}

// cloneConfig copies a config through its JSON form so slices and maps are not shared
func cloneConfig(cfg NodeConfig) NodeConfig {
	m, err := configToMap(cfg)
	if err != nil {
		return cfg
	}
	out, err := configFromMap(cfg.Kind(), m)
	if err != nil {
		return cfg
	}
	return out
}

// configToMap flattens a config into a generic map for definitions and API payloads
func configToMap(cfg NodeConfig) (map[string]any, error) {
	if cfg == nil {
		return nil, nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s config: %w", cfg.Kind(), err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal %s config: %w", cfg.Kind(), err)
	}
	return m, nil
}

// configFromMap decodes a generic map on top of the kind defaults
func configFromMap(kind NodeKind, m map[string]any) (NodeConfig, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown node kind: %q", kind)
	}
	// Start from the zero struct so an explicit policy in m is not merged with defaults.
	var cfg NodeConfig
	switch kind {
	case KindAgent:
		cfg = &AgentConfig{}
	case KindTool:
		cfg = &ToolConfig{}
	case KindDecision:
		cfg = &DecisionConfig{}
	case KindHandoff:
		cfg = &HandoffConfig{}
	case KindHuman:
		cfg = &HumanConfig{}
	case KindMemory:
		cfg = &MemoryConfig{}
	case KindGuardrail:
		cfg = &GuardrailConfig{}
	case KindAggregator:
		cfg = &AggregatorConfig{}
	case KindMonitor:
		cfg = &MonitorConfig{}
	case KindChatInterface:
		cfg = &ChatInterfaceConfig{}
	}
	if len(m) > 0 {
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("marshal %s config: %w", kind, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s config: %w", kind, err)
		}
	}
	applyDefaults(cfg)
	return cfg, nil
}

// ConfigFromMap builds a typed config for kind from a loosely typed map
// (JSON request bodies, YAML definitions). Missing fields take the kind defaults.
func ConfigFromMap(kind NodeKind, m map[string]any) (NodeConfig, error) {
	return configFromMap(kind, m)
}

// ConfigToMap is the inverse of ConfigFromMap
func ConfigToMap(cfg NodeConfig) (map[string]any, error) {
	return configToMap(cfg)
}
