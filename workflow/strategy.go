package workflow

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Strategy performs the work of one node kind. Implementations must not
// mutate the node; they may read wctx and return the node's output.
type Strategy interface {
	Execute(ctx context.Context, node Node, wctx *WorkflowContext) (ExecutionResult, error)
}

// StrategyFunc adapts a function to Strategy
type StrategyFunc func(ctx context.Context, node Node, wctx *WorkflowContext) (ExecutionResult, error)

// Execute implements Strategy
func (f StrategyFunc) Execute(ctx context.Context, node Node, wctx *WorkflowContext) (ExecutionResult, error) {
	return f(ctx, node, wctx)
}

// TokenCounter estimates token usage of a text
type TokenCounter interface {
	CountTokens(text string) int
}

// EstimateCounter approximates one token per four characters
type EstimateCounter struct{}

// CountTokens implements TokenCounter
func (EstimateCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// StrategyTable maps node kinds to strategies. Kinds without an entry use
// the fallback, which passes the current data through.
type StrategyTable struct {
	mu       sync.RWMutex
	entries  map[NodeKind]Strategy
	fallback Strategy
}

// NewStrategyTable creates an empty table with the passthrough fallback
func NewStrategyTable() *StrategyTable {
	return &StrategyTable{
		entries:  make(map[NodeKind]Strategy),
		fallback: PassthroughStrategy(),
	}
}

// DefaultStrategies returns the built-in deterministic strategies for
// agent, tool and decision nodes. A nil counter uses EstimateCounter.
func DefaultStrategies(counter TokenCounter) *StrategyTable {
	if counter == nil {
		counter = EstimateCounter{}
	}
	t := NewStrategyTable()
	t.Register(KindAgent, &AgentStrategy{Counter: counter})
	t.Register(KindTool, &ToolStrategy{})
	t.Register(KindDecision, &DecisionStrategy{})
	return t
}

// Register sets the strategy for kind, replacing any previous entry
func (t *StrategyTable) Register(kind NodeKind, s Strategy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[kind] = s
}

// SetFallback replaces the strategy used for unregistered kinds
func (t *StrategyTable) SetFallback(s Strategy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fallback = s
}

// Lookup returns the strategy for kind
func (t *StrategyTable) Lookup(kind NodeKind) Strategy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.entries[kind]; ok {
		return s
	}
	return t.fallback
}

// PassthroughStrategy returns the current data unchanged at zero cost
func PassthroughStrategy() Strategy {
	return StrategyFunc(func(_ context.Context, _ Node, wctx *WorkflowContext) (ExecutionResult, error) {
		return ExecutionResult{Success: true, Output: wctx.CurrentData}, nil
	})
}

// AgentStrategy produces a deterministic response from the agent identity
// and the current data. ToolsUsed echoes the tool-access policy.
type AgentStrategy struct {
	Counter TokenCounter
}

// Execute implements Strategy
func (s *AgentStrategy) Execute(_ context.Context, node Node, wctx *WorkflowContext) (ExecutionResult, error) {
	cfg, ok := node.Config.(*AgentConfig)
	if !ok {
		return ExecutionResult{}, fmt.Errorf("agent node %s has config of kind %s", node.ID, configKind(node.Config))
	}
	agent := cfg.AgentID
	if agent == "" {
		agent = node.Name
	}
	input := renderData(wctx.CurrentData)
	response := fmt.Sprintf("%s processed: %s", agent, input)

	counter := s.Counter
	if counter == nil {
		counter = EstimateCounter{}
	}
	tokens := counter.CountTokens(cfg.SystemPrompt) + counter.CountTokens(input) + counter.CountTokens(response)
	if cfg.MaxTokens > 0 && tokens > cfg.MaxTokens {
		tokens = cfg.MaxTokens
	}

	var tools []string
	if cfg.ToolAccess.Selection != ToolSelectionNone {
		tools = append(tools, cfg.ToolAccess.AllowedTools...)
	}

	wctx.Append(Message{Role: "assistant", NodeID: node.ID, Content: response})
	return ExecutionResult{
		Success: true,
		Output: map[string]any{
			"agent":    agent,
			"response": response,
			"input":    wctx.CurrentData,
		},
		TokensUsed: tokens,
		ToolsUsed:  tools,
		Metadata: map[string]any{
			"model":     cfg.Model,
			"reasoning": string(cfg.Reasoning),
		},
	}, nil
}

// ToolStrategy produces a deterministic tool result. It never consumes tokens.
type ToolStrategy struct{}

// Execute implements Strategy
func (s *ToolStrategy) Execute(_ context.Context, node Node, wctx *WorkflowContext) (ExecutionResult, error) {
	cfg, ok := node.Config.(*ToolConfig)
	if !ok {
		return ExecutionResult{}, fmt.Errorf("tool node %s has config of kind %s", node.ID, configKind(node.Config))
	}
	name := cfg.ToolName
	if name == "" {
		name = node.Name
	}
	return ExecutionResult{
		Success: true,
		Output: map[string]any{
			"tool":   name,
			"result": fmt.Sprintf("%s result for: %s", name, renderData(wctx.CurrentData)),
			"input":  wctx.CurrentData,
		},
		ToolsUsed: []string{name},
	}, nil
}

// DecisionStrategy evaluates the ordered conditions against the current data.
// The first matching condition wins; without a match the default outcome is
// reported with the configured threshold as confidence.
type DecisionStrategy struct{}

// Execute implements Strategy
func (s *DecisionStrategy) Execute(_ context.Context, node Node, wctx *WorkflowContext) (ExecutionResult, error) {
	cfg, ok := node.Config.(*DecisionConfig)
	if !ok {
		return ExecutionResult{}, fmt.Errorf("decision node %s has config of kind %s", node.ID, configKind(node.Config))
	}

	decision := cfg.DefaultOutcome
	confidence := cfg.ConfidenceThreshold
	matched := ""
	for i, cond := range cfg.Conditions {
		if !evaluateCondition(cond, wctx.CurrentData) {
			continue
		}
		c := cond.Confidence
		if c == 0 {
			c = 0.9
		}
		if c < cfg.ConfidenceThreshold {
			continue
		}
		decision = true
		confidence = c
		matched = cond.Label
		if matched == "" {
			matched = fmt.Sprintf("condition_%d", i)
		}
		break
	}

	return ExecutionResult{
		Success: true,
		Output: map[string]any{
			"decision":   decision,
			"confidence": confidence,
			"matched":    matched,
		},
		Confidence: &confidence,
	}, nil
}

func configKind(cfg NodeConfig) string {
	if cfg == nil {
		return "<nil>"
	}
	return string(cfg.Kind())
}

// renderData returns a stable textual form of a payload
func renderData(data any) string {
	switch v := data.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, renderData(v[k])))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(v)
	}
}

// lookupField resolves a dotted path in nested maps
func lookupField(data any, path string) (any, bool) {
	if path == "" {
		return data, data != nil
	}
	cur := data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func evaluateCondition(cond DecisionCondition, data any) bool {
	val, ok := lookupField(data, cond.Field)
	switch cond.Operator {
	case OpExists:
		return ok
	case OpEquals:
		return ok && valuesEqual(val, cond.Value)
	case OpNotEquals:
		return !ok || !valuesEqual(val, cond.Value)
	case OpContains:
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(renderData(val)), strings.ToLower(renderData(cond.Value)))
	case OpGreater, OpLess:
		if !ok {
			return false
		}
		a, okA := toFloat(val)
		b, okB := toFloat(cond.Value)
		if !okA || !okB {
			return false
		}
		if cond.Operator == OpGreater {
			return a > b
		}
		return a < b
	default:
		return false
	}
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
