package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// Suggestion is an advisory proposal for the next node to add
type Suggestion struct {
	Kind       NodeKind `json:"kind"`
	Name       string   `json:"name"`
	Reason     string   `json:"reason"`
	Confidence float64  `json:"confidence"`
}

// capabilityRule maps a capability substring to a follow-up node
type capabilityRule struct {
	keywords   []string
	kind       NodeKind
	name       string
	reason     string
	confidence float64
}

var capabilityRules = []capabilityRule{
	{[]string{"research", "search"}, KindTool, "web_search", "agent researches topics", 0.85},
	{[]string{"data", "analysis", "analytics"}, KindTool, "data_analysis", "agent analyzes data", 0.8},
	{[]string{"support", "customer"}, KindHandoff, "Escalate to Specialist", "support agents escalate unresolved issues", 0.75},
	{[]string{"writing", "content"}, KindGuardrail, "Content Guardrail", "generated content should be checked", 0.8},
	{[]string{"routing", "classification", "triage"}, KindDecision, "Route Request", "classification output drives routing", 0.85},
	{[]string{"planning"}, KindAggregator, "Collect Results", "plans fan out into several steps", 0.6},
}

var kindFollowUps = map[NodeKind][]Suggestion{
	KindTool: {
		{Kind: KindAgent, Name: "Result Processor", Reason: "tool output must be consumed by an agent", Confidence: 0.8},
		{Kind: KindDecision, Name: "Check Result", Reason: "branch on the tool result", Confidence: 0.6},
	},
	KindDecision: {
		{Kind: KindHandoff, Name: "Handoff", Reason: "decisions often escalate", Confidence: 0.7},
		{Kind: KindAgent, Name: "Follow-up Agent", Reason: "handle the chosen branch", Confidence: 0.65},
	},
	KindChatInterface: {
		{Kind: KindGuardrail, Name: "Input Guardrail", Reason: "screen user input before agents see it", Confidence: 0.85},
		{Kind: KindAgent, Name: "Conversation Agent", Reason: "answer the user", Confidence: 0.8},
	},
	KindGuardrail: {
		{Kind: KindAgent, Name: "Agent", Reason: "continue with validated input", Confidence: 0.7},
	},
	KindHuman: {
		{Kind: KindDecision, Name: "Approval Gate", Reason: "act on the human response", Confidence: 0.75},
	},
	KindAggregator: {
		{Kind: KindMonitor, Name: "Run Monitor", Reason: "track the combined result", Confidence: 0.5},
	},
}

// SuggestNextNodes proposes follow-up nodes for node, sorted by descending
// confidence. It only reads its arguments; wctx may be nil.
func SuggestNextNodes(node Node, wctx *WorkflowContext) []Suggestion {
	best := make(map[string]Suggestion)
	add := func(s Suggestion) {
		if !ValidateConnection(node.Kind, s.Kind).Valid {
			return
		}
		key := string(s.Kind) + "/" + s.Name
		if cur, ok := best[key]; !ok || s.Confidence > cur.Confidence {
			best[key] = s
		}
	}

	if cfg, ok := node.Config.(*AgentConfig); ok {
		for _, capability := range cfg.Capabilities {
			lc := strings.ToLower(capability)
			for _, rule := range capabilityRules {
				for _, kw := range rule.keywords {
					if strings.Contains(lc, kw) {
						add(Suggestion{
							Kind:       rule.kind,
							Name:       rule.name,
							Reason:     fmt.Sprintf("%s (capability %q)", rule.reason, capability),
							Confidence: rule.confidence,
						})
						break
					}
				}
			}
		}
		add(Suggestion{Kind: KindMonitor, Name: "Agent Monitor", Reason: "observe agent cost and latency", Confidence: 0.4})
	}

	for _, s := range kindFollowUps[node.Kind] {
		add(s)
	}

	if wctx != nil {
		if len(wctx.ConversationHistory) > 5 {
			add(Suggestion{Kind: KindMemory, Name: "Conversation Memory", Reason: "long conversation history", Confidence: 0.7})
		}
		if data, ok := wctx.CurrentData.(map[string]any); ok {
			if _, hasErr := data["error"]; hasErr {
				add(Suggestion{Kind: KindHuman, Name: "Human Review", Reason: "current data reports an error", Confidence: 0.75})
			}
		}
	}

	out := make([]Suggestion, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ConnectionAdvice is the advisory outcome of AssistConnection
type ConnectionAdvice struct {
	Valid        bool         `json:"valid"`
	Reason       string       `json:"reason,omitempty"`
	Hints        []string     `json:"hints,omitempty"`
	Alternatives []Suggestion `json:"alternatives,omitempty"`
}

// AssistConnection checks a proposed edge and adds hints for the editor.
// The graph is never modified.
func AssistConnection(g *Graph, sourceID, targetID string) ConnectionAdvice {
	src, ok := g.Node(sourceID)
	if !ok {
		return ConnectionAdvice{Reason: fmt.Sprintf("source node %q not found", sourceID)}
	}
	dst, ok := g.Node(targetID)
	if !ok {
		return ConnectionAdvice{Reason: fmt.Sprintf("target node %q not found", targetID)}
	}

	check := ValidateConnection(src.Kind, dst.Kind)
	advice := ConnectionAdvice{Valid: check.Valid, Reason: check.Reason}
	if !check.Valid {
		if src.Kind == KindTool && dst.Kind == KindTool {
			advice.Hints = append(advice.Hints, "insert an agent or decision node between the two tools")
			advice.Alternatives = []Suggestion{
				{Kind: KindAgent, Name: "Result Processor", Reason: "consume the first tool's output", Confidence: 0.8},
				{Kind: KindDecision, Name: "Check Result", Reason: "branch on the first tool's output", Confidence: 0.6},
			}
		}
		return advice
	}

	for _, e := range g.Outgoing(sourceID) {
		if e.Target == targetID {
			return ConnectionAdvice{Reason: "nodes are already connected"}
		}
	}
	if sourceID == targetID {
		advice.Hints = append(advice.Hints, "self-loop: the node will still run only once per execution")
	} else if reachable(g, targetID, sourceID) {
		advice.Hints = append(advice.Hints, "creates a cycle: nodes on it run once per execution")
	}
	if src.Kind == KindDecision {
		advice.Hints = append(advice.Hints, `set the edge condition to "true" or "false" to branch on the decision`)
	}
	if entries := g.EntryNodes(); len(entries) == 1 && entries[0].ID == targetID {
		advice.Hints = append(advice.Hints, "target is the only entry node; the workflow may be left without an entry point")
	}
	return advice
}

// reachable reports whether to can be reached from from along edges
func reachable(g *Graph, from, to string) bool {
	adj := make(map[string][]string)
	for _, e := range g.Edges() {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		for _, next := range adj[cur] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}
