package workflow

import "fmt"

// Template is a named recipe that populates an empty graph
type Template struct {
	Name        string
	Description string
	Category    string
	Build       func(g *Graph) error
}

// TemplateInfo is the serializable description of a template
type TemplateInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Info returns the serializable description
func (t Template) Info() TemplateInfo {
	return TemplateInfo{Name: t.Name, Description: t.Description, Category: t.Category}
}

// BuiltinTemplates returns the templates every store starts with
func BuiltinTemplates() []Template {
	return []Template{
		{
			Name:        "customer-support",
			Description: "Triage incoming chats, answer from the knowledge base and escalate urgent tickets",
			Category:    "support",
			Build:       buildCustomerSupport,
		},
		{
			Name:        "research-pipeline",
			Description: "Plan, search, analyze and summarize a research question",
			Category:    "research",
			Build:       buildResearchPipeline,
		},
		{
			Name:        "content-review",
			Description: "Draft content, check it against guardrails and route it through human approval",
			Category:    "content",
			Build:       buildContentReview,
		},
	}
}

// templateBuilder accumulates the first error so recipes read linearly
type templateBuilder struct {
	g   *Graph
	err error
	x   float64
}

func (b *templateBuilder) node(id, name string, cfg NodeConfig) {
	if b.err != nil {
		return
	}
	_, b.err = b.g.AddNode(cfg.Kind(), cfg, Position{X: b.x, Y: 100}, WithNodeID(id), WithNodeName(name))
	b.x += 250
}

func (b *templateBuilder) edge(src, dst string, opts ...EdgeOption) {
	if b.err != nil {
		return
	}
	if _, err := b.g.Connect(src, dst, opts...); err != nil {
		b.err = fmt.Errorf("connect %s -> %s: %w", src, dst, err)
	}
}

func buildCustomerSupport(g *Graph) error {
	b := &templateBuilder{g: g}
	b.node("chat", "Customer Chat", &ChatInterfaceConfig{Channel: "web", Greeting: "Hi! How can we help?"})
	b.node("input-guard", "Input Guardrail", &GuardrailConfig{Rules: []string{"pii_redaction"}, BlockedTerms: []string{"password"}})
	b.node("triage", "Triage Agent", &AgentConfig{
		AgentID:      "triage-agent",
		Name:         "Triage Agent",
		Capabilities: []string{"classification", "routing"},
		SystemPrompt: "Classify the request and set its priority.",
	})
	b.node("escalate", "Needs Escalation", &DecisionConfig{
		Conditions: []DecisionCondition{
			{Label: "high_priority", Field: "priority", Operator: OpEquals, Value: "high", Confidence: 0.95},
		},
	})
	b.node("handoff", "Escalate to Specialist", &HandoffConfig{TargetAgent: "specialist-agent", Reason: "high priority", PreserveContext: true})
	b.node("resolver", "Support Agent", &AgentConfig{
		AgentID:      "support-agent",
		Name:         "Support Agent",
		Capabilities: []string{"customer support", "knowledge retrieval"},
		ToolAccess:   ToolAccessPolicy{Selection: ToolSelectionManual, AllowedTools: []string{"knowledge_base_search"}},
	})
	b.node("kb", "Knowledge Base Search", &ToolConfig{ToolName: "knowledge_base_search"})
	b.node("reply", "Reply Composer", &AgentConfig{AgentID: "reply-agent", Name: "Reply Composer", Capabilities: []string{"writing"}})

	b.edge("chat", "input-guard")
	b.edge("input-guard", "triage")
	b.edge("triage", "escalate")
	b.edge("escalate", "handoff", WithCondition("true"), WithLabel("escalate"))
	b.edge("escalate", "resolver", WithCondition("false"), WithLabel("self-serve"))
	b.edge("resolver", "kb")
	b.edge("kb", "reply")
	return b.err
}

func buildResearchPipeline(g *Graph) error {
	b := &templateBuilder{g: g}
	b.node("planner", "Research Planner", &AgentConfig{
		AgentID:      "planner-agent",
		Name:         "Research Planner",
		Capabilities: []string{"planning", "research"},
		Reasoning:    ReasoningChainOfThought,
	})
	b.node("search", "Web Search", &ToolConfig{
		ToolName:      "web_search",
		ErrorHandling: ToolErrorHandling{RetryCount: 2, RetryDelayMs: 200, FallbackAction: FallbackSkip},
	})
	b.node("analyst", "Analyst", &AgentConfig{
		AgentID:      "analyst-agent",
		Name:         "Analyst",
		Capabilities: []string{"analysis", "data analysis"},
		ToolAccess:   ToolAccessPolicy{Selection: ToolSelectionAuto, AllowedTools: []string{"web_search", "calculator"}},
	})
	b.node("notes", "Research Notes", &MemoryConfig{Scope: "workflow", Namespace: "research"})
	b.node("summary", "Summary", &AggregatorConfig{Strategy: "concat"})
	b.node("monitor", "Cost Monitor", &MonitorConfig{Metrics: []string{"tokens", "latency"}, AlertThreshold: 0.8})

	b.edge("planner", "search")
	b.edge("search", "analyst")
	b.edge("analyst", "notes")
	b.edge("notes", "summary")
	b.edge("summary", "monitor")
	return b.err
}

func buildContentReview(g *Graph) error {
	b := &templateBuilder{g: g}
	b.node("writer", "Writer", &AgentConfig{
		AgentID:      "writer-agent",
		Name:         "Writer",
		Capabilities: []string{"writing", "content creation"},
	})
	b.node("policy", "Content Policy", &GuardrailConfig{Rules: []string{"brand_voice", "no_medical_claims"}, Action: "flag"})
	b.node("review", "Editor Review", &HumanConfig{Assignee: "editor", Prompt: "Approve this draft?", TimeoutMs: 86_400_000})
	b.node("approved", "Approved?", &DecisionConfig{
		Conditions: []DecisionCondition{
			{Label: "approved", Field: "approved", Operator: OpEquals, Value: true},
		},
		DefaultOutcome: true,
	})
	b.node("publisher", "Publisher", &AgentConfig{AgentID: "publisher-agent", Name: "Publisher", Capabilities: []string{"publishing"}})

	b.edge("writer", "policy")
	b.edge("policy", "review")
	b.edge("review", "approved")
	b.edge("approved", "publisher", WithCondition("true"))
	return b.err
}
