package workflow

import (
	"sync"
	"time"
)

// ExecutionStatus is the lifecycle state of a run
type ExecutionStatus string

const (
	// ExecutionStatusRunning indicates the run is in progress
	ExecutionStatusRunning ExecutionStatus = "running"
	// ExecutionStatusCompleted indicates every reachable branch finished
	ExecutionStatusCompleted ExecutionStatus = "completed"
	// ExecutionStatusError indicates the run aborted
	ExecutionStatusError ExecutionStatus = "error"
	// ExecutionStatusPaused is reserved for runs waiting on a human
	ExecutionStatusPaused ExecutionStatus = "paused"
)

// IsTerminal reports whether no further transitions are possible
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusError
}

// ExecutionResult is the outcome of one node in one run
type ExecutionResult struct {
	Success         bool           `json:"success"`
	Output          any            `json:"output,omitempty"`
	Error           string         `json:"error,omitempty"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	TokensUsed      int            `json:"tokens_used,omitempty"`
	ToolsUsed       []string       `json:"tools_used,omitempty"`
	Confidence      *float64       `json:"confidence,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

func (r ExecutionResult) clone() ExecutionResult {
	out := r
	if r.ToolsUsed != nil {
		out.ToolsUsed = append([]string(nil), r.ToolsUsed...)
	}
	if r.Confidence != nil {
		c := *r.Confidence
		out.Confidence = &c
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Message is one entry of the conversation history
type Message struct {
	Role      string    `json:"role"`
	NodeID    string    `json:"node_id,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowContext is the mutable state threaded through one run.
// It is owned by exactly one ExecutionRecord.
type WorkflowContext struct {
	ConversationHistory []Message      `json:"conversation_history"`
	CurrentData         any            `json:"current_data,omitempty"`
	UserPreferences     map[string]any `json:"user_preferences,omitempty"`
	ExecutionState      map[string]any `json:"execution_state,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// NewWorkflowContext seeds a context with the initial payload
func NewWorkflowContext(input any) *WorkflowContext {
	return &WorkflowContext{
		ConversationHistory: make([]Message, 0),
		CurrentData:         input,
		UserPreferences:     make(map[string]any),
		ExecutionState:      make(map[string]any),
		Metadata:            make(map[string]any),
	}
}

// Append adds a message to the conversation history
func (c *WorkflowContext) Append(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.ConversationHistory = append(c.ConversationHistory, msg)
}

func (c *WorkflowContext) clone() WorkflowContext {
	out := WorkflowContext{
		ConversationHistory: append([]Message(nil), c.ConversationHistory...),
		CurrentData:         c.CurrentData,
		UserPreferences:     copyMap(c.UserPreferences),
		ExecutionState:      copyMap(c.ExecutionState),
		Metadata:            copyMap(c.Metadata),
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ExecutionMetrics aggregates counters over one run
type ExecutionMetrics struct {
	TotalExecutionTime time.Duration            `json:"total_execution_time"`
	NodeExecutionTimes map[string]time.Duration `json:"node_execution_times"`
	TotalTokensUsed    int                      `json:"total_tokens_used"`
	// ToolsUsed is the concatenation of every node's tool list, duplicates included
	ToolsUsed   []string `json:"tools_used"`
	ErrorCount  int      `json:"error_count"`
	SuccessRate float64  `json:"success_rate"`
	RetryCount  int      `json:"retry_count"`
}

// ExecutionRecord is the ledger of one workflow run. Once the status is
// terminal the record is frozen and mutators become no-ops.
type ExecutionRecord struct {
	ID            string                     `json:"id"`
	WorkflowID    string                     `json:"workflow_id"`
	Status        ExecutionStatus            `json:"status"`
	StartTime     time.Time                  `json:"start_time"`
	EndTime       time.Time                  `json:"end_time,omitempty"`
	ExecutionPath []string                   `json:"execution_path"`
	Results       map[string]ExecutionResult `json:"results"`
	Context       WorkflowContext            `json:"context"`
	Metrics       ExecutionMetrics           `json:"metrics"`
	Error         string                     `json:"error,omitempty"`

	mu     sync.RWMutex
	frozen bool
}

func newExecutionRecord(id, workflowID string, input any) *ExecutionRecord {
	wctx := NewWorkflowContext(input)
	return &ExecutionRecord{
		ID:            id,
		WorkflowID:    workflowID,
		Status:        ExecutionStatusRunning,
		StartTime:     time.Now(),
		ExecutionPath: make([]string, 0),
		Results:       make(map[string]ExecutionResult),
		Context:       *wctx,
		Metrics: ExecutionMetrics{
			NodeExecutionTimes: make(map[string]time.Duration),
			ToolsUsed:          make([]string, 0),
		},
	}
}

// recordResult appends the node to the path and folds its result into the metrics
func (r *ExecutionRecord) recordResult(nodeID string, res ExecutionResult, elapsed time.Duration, retries int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return
	}
	r.ExecutionPath = append(r.ExecutionPath, nodeID)
	r.Results[nodeID] = res
	r.Metrics.NodeExecutionTimes[nodeID] = elapsed
	r.Metrics.TotalTokensUsed += res.TokensUsed
	r.Metrics.ToolsUsed = append(r.Metrics.ToolsUsed, res.ToolsUsed...)
	r.Metrics.RetryCount += retries
	if !res.Success {
		r.Metrics.ErrorCount++
	}
}

// finish moves the record to a terminal status and freezes it
func (r *ExecutionRecord) finish(status ExecutionStatus, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return
	}
	r.Status = status
	r.EndTime = time.Now()
	r.Metrics.TotalExecutionTime = r.EndTime.Sub(r.StartTime)
	if n := len(r.Results); n > 0 {
		r.Metrics.SuccessRate = float64(n-r.Metrics.ErrorCount) / float64(n)
	}
	if err != nil {
		r.Error = err.Error()
	}
	r.frozen = status.IsTerminal()
}

// IsTerminal reports whether the run has finished
func (r *ExecutionRecord) IsTerminal() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status.IsTerminal()
}

// Clone returns an independent copy of the record
func (r *ExecutionRecord) Clone() *ExecutionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := &ExecutionRecord{
		ID:            r.ID,
		WorkflowID:    r.WorkflowID,
		Status:        r.Status,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		ExecutionPath: append([]string(nil), r.ExecutionPath...),
		Results:       make(map[string]ExecutionResult, len(r.Results)),
		Context:       r.Context.clone(),
		Metrics:       r.Metrics,
		Error:         r.Error,
		frozen:        r.frozen,
	}
	for id, res := range r.Results {
		out.Results[id] = res.clone()
	}
	out.Metrics.ToolsUsed = append([]string(nil), r.Metrics.ToolsUsed...)
	out.Metrics.NodeExecutionTimes = make(map[string]time.Duration, len(r.Metrics.NodeExecutionTimes))
	for id, d := range r.Metrics.NodeExecutionTimes {
		out.Metrics.NodeExecutionTimes[id] = d
	}
	return out
}

// Restore marks a record loaded from storage as frozen when its status is terminal
func (r *ExecutionRecord) Restore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Results == nil {
		r.Results = make(map[string]ExecutionResult)
	}
	if r.Metrics.NodeExecutionTimes == nil {
		r.Metrics.NodeExecutionTimes = make(map[string]time.Duration)
	}
	r.frozen = r.Status.IsTerminal()
}
