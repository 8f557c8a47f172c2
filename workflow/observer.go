package workflow

import (
	"sync"
	"time"
)

// EventType identifies a run or node lifecycle transition
type EventType string

const (
	EventRunStarted    EventType = "run.started"
	EventRunCompleted  EventType = "run.completed"
	EventRunFailed     EventType = "run.failed"
	EventNodeStarted   EventType = "node.started"
	EventNodeCompleted EventType = "node.completed"
	EventNodeFailed    EventType = "node.failed"
)

// Event is emitted by the executor. Node fields are empty for run events.
type Event struct {
	Type        EventType        `json:"type"`
	ExecutionID string           `json:"execution_id"`
	WorkflowID  string           `json:"workflow_id"`
	NodeID      string           `json:"node_id,omitempty"`
	NodeKind    NodeKind         `json:"node_kind,omitempty"`
	Status      ExecutionStatus  `json:"status,omitempty"`
	Result      *ExecutionResult `json:"result,omitempty"`
	Duration    time.Duration    `json:"duration,omitempty"`
	Error       string           `json:"error,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// Observer receives executor events synchronously on the run goroutine.
// Implementations must return quickly.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// OnEvent implements Observer
func (f ObserverFunc) OnEvent(e Event) { f(e) }

// MultiObserver fans an event out to several observers
type MultiObserver []Observer

// OnEvent implements Observer
func (m MultiObserver) OnEvent(e Event) {
	for _, o := range m {
		if o != nil {
			o.OnEvent(e)
		}
	}
}

// EventRecorder keeps every event in memory
type EventRecorder struct {
	mu     sync.Mutex
	events []Event
}

// OnEvent implements Observer
func (r *EventRecorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events
func (r *EventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order
func (r *EventRecorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
