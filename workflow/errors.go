package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound is returned when a workflow id is unknown to the store
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrNodeNotFound is returned when a node id is not part of the graph
	ErrNodeNotFound = errors.New("node not found")
	// ErrEdgeNotFound is returned when an edge id is not part of the graph
	ErrEdgeNotFound = errors.New("edge not found")
	// ErrExecutionNotFound is returned when an execution record does not exist
	ErrExecutionNotFound = errors.New("execution not found")
	// ErrTemplateNotFound is returned for an unknown template name
	ErrTemplateNotFound = errors.New("template not found")
	// ErrDuplicateNode is returned when a node id is already taken
	ErrDuplicateNode = errors.New("duplicate node id")
)

// StructuralError reports a graph that cannot be executed or an edge
// that references a node the graph does not contain.
type StructuralError struct {
	WorkflowID string
	NodeID     string
	Reason     string
}

func (e *StructuralError) Error() string {
	switch {
	case e.NodeID != "":
		return fmt.Sprintf("structural error in workflow %q: %s (node %q)", e.WorkflowID, e.Reason, e.NodeID)
	default:
		return fmt.Sprintf("structural error in workflow %q: %s", e.WorkflowID, e.Reason)
	}
}

// Is lets errors.Is(err, ErrNodeNotFound) match a missing-node structural error.
func (e *StructuralError) Is(target error) bool {
	return target == ErrNodeNotFound && e.NodeID != "" && e.Reason == reasonNodeMissing
}

const (
	reasonNoEntry     = "no entry point"
	reasonNodeMissing = "edge references a node that does not exist"
)

// ValidationError reports a rejected edit. The graph is left unchanged.
type ValidationError struct {
	SourceKind NodeKind
	TargetKind NodeKind
	Reason     string
}

func (e *ValidationError) Error() string {
	if e.SourceKind != "" || e.TargetKind != "" {
		return fmt.Sprintf("invalid connection %s -> %s: %s", e.SourceKind, e.TargetKind, e.Reason)
	}
	return "validation error: " + e.Reason
}

// NodeExecutionError wraps the failure of a single node
type NodeExecutionError struct {
	NodeID  string
	Kind    NodeKind
	Message string
	Cause   error
}

func (e *NodeExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("node %s (%s) failed: %s: %v", e.NodeID, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("node %s (%s) failed: %s", e.NodeID, e.Kind, e.Message)
}

func (e *NodeExecutionError) Unwrap() error { return e.Cause }

// IsStructural reports whether err is or wraps a *StructuralError
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// IsValidation reports whether err is or wraps a *ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err wraps one of the not-found sentinels
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrEdgeNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrTemplateNotFound)
}
