package handlers

import (
	"net/http"
	"sort"

	"github.com/agentos/studio/api"
	"github.com/agentos/studio/types"
	"github.com/agentos/studio/workflow"
	"go.uber.org/zap"
)

// =============================================================================
// Workflow Management Handler
// =============================================================================

// WorkflowHandler serves workflow, node, edge and execution endpoints
type WorkflowHandler struct {
	orch   *workflow.Orchestrator
	logger *zap.Logger
}

// NewWorkflowHandler creates a workflow handler
func NewWorkflowHandler(orch *workflow.Orchestrator, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{
		orch:   orch,
		logger: logger.With(zap.String("handler", "workflow")),
	}
}

// Register mounts every workflow route on mux (Go 1.22 method patterns)
func (h *WorkflowHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/workflows", h.HandleCreateWorkflow)
	mux.HandleFunc("GET /api/v1/workflows", h.HandleListWorkflows)
	mux.HandleFunc("GET /api/v1/workflows/{id}", h.HandleGetWorkflow)
	mux.HandleFunc("DELETE /api/v1/workflows/{id}", h.HandleDeleteWorkflow)

	mux.HandleFunc("POST /api/v1/workflows/{id}/nodes", h.HandleAddNode)
	mux.HandleFunc("PATCH /api/v1/workflows/{id}/nodes/{nodeID}", h.HandleUpdateNode)
	mux.HandleFunc("DELETE /api/v1/workflows/{id}/nodes/{nodeID}", h.HandleDeleteNode)
	mux.HandleFunc("GET /api/v1/workflows/{id}/nodes/{nodeID}/suggestions", h.HandleSuggestions)

	mux.HandleFunc("POST /api/v1/workflows/{id}/edges", h.HandleConnect)
	mux.HandleFunc("DELETE /api/v1/workflows/{id}/edges/{edgeID}", h.HandleDisconnect)
	mux.HandleFunc("POST /api/v1/workflows/{id}/connections/assist", h.HandleAssistConnection)
	mux.HandleFunc("POST /api/v1/connections/validate", h.HandleValidateConnection)

	mux.HandleFunc("POST /api/v1/workflows/{id}/execute", h.HandleExecute)
	mux.HandleFunc("GET /api/v1/workflows/{id}/executions", h.HandleListExecutions)
	mux.HandleFunc("GET /api/v1/executions/{id}", h.HandleGetExecution)

	mux.HandleFunc("GET /api/v1/templates", h.HandleListTemplates)
	mux.HandleFunc("POST /api/v1/templates/{name}", h.HandleInstantiateTemplate)

	mux.HandleFunc("GET /api/v1/workflows/{id}/definition", h.HandleExportDefinition)
	mux.HandleFunc("POST /api/v1/definitions", h.HandleImportDefinition)
}

// graph resolves the {id} path value, writing a 404 when it is unknown
func (h *WorkflowHandler) graph(w http.ResponseWriter, r *http.Request) (*workflow.Graph, bool) {
	g, err := h.orch.Store().Workflow(r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return nil, false
	}
	return g, true
}

// =============================================================================
// Workflows
// =============================================================================

// HandleCreateWorkflow creates an empty workflow
// @Router /api/v1/workflows [post]
func (h *WorkflowHandler) HandleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req api.CreateWorkflowRequest
	if err := DecodeAndValidate(w, r, &req, h.logger); err != nil {
		return
	}

	id := h.orch.Store().CreateWorkflow(req.Name, req.Description)
	h.logger.Info("workflow created", zap.String("workflow_id", id), zap.String("name", req.Name))
	WriteCreated(w, api.CreateWorkflowResponse{ID: id})
}

// HandleListWorkflows lists workflow summaries ordered by creation time
// @Router /api/v1/workflows [get]
func (h *WorkflowHandler) HandleListWorkflows(w http.ResponseWriter, r *http.Request) {
	graphs := h.orch.Store().Workflows()
	out := make([]api.WorkflowSummary, 0, len(graphs))
	for _, g := range graphs {
		out = append(out, api.NewWorkflowSummary(g))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	WriteSuccess(w, out)
}

// HandleGetWorkflow returns the full graph snapshot
// @Router /api/v1/workflows/{id} [get]
func (h *WorkflowHandler) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	g, ok := h.graph(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, g.Snapshot())
}

// HandleDeleteWorkflow removes a workflow; its execution records are kept
// @Router /api/v1/workflows/{id} [delete]
func (h *WorkflowHandler) HandleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.orch.Store().DeleteWorkflow(id); err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	h.logger.Info("workflow deleted", zap.String("workflow_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Nodes
// =============================================================================

// HandleAddNode adds a node; a missing config takes the kind defaults
// @Router /api/v1/workflows/{id}/nodes [post]
func (h *WorkflowHandler) HandleAddNode(w http.ResponseWriter, r *http.Request) {
	g, ok := h.graph(w, r)
	if !ok {
		return
	}
	var req api.AddNodeRequest
	if err := DecodeAndValidate(w, r, &req, h.logger); err != nil {
		return
	}

	kind, err := workflow.ParseNodeKind(req.Kind)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, err.Error()).WithCause(err), h.logger)
		return
	}
	cfg, err := workflow.ConfigFromMap(kind, req.Config)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "invalid node config").WithCause(err), h.logger)
		return
	}

	node, err := g.AddNode(kind, cfg, req.Position, workflow.WithNodeID(req.ID), workflow.WithNodeName(req.Name))
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteCreated(w, node)
}

// HandleUpdateNode patches name, position and/or config
// @Router /api/v1/workflows/{id}/nodes/{nodeID} [patch]
func (h *WorkflowHandler) HandleUpdateNode(w http.ResponseWriter, r *http.Request) {
	g, ok := h.graph(w, r)
	if !ok {
		return
	}
	nodeID := r.PathValue("nodeID")
	node, ok := g.Node(nodeID)
	if !ok {
		WriteDomainError(w, workflow.ErrNodeNotFound, h.logger)
		return
	}
	var req api.UpdateNodeRequest
	if err := DecodeAndValidate(w, r, &req, h.logger); err != nil {
		return
	}

	if req.Config != nil {
		cfg, err := workflow.ConfigFromMap(node.Kind, req.Config)
		if err != nil {
			WriteError(w, types.NewError(types.ErrInvalidRequest, "invalid node config").WithCause(err), h.logger)
			return
		}
		if err := g.UpdateNodeConfig(nodeID, cfg); err != nil {
			WriteDomainError(w, err, h.logger)
			return
		}
	}
	if req.Position != nil {
		if err := g.MoveNode(nodeID, *req.Position); err != nil {
			WriteDomainError(w, err, h.logger)
			return
		}
	}
	if req.Name != nil {
		if err := g.RenameNode(nodeID, *req.Name); err != nil {
			WriteDomainError(w, err, h.logger)
			return
		}
	}

	updated, _ := g.Node(nodeID)
	WriteSuccess(w, updated)
}

// HandleDeleteNode removes a node and its incident edges
// @Router /api/v1/workflows/{id}/nodes/{nodeID} [delete]
func (h *WorkflowHandler) HandleDeleteNode(w http.ResponseWriter, r *http.Request) {
	g, ok := h.graph(w, r)
	if !ok {
		return
	}
	if err := g.RemoveNode(r.PathValue("nodeID")); err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Edges
// =============================================================================

// HandleConnect adds an edge. Tool -> Tool answers 400, a missing endpoint 422.
// @Router /api/v1/workflows/{id}/edges [post]
func (h *WorkflowHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	g, ok := h.graph(w, r)
	if !ok {
		return
	}
	var req api.ConnectRequest
	if err := DecodeAndValidate(w, r, &req, h.logger); err != nil {
		return
	}

	opts := []workflow.EdgeOption{workflow.WithLabel(req.Label), workflow.WithCondition(req.Condition)}
	for k, v := range req.Metadata {
		opts = append(opts, workflow.WithEdgeMetadata(k, v))
	}
	edge, err := g.Connect(req.Source, req.Target, opts...)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteCreated(w, edge)
}

// HandleDisconnect removes one edge
// @Router /api/v1/workflows/{id}/edges/{edgeID} [delete]
func (h *WorkflowHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	g, ok := h.graph(w, r)
	if !ok {
		return
	}
	if err := g.Disconnect(r.PathValue("edgeID")); err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
