package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/agentos/studio/api"
	"github.com/agentos/studio/types"
	"github.com/agentos/studio/workflow"
	"go.uber.org/zap"
)

// =============================================================================
// Suggestions and connection assistance
// =============================================================================

// HandleSuggestions proposes follow-up nodes for one node.
// With ?execution_id= the context of that run feeds the heuristics.
// @Router /api/v1/workflows/{id}/nodes/{nodeID}/suggestions [get]
func (h *WorkflowHandler) HandleSuggestions(w http.ResponseWriter, r *http.Request) {
	g, ok := h.graph(w, r)
	if !ok {
		return
	}
	node, ok := g.Node(r.PathValue("nodeID"))
	if !ok {
		WriteDomainError(w, workflow.ErrNodeNotFound, h.logger)
		return
	}

	var wctx *workflow.WorkflowContext
	if execID := r.URL.Query().Get("execution_id"); execID != "" {
		rec, err := h.orch.Execution(r.Context(), execID)
		if err != nil {
			WriteDomainError(w, err, h.logger)
			return
		}
		wctx = &rec.Context
	}

	WriteSuccess(w, workflow.SuggestNextNodes(node, wctx))
}

// HandleValidateConnection applies the kind compatibility rule
// @Router /api/v1/connections/validate [post]
func (h *WorkflowHandler) HandleValidateConnection(w http.ResponseWriter, r *http.Request) {
	var req api.ValidateConnectionRequest
	if err := DecodeAndValidate(w, r, &req, h.logger); err != nil {
		return
	}
	src, err := workflow.ParseNodeKind(req.SourceKind)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, err.Error()), h.logger)
		return
	}
	dst, err := workflow.ParseNodeKind(req.TargetKind)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, err.Error()), h.logger)
		return
	}
	WriteSuccess(w, workflow.ValidateConnection(src, dst))
}

// HandleAssistConnection returns advice for a proposed edge without adding it
// @Router /api/v1/workflows/{id}/connections/assist [post]
func (h *WorkflowHandler) HandleAssistConnection(w http.ResponseWriter, r *http.Request) {
	g, ok := h.graph(w, r)
	if !ok {
		return
	}
	var req api.AssistConnectionRequest
	if err := DecodeAndValidate(w, r, &req, h.logger); err != nil {
		return
	}
	WriteSuccess(w, workflow.AssistConnection(g, req.Source, req.Target))
}

// =============================================================================
// Templates
// =============================================================================

// HandleListTemplates lists the registered templates
// @Router /api/v1/templates [get]
func (h *WorkflowHandler) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.orch.Store().Templates())
}

// HandleInstantiateTemplate creates a new workflow from a template
// @Router /api/v1/templates/{name} [post]
func (h *WorkflowHandler) HandleInstantiateTemplate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	g, err := h.orch.Store().InstantiateTemplate(name)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	h.logger.Info("workflow created from template",
		zap.String("workflow_id", g.ID()),
		zap.String("template", name),
	)
	WriteCreated(w, api.InstantiateTemplateResponse{ID: g.ID(), Template: name})
}

// =============================================================================
// Definitions
// =============================================================================

// HandleExportDefinition renders a workflow as JSON (default) or YAML
// @Router /api/v1/workflows/{id}/definition [get]
func (h *WorkflowHandler) HandleExportDefinition(w http.ResponseWriter, r *http.Request) {
	g, ok := h.graph(w, r)
	if !ok {
		return
	}
	def, err := workflow.ExportDefinition(g)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "json":
		WriteSuccess(w, def)
	case "yaml", "yml":
		out, err := def.ToYAML()
		if err != nil {
			WriteDomainError(w, err, h.logger)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, out)
	default:
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "format must be json or yaml", h.logger)
	}
}

// HandleImportDefinition builds and stores a workflow from a JSON or YAML
// definition. The format follows the Content-Type header.
// @Router /api/v1/definitions [post]
func (h *WorkflowHandler) HandleImportDefinition(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil || r.Body == http.NoBody {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "request body is empty", h.logger)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "failed to read body").WithCause(err), h.logger)
		return
	}

	var def *workflow.Definition
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		def, err = workflow.DefinitionFromYAML(data)
	} else {
		def, err = workflow.DefinitionFromJSON(data)
	}
	if err != nil {
		WriteError(w, definitionError(err), h.logger)
		return
	}

	g, err := def.BuildGraph()
	if err != nil {
		WriteError(w, definitionError(err), h.logger)
		return
	}
	if err := h.orch.Store().SaveWorkflow(g); err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	h.logger.Info("workflow imported",
		zap.String("workflow_id", g.ID()),
		zap.Int("nodes", g.Len()),
	)
	WriteCreated(w, api.NewWorkflowSummary(g))
}

// definitionError keeps the domain codes and reports everything else as a bad request
func definitionError(err error) *types.Error {
	if workflow.IsValidation(err) || workflow.IsStructural(err) {
		return ToAPIError(err)
	}
	return types.NewError(types.ErrInvalidRequest, err.Error()).WithCause(err)
}
