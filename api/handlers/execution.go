package handlers

import (
	"net/http"

	"github.com/agentos/studio/api"
	"github.com/agentos/studio/types"
	"github.com/agentos/studio/workflow"
	"go.uber.org/zap"
)

// =============================================================================
// Execution Handlers
// =============================================================================

// HandleExecute runs a stored workflow synchronously. A failed run answers
// with the error and the partial record in error.details.
// @Router /api/v1/workflows/{id}/execute [post]
func (h *WorkflowHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req api.ExecuteRequest
	if r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0 {
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
	}

	rec, err := h.orch.ExecuteWorkflow(r.Context(), id, req.Input)
	if err != nil {
		apiErr := ToAPIError(err)
		if rec != nil {
			apiErr.WithDetails(rec)
		}
		h.logger.Warn("workflow execution failed",
			zap.String("workflow_id", id),
			zap.Error(err),
		)
		WriteError(w, apiErr, h.logger)
		return
	}

	WriteSuccess(w, rec)
}

// HandleListExecutions lists the records of one workflow, newest first.
// ?status= narrows the list to one execution status.
// @Router /api/v1/workflows/{id}/executions [get]
func (h *WorkflowHandler) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	records, err := h.orch.Executions(r.Context(), id)
	if err != nil {
		WriteError(w, storageError(err), h.logger)
		return
	}

	status := workflow.ExecutionStatus(r.URL.Query().Get("status"))
	out := make([]api.ExecutionSummary, 0, len(records))
	for _, rec := range records {
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, api.NewExecutionSummary(rec))
	}
	WriteSuccess(w, out)
}

// HandleGetExecution returns one full record
// @Router /api/v1/executions/{id} [get]
func (h *WorkflowHandler) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	rec, err := h.orch.Execution(r.Context(), r.PathValue("id"))
	if err != nil {
		if workflow.IsNotFound(err) {
			WriteDomainError(w, err, h.logger)
			return
		}
		WriteError(w, storageError(err), h.logger)
		return
	}
	WriteSuccess(w, rec)
}

func storageError(err error) *types.Error {
	return types.NewError(types.ErrStorageUnavailable, "execution record store unavailable").
		WithCause(err).
		WithRetryable(true)
}
