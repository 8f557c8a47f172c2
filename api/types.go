package api

import (
	"time"

	"github.com/agentos/studio/workflow"
)

// =============================================================================
// 工作流类型
// =============================================================================

// CreateWorkflowRequest 创建工作流请求。
// @Description 创建工作流请求结构
type CreateWorkflowRequest struct {
	// 工作流名称
	Name string `json:"name" example:"support" validate:"required,max=200"`
	// 描述
	Description string `json:"description,omitempty" validate:"max=2000"`
}

// CreateWorkflowResponse 创建工作流响应。
type CreateWorkflowResponse struct {
	ID string `json:"id"`
}

// WorkflowSummary 工作流列表项
type WorkflowSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	NodeCount   int       `json:"node_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewWorkflowSummary 从图构造列表项
func NewWorkflowSummary(g *workflow.Graph) WorkflowSummary {
	return WorkflowSummary{
		ID:          g.ID(),
		Name:        g.Name(),
		Description: g.Description(),
		NodeCount:   g.Len(),
		CreatedAt:   g.CreatedAt(),
		UpdatedAt:   g.UpdatedAt(),
	}
}

// =============================================================================
// 节点与连线类型
// =============================================================================

// AddNodeRequest 添加节点请求。
// @Description Config 为节点类型相关配置，缺省时使用该类型默认配置
type AddNodeRequest struct {
	// 可选的显式节点 ID
	ID string `json:"id,omitempty" validate:"omitempty,max=128"`
	// 节点类型（agent、tool、decision ...）
	Kind string `json:"kind" example:"agent" validate:"required"`
	// 显示名称
	Name     string            `json:"name,omitempty" validate:"max=200"`
	Position workflow.Position `json:"position"`
	Config   map[string]any    `json:"config,omitempty"`
}

// UpdateNodeRequest 更新节点请求，仅修改非空字段
type UpdateNodeRequest struct {
	Name     *string            `json:"name,omitempty" validate:"omitempty,max=200"`
	Position *workflow.Position `json:"position,omitempty"`
	Config   map[string]any     `json:"config,omitempty"`
}

// ConnectRequest 连线请求
type ConnectRequest struct {
	Source    string         `json:"source" validate:"required"`
	Target    string         `json:"target" validate:"required"`
	Label     string         `json:"label,omitempty" validate:"max=200"`
	Condition string         `json:"condition,omitempty" validate:"omitempty,oneof=true false"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ValidateConnectionRequest 按节点类型校验连线
type ValidateConnectionRequest struct {
	SourceKind string `json:"source_kind" example:"tool" validate:"required"`
	TargetKind string `json:"target_kind" example:"agent" validate:"required"`
}

// AssistConnectionRequest 按节点 ID 获取连线建议
type AssistConnectionRequest struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// =============================================================================
// 执行类型
// =============================================================================

// ExecuteRequest 执行工作流请求
type ExecuteRequest struct {
	// 初始输入，作为 WorkflowContext.CurrentData
	Input any `json:"input,omitempty"`
}

// ExecutionSummary 执行记录列表项
type ExecutionSummary struct {
	ID            string                   `json:"id"`
	WorkflowID    string                   `json:"workflow_id"`
	Status        workflow.ExecutionStatus `json:"status"`
	StartTime     time.Time                `json:"start_time"`
	EndTime       *time.Time               `json:"end_time,omitempty"`
	ExecutionPath []string                 `json:"execution_path"`
	Error         string                   `json:"error,omitempty"`
}

// NewExecutionSummary 从执行记录构造列表项
func NewExecutionSummary(rec *workflow.ExecutionRecord) ExecutionSummary {
	s := ExecutionSummary{
		ID:            rec.ID,
		WorkflowID:    rec.WorkflowID,
		Status:        rec.Status,
		StartTime:     rec.StartTime,
		ExecutionPath: append([]string(nil), rec.ExecutionPath...),
		Error:         rec.Error,
	}
	if !rec.EndTime.IsZero() {
		end := rec.EndTime
		s.EndTime = &end
	}
	return s
}

// =============================================================================
// 模板类型
// =============================================================================

// InstantiateTemplateResponse 模板实例化响应
type InstantiateTemplateResponse struct {
	ID       string `json:"id"`
	Template string `json:"template"`
}
