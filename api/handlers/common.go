package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/agentos/studio/types"
	"github.com/agentos/studio/workflow"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"` // 不序列化到 JSON
}

// maxBodyBytes 请求体大小上限
const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 响应头已写出，编码失败时无法再修改状态码
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	writeData(w, http.StatusOK, data)
}

// WriteCreated 写入 201 响应
func WriteCreated(w http.ResponseWriter, data any) {
	writeData(w, http.StatusCreated, data)
}

func writeData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// WriteError 写入错误响应（从 types.Error）
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(err.Code)
	}

	errorInfo := &ErrorInfo{
		Code:       string(err.Code),
		Message:    err.Message,
		Details:    err.Details,
		Retryable:  err.Retryable,
		HTTPStatus: status,
	}

	if logger != nil {
		fields := []zap.Field{
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.Bool("retryable", err.Retryable),
			zap.Error(err.Cause),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("API error", fields...)
		} else {
			logger.Debug("API client error", fields...)
		}
	}

	WriteJSON(w, status, Response{
		Success:   false,
		Error:     errorInfo,
		Timestamp: time.Now(),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	err := types.NewError(code, message).WithHTTPStatus(status)
	WriteError(w, err, logger)
}

// WriteDomainError 将任意错误（含工作流领域错误）转换后写出
func WriteDomainError(w http.ResponseWriter, err error, logger *zap.Logger) {
	WriteError(w, ToAPIError(err), logger)
}

// =============================================================================
// 🔄 领域错误映射
// =============================================================================

// ToAPIError 将工作流错误映射为 types.Error
func ToAPIError(err error) *types.Error {
	if apiErr, ok := types.AsError(err); ok {
		return apiErr
	}

	var (
		ve *workflow.ValidationError
		se *workflow.StructuralError
		ne *workflow.NodeExecutionError
	)
	switch {
	case errors.As(err, &ve):
		return types.NewError(types.ErrInvalidConnection, ve.Error()).WithCause(err)
	case errors.As(err, &se):
		return types.NewError(types.ErrStructural, se.Error()).WithCause(err)
	case errors.Is(err, workflow.ErrWorkflowNotFound):
		return types.NewError(types.ErrWorkflowNotFound, err.Error()).WithCause(err)
	case errors.Is(err, workflow.ErrNodeNotFound), errors.Is(err, workflow.ErrEdgeNotFound):
		return types.NewError(types.ErrNodeNotFound, err.Error()).WithCause(err)
	case errors.Is(err, workflow.ErrExecutionNotFound):
		return types.NewError(types.ErrExecutionNotFound, err.Error()).WithCause(err)
	case errors.Is(err, workflow.ErrTemplateNotFound):
		return types.NewError(types.ErrTemplateNotFound, err.Error()).WithCause(err)
	case errors.Is(err, workflow.ErrDuplicateNode):
		return types.NewError(types.ErrConflict, err.Error()).WithCause(err)
	case errors.As(err, &ne):
		return types.NewError(types.ErrNodeExecution, ne.Error()).WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(types.ErrTimeout, "execution timed out").WithCause(err).WithRetryable(true)
	case errors.Is(err, context.Canceled):
		return types.NewError(types.ErrExecutionCanceled, "execution canceled").WithCause(err)
	default:
		return types.NewError(types.ErrInternalError, "internal error").WithCause(err)
	}
}

// =============================================================================
// 🔄 错误码到 HTTP 状态码映射
// =============================================================================

func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	// 4xx 客户端错误
	case types.ErrInvalidRequest, types.ErrInvalidConnection:
		return http.StatusBadRequest
	case types.ErrUnauthorized:
		return http.StatusUnauthorized
	case types.ErrForbidden:
		return http.StatusForbidden
	case types.ErrNotFound, types.ErrWorkflowNotFound, types.ErrNodeNotFound,
		types.ErrExecutionNotFound, types.ErrTemplateNotFound:
		return http.StatusNotFound
	case types.ErrConflict:
		return http.StatusConflict
	case types.ErrStructural, types.ErrNodeExecution:
		return http.StatusUnprocessableEntity
	case types.ErrRateLimited:
		return http.StatusTooManyRequests
	case types.ErrExecutionCanceled:
		return 499

	// 5xx 服务端错误
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	case types.ErrServiceUnavailable, types.ErrStorageUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrInternalError:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, err, logger)
		return err
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields() // 严格模式：拒绝未知字段

	if err := decoder.Decode(dst); err != nil {
		apiErr := types.NewError(types.ErrInvalidRequest, "invalid JSON body").
			WithCause(err).
			WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, apiErr, logger)
		return apiErr
	}

	return nil
}

// DecodeAndValidate 解码请求体并执行 validate 标签校验
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if err := DecodeJSONBody(w, r, dst, logger); err != nil {
		return err
	}
	if err := validate.Struct(dst); err != nil {
		apiErr := types.NewError(types.ErrInvalidRequest, describeValidation(err)).WithCause(err)
		WriteError(w, apiErr, logger)
		return apiErr
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// ValidateContentType 验证 Content-Type
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		err := types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json")
		WriteError(w, err, logger)
		return false
	}
	return true
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
	Bytes      int
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.Bytes += n
	return n, err
}

// Unwrap 暴露底层 ResponseWriter（http.ResponseController 与 websocket 升级需要）
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
