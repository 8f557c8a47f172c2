package handlers

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentos/studio/types"
	"github.com/agentos/studio/workflow"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// =============================================================================
// 📡 执行事件推送（WebSocket）
// =============================================================================

// EventHub 将执行器事件广播给 WebSocket 订阅者，实现 workflow.Observer。
// 慢订阅者的缓冲区满时事件被丢弃，执行器不会因推送而阻塞。
type EventHub struct {
	mu             sync.RWMutex
	subs           map[*subscriber]struct{}
	closed         bool
	buffer         int
	writeTimeout   time.Duration
	originPatterns []string
	logger         *zap.Logger
}

type subscriber struct {
	workflowID string
	ch         chan workflow.Event
	dropped    atomic.Int64
}

// EventHubOption 配置 EventHub
type EventHubOption func(*EventHub)

// WithEventBuffer 设置每个订阅者的缓冲区大小
func WithEventBuffer(n int) EventHubOption {
	return func(h *EventHub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithOriginPatterns 允许的跨域 Origin（coder/websocket 匹配规则）
func WithOriginPatterns(patterns ...string) EventHubOption {
	return func(h *EventHub) { h.originPatterns = patterns }
}

// NewEventHub 创建事件中心
func NewEventHub(logger *zap.Logger, opts ...EventHubOption) *EventHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &EventHub{
		subs:         make(map[*subscriber]struct{}),
		buffer:       64,
		writeTimeout: 5 * time.Second,
		logger:       logger.With(zap.String("component", "event_hub")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnEvent 实现 workflow.Observer
func (h *EventHub) OnEvent(e workflow.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for sub := range h.subs {
		if sub.workflowID != "" && sub.workflowID != e.WorkflowID {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Subscribers 返回当前订阅者数量
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *EventHub) subscribe(workflowID string) (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	sub := &subscriber{workflowID: workflowID, ch: make(chan workflow.Event, h.buffer)}
	h.subs[sub] = struct{}{}
	return sub, true
}

func (h *EventHub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// Close 关闭所有订阅，之后的事件被忽略
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// HandleEvents 升级为 WebSocket 并推送事件。?workflow_id= 只订阅单个工作流。
// @Router /api/v1/events [get]
func (h *EventHub) HandleEvents(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.subscribe(r.URL.Query().Get("workflow_id"))
	if !ok {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "event hub is closed", h.logger)
		return
	}
	defer h.unsubscribe(sub)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("remote_addr", r.RemoteAddr))
		return
	}
	defer conn.CloseNow()

	h.logger.Debug("event subscriber connected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("workflow_id", sub.workflowID),
	)

	// 客户端只接收事件；CloseRead 处理控制帧并在断开时取消 ctx
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.ch:
			if !open {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.write(ctx, conn, ev); err != nil {
				h.logger.Debug("event subscriber gone",
					zap.Error(err),
					zap.Int64("dropped", sub.dropped.Load()),
				)
				return
			}
		}
	}
}

func (h *EventHub) write(ctx context.Context, conn *websocket.Conn, ev workflow.Event) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
