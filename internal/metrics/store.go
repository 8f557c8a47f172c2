package metrics

import (
	"context"
	"time"

	"github.com/agentos/studio/workflow"
)

// instrumentedStore 为执行记录存储的每次调用记录耗时与错误
type instrumentedStore struct {
	next      workflow.RecordStore
	backend   string
	collector *Collector
}

// InstrumentStore 包装 store，操作耗时按 backend/operation 记录
func InstrumentStore(store workflow.RecordStore, backend string, c *Collector) workflow.RecordStore {
	if c == nil {
		return store
	}
	return &instrumentedStore{next: store, backend: backend, collector: c}
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	s.collector.RecordStoreOperation(s.backend, op, time.Since(start), err)
}

func (s *instrumentedStore) Save(ctx context.Context, record *workflow.ExecutionRecord) error {
	start := time.Now()
	err := s.next.Save(ctx, record)
	s.observe("save", start, err)
	return err
}

func (s *instrumentedStore) Get(ctx context.Context, id string) (*workflow.ExecutionRecord, error) {
	start := time.Now()
	rec, err := s.next.Get(ctx, id)
	s.observe("get", start, ignoreNotFound(err))
	return rec, err
}

func (s *instrumentedStore) ListByWorkflow(ctx context.Context, workflowID string) ([]*workflow.ExecutionRecord, error) {
	start := time.Now()
	out, err := s.next.ListByWorkflow(ctx, workflowID)
	s.observe("list_by_workflow", start, err)
	return out, err
}

func (s *instrumentedStore) ListByStatus(ctx context.Context, status workflow.ExecutionStatus) ([]*workflow.ExecutionRecord, error) {
	start := time.Now()
	out, err := s.next.ListByStatus(ctx, status)
	s.observe("list_by_status", start, err)
	return out, err
}

func (s *instrumentedStore) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.next.Delete(ctx, id)
	s.observe("delete", start, ignoreNotFound(err))
	return err
}

func (s *instrumentedStore) Ping(ctx context.Context) error { return s.next.Ping(ctx) }

func (s *instrumentedStore) Close() error { return s.next.Close() }

// 未找到属于正常结果，不计入错误
func ignoreNotFound(err error) error {
	if workflow.IsNotFound(err) {
		return nil
	}
	return err
}
