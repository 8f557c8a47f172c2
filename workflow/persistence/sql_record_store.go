package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agentos/studio/internal/database"
	"github.com/agentos/studio/workflow"
)

// executionRow is the relational shape of a record: indexed lookup columns
// plus the full record as a JSON document.
type executionRow struct {
	ID         string    `gorm:"primaryKey;size:64"`
	WorkflowID string    `gorm:"size:64;index:idx_exec_workflow_start,priority:1"`
	Status     string    `gorm:"size:16;index"`
	StartTime  time.Time `gorm:"index:idx_exec_workflow_start,priority:2"`
	EndTime    *time.Time
	Error      string `gorm:"type:text"`
	Document   string `gorm:"type:text;not null"`
	UpdatedAt  time.Time
}

// TableName implements gorm's tabler
func (executionRow) TableName() string { return "workflow_executions" }

// SQLRecordStore persists records through GORM
type SQLRecordStore struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewSQLRecordStore migrates the schema and returns the store
func NewSQLRecordStore(ctx context.Context, pool *database.PoolManager, logger *zap.Logger) (*SQLRecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().WithContext(ctx).AutoMigrate(&executionRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate execution table: %w", err)
	}
	return &SQLRecordStore{
		pool:   pool,
		logger: logger.With(zap.String("component", "sql_record_store")),
	}, nil
}

func toRow(record *workflow.ExecutionRecord) (*executionRow, error) {
	data, err := encodeRecord(record)
	if err != nil {
		return nil, err
	}
	snap := record.Clone()
	row := &executionRow{
		ID:         snap.ID,
		WorkflowID: snap.WorkflowID,
		Status:     string(snap.Status),
		StartTime:  snap.StartTime.UTC(),
		Error:      snap.Error,
		Document:   string(data),
	}
	if !snap.EndTime.IsZero() {
		end := snap.EndTime.UTC()
		row.EndTime = &end
	}
	return row, nil
}

// Save implements workflow.RecordStore
func (s *SQLRecordStore) Save(ctx context.Context, record *workflow.ExecutionRecord) error {
	row, err := toRow(record)
	if err != nil {
		return err
	}
	err = s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", row.ID, err)
	}
	return nil
}

// Get implements workflow.RecordStore
func (s *SQLRecordStore) Get(ctx context.Context, id string) (*workflow.ExecutionRecord, error) {
	var row executionRow
	err := s.pool.DB().WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load execution %s: %w", id, err)
	}
	return decodeRecord([]byte(row.Document))
}

// ListByWorkflow implements workflow.RecordStore
func (s *SQLRecordStore) ListByWorkflow(ctx context.Context, workflowID string) ([]*workflow.ExecutionRecord, error) {
	return s.list(ctx, "workflow_id = ?", workflowID)
}

// ListByStatus implements workflow.RecordStore
func (s *SQLRecordStore) ListByStatus(ctx context.Context, status workflow.ExecutionStatus) ([]*workflow.ExecutionRecord, error) {
	return s.list(ctx, "status = ?", string(status))
}

func (s *SQLRecordStore) list(ctx context.Context, query string, arg any) ([]*workflow.ExecutionRecord, error) {
	var rows []executionRow
	err := s.pool.DB().WithContext(ctx).
		Where(query, arg).
		Order("start_time DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	out := make([]*workflow.ExecutionRecord, 0, len(rows))
	for i := range rows {
		rec, err := decodeRecord([]byte(rows[i].Document))
		if err != nil {
			s.logger.Warn("skipping unreadable execution row", zap.String("execution_id", rows[i].ID), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	workflow.SortRecords(out)
	return out, nil
}

// Delete implements workflow.RecordStore
func (s *SQLRecordStore) Delete(ctx context.Context, id string) error {
	res := s.pool.DB().WithContext(ctx).Delete(&executionRow{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete execution %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(id)
	}
	return nil
}

// Ping implements workflow.RecordStore
func (s *SQLRecordStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements workflow.RecordStore
func (s *SQLRecordStore) Close() error {
	return s.pool.Close()
}

// PoolStats reports the connection pool usage of the underlying database
func (s *SQLRecordStore) PoolStats() database.PoolStats {
	return s.pool.GetStats()
}
