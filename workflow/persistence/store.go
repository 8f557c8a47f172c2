package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/agentos/studio/workflow"
)

// StoreType selects the record store backend
type StoreType string

const (
	// StoreTypeMemory keeps records in process memory
	StoreTypeMemory StoreType = "memory"
	// StoreTypeRedis stores records in Redis with sorted-set indexes
	StoreTypeRedis StoreType = "redis"
	// StoreTypeSQL stores records in a relational database through GORM
	StoreTypeSQL StoreType = "sql"
	// StoreTypeMongo stores records in a MongoDB collection
	StoreTypeMongo StoreType = "mongo"
)

// Compile-time interface checks
var (
	_ workflow.RecordStore = (*workflow.MemoryRecordStore)(nil)
	_ workflow.RecordStore = (*RedisRecordStore)(nil)
	_ workflow.RecordStore = (*SQLRecordStore)(nil)
	_ workflow.RecordStore = (*MongoRecordStore)(nil)
)

// encodeRecord serializes a snapshot of the record
func encodeRecord(record *workflow.ExecutionRecord) ([]byte, error) {
	if record == nil || record.ID == "" {
		return nil, fmt.Errorf("record must have an id")
	}
	data, err := json.Marshal(record.Clone())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution %s: %w", record.ID, err)
	}
	return data, nil
}

// decodeRecord rebuilds a record and restores its frozen state
func decodeRecord(data []byte) (*workflow.ExecutionRecord, error) {
	var rec workflow.ExecutionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}
	rec.Restore()
	return &rec, nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", workflow.ErrExecutionNotFound, id)
}
