package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/agentos/studio/config"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	return mockDB, mock, gormDB
}

func newTestPool(t *testing.T) (*PoolManager, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, gormDB := setupTestDB(t)
	t.Cleanup(func() { mockDB.Close() })

	pm, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)
	return pm, mock
}

func TestNewPoolManager(t *testing.T) {
	pm, _ := newTestPool(t)
	assert.NotNil(t, pm.DB())
	assert.Equal(t, 10, pm.GetStats().MaxOpenConnections)

	_, err := NewPoolManager(nil, DefaultPoolConfig(), nil)
	assert.Error(t, err)
}

func TestPoolManager_Ping(t *testing.T) {
	pm, mock := newTestPool(t)
	ctx := context.Background()

	mock.ExpectPing()
	assert.NoError(t, pm.Ping(ctx))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.Error(t, pm.Ping(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransaction(t *testing.T) {
	pm, mock := newTestPool(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, pm.WithTransaction(ctx, func(tx *gorm.DB) error { return nil }))

	mock.ExpectBegin()
	mock.ExpectRollback()
	assert.ErrorIs(t, pm.WithTransaction(ctx, func(tx *gorm.DB) error { return assert.AnError }), assert.AnError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	pm, mock := newTestPool(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err := pm.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		attempts++
		if attempts == 1 {
			return errors.New("ERROR: deadlock detected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	// 不可重试的错误立即返回
	mock.ExpectBegin()
	mock.ExpectRollback()
	attempts = 0
	err = pm.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		attempts++
		return errors.New("unique constraint violated")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_Close(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	pm, err := NewPoolManager(gormDB, PoolConfig{
		MaxOpenConns:        10,
		MaxIdleConns:        5,
		HealthCheckInterval: time.Hour,
	}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, pm.Close())
	require.NoError(t, pm.Close())

	assert.ErrorIs(t, pm.Ping(context.Background()), ErrPoolClosed)
	assert.ErrorIs(t, pm.WithTransaction(context.Background(), func(*gorm.DB) error { return nil }), ErrPoolClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  PoolConfig
		wantErr bool
	}{
		{name: "valid config", config: PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}},
		{name: "invalid max open conns", config: PoolConfig{MaxOpenConns: 0, MaxIdleConns: 5}, wantErr: true},
		{name: "invalid max idle conns", config: PoolConfig{MaxOpenConns: 10, MaxIdleConns: 0}, wantErr: true},
		{name: "idle > open", config: PoolConfig{MaxOpenConns: 5, MaxIdleConns: 10}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.NoError(t, DefaultPoolConfig().Validate())
}

func TestPoolConfigFrom(t *testing.T) {
	pc := PoolConfigFrom(config.DatabaseConfig{MaxOpenConns: 40, ConnMaxLifetime: time.Minute})
	assert.Equal(t, 40, pc.MaxOpenConns)
	assert.Equal(t, DefaultPoolConfig().MaxIdleConns, pc.MaxIdleConns)
	assert.Equal(t, time.Minute, pc.ConnMaxLifetime)
}

// =============================================================================
// 🔌 方言与连接测试
// =============================================================================

func TestDialector(t *testing.T) {
	for _, driver := range []string{"postgres", "mysql", "sqlite"} {
		d, err := Dialector(config.DatabaseConfig{Driver: driver, Name: "agentos"})
		require.NoError(t, err, driver)
		assert.Equal(t, driver, d.Name())
	}

	_, err := Dialector(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestOpen_SQLiteInMemory(t *testing.T) {
	pm, err := Open(config.DatabaseConfig{Driver: "sqlite", MaxOpenConns: 1, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	require.NoError(t, pm.Ping(context.Background()))
	var n int
	require.NoError(t, pm.DB().Raw("SELECT 1").Scan(&n).Error)
	assert.Equal(t, 1, n)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("deadlock detected"), true},
		{errors.New("pq: could not serialize access (SQLSTATE 40001)"), true},
		{errors.New("database is locked"), true},
		{errors.New("Lock wait timeout exceeded"), true},
		{sql.ErrConnDone, true},
		{errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryableError(tt.err), "%v", tt.err)
	}
}
