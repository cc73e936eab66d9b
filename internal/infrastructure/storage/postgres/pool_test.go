package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolStats(t *testing.T) {
	tests := []struct {
		name      string
		stats     PoolStats
		saturated bool
		avg       time.Duration
	}{
		{"idle pool", PoolStats{MaxConns: 10, AcquiredConns: 2}, false, 0},
		{"exhausted", PoolStats{MaxConns: 4, AcquiredConns: 4, AcquireCount: 4, AcquireDuration: 8 * time.Millisecond}, true, 2 * time.Millisecond},
		{"unknown max", PoolStats{AcquiredConns: 3}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.saturated, tt.stats.Saturated())
			assert.Equal(t, tt.avg, tt.stats.AverageAcquire())
		})
	}
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig("postgres://ledger")

	assert.Equal(t, "postgres://ledger", cfg.DSN)
	assert.Equal(t, "stockledger", cfg.ApplicationName)
	assert.Greater(t, cfg.MaxConns, cfg.MinConns)
}
