/**
 * Storage Manager for the OCR Text Service
 *
 * Coordinates the PostgreSQL job store and the Redis result cache. Either
 * backend may be disabled; calls against a missing backend are no-ops for
 * writes and report ErrStoreDisabled for job reads.
 */

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrStoreDisabled is returned by job reads when no database is configured
var ErrStoreDisabled = errors.New("job store not configured")

// StorageManager coordinates PostgreSQL and Redis operations
type StorageManager struct {
	postgres *PostgresClient
	cache    *RedisCache
}

// Options selects the backends to connect; empty URLs disable a backend
type Options struct {
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration
}

// NewStorageManager connects the configured backends and ensures the job schema
func NewStorageManager(ctx context.Context, opts Options) (*StorageManager, error) {
	sm := &StorageManager{}

	if opts.DatabaseURL != "" {
		postgres, err := NewPostgresClient(opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
		}
		if err := postgres.EnsureSchema(ctx); err != nil {
			postgres.Close() // Cleanup on failure
			return nil, err
		}
		sm.postgres = postgres
	}

	if opts.RedisURL != "" {
		cache, err := NewRedisCache(opts.RedisURL, opts.CacheTTL)
		if err != nil {
			sm.Close() // Cleanup on failure
			return nil, fmt.Errorf("failed to initialize Redis cache: %w", err)
		}
		sm.cache = cache
	}

	return sm, nil
}

// HasJobStore reports whether job records are persisted
func (sm *StorageManager) HasJobStore() bool {
	return sm != nil && sm.postgres != nil
}

// UpdateJobStatus updates job status in PostgreSQL
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if !sm.HasJobStore() {
		return nil
	}
	return sm.postgres.UpdateJobStatus(ctx, sanitizeUpdate(update))
}

// sanitizeUpdate returns a copy of update with TEXT columns cleaned. The
// caller's Pages slice is often the one handed back to clients.
func sanitizeUpdate(update *JobUpdate) *JobUpdate {
	clean := *update
	clean.Text = sanitizeText(update.Text)
	clean.ErrorMessage = sanitizeText(update.ErrorMessage)
	if update.Pages != nil {
		clean.Pages = make([]string, len(update.Pages))
		for i, p := range update.Pages {
			clean.Pages[i] = sanitizeText(p)
		}
	}
	return &clean
}

// GetJob retrieves a job by ID
func (sm *StorageManager) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if !sm.HasJobStore() {
		return nil, ErrStoreDisabled
	}
	return sm.postgres.GetJob(ctx, jobID)
}

// GetCachedResult returns a cached result, nil on a miss or when caching is off
func (sm *StorageManager) GetCachedResult(ctx context.Context, key string) (*CachedResult, error) {
	if sm == nil || sm.cache == nil {
		return nil, nil
	}
	return sm.cache.Get(ctx, key)
}

// CacheResult stores a result when caching is on
func (sm *StorageManager) CacheResult(ctx context.Context, key string, result *CachedResult) error {
	if sm == nil || sm.cache == nil {
		return nil
	}
	return sm.cache.Set(ctx, key, result)
}

// Ping checks every configured backend
func (sm *StorageManager) Ping(ctx context.Context) error {
	if sm == nil {
		return nil
	}
	if sm.postgres != nil {
		if err := sm.postgres.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if sm.cache != nil {
		if err := sm.cache.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// GetStats returns connection pool statistics
func (sm *StorageManager) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"postgres": nil,
		"redis":    nil,
	}
	if sm.HasJobStore() {
		pgStats := sm.postgres.GetStats()
		stats["postgres"] = map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		}
	}
	if sm != nil && sm.cache != nil {
		poolStats := sm.cache.client.PoolStats()
		stats["redis"] = map[string]interface{}{
			"hits":        poolStats.Hits,
			"misses":      poolStats.Misses,
			"total_conns": poolStats.TotalConns,
			"idle_conns":  poolStats.IdleConns,
		}
	}
	return stats
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	if sm == nil {
		return nil
	}

	var pgErr, redisErr error

	if sm.postgres != nil {
		pgErr = sm.postgres.Close()
	}

	if sm.cache != nil {
		redisErr = sm.cache.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}

	if redisErr != nil {
		return fmt.Errorf("failed to close Redis: %w", redisErr)
	}

	return nil
}

// sanitizeText strips NUL bytes, which PostgreSQL TEXT columns reject, and
// other C0 controls OCR engines occasionally emit. Tabs and newlines stay.
func sanitizeText(s string) string {
	if !strings.ContainsFunc(s, isBadControl) {
		return s
	}
	var b bytes.Buffer
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == 0:
		case isBadControl(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isBadControl(r rune) bool {
	return r < 0x20 && r != '\n' && r != '\t' && r != '\r'
}
