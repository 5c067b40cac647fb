package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/llm-mail-triage/internal/adapters/cache"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"go.uber.org/zap"
)

// CacheFactory creates verdict caches based on configuration
type CacheFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCacheFactory creates a new cache factory
func NewCacheFactory(cfg *config.Config, logger *zap.Logger) *CacheFactory {
	return &CacheFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateVerdictCache creates a verdict cache, or returns nil when caching is disabled
func (f *CacheFactory) CreateVerdictCache(ctx context.Context) (core.VerdictCache, error) {
	c, err := f.cfg.GetCache()
	if err != nil {
		return nil, err
	}
	if !c.Enabled {
		f.logger.Info("Verdict cache disabled")
		return nil, nil
	}

	switch c.Type {
	case "memory":
		return cache.NewMemoryCache(f.logger, c.CleanupFrequency), nil
	case "sqlite":
		if dir := filepath.Dir(c.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
			}
		}
		return cache.NewSQLiteCache(c.SQLitePath, f.logger, c.CleanupFrequency)
	case "mysql":
		return cache.NewMySQLCache(ctx, c.MySQLDSN, f.logger, c.CleanupFrequency)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", c.Type)
	}
}
