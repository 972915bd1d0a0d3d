package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-api/internal/models"
)

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CachedTemplateReader keeps the latest published version of each template in
// Redis for a short TTL. Instances freeze the version they were started with,
// so a stale entry only delays pickup of a newly published version.
type CachedTemplateReader struct {
	source  templateReader
	cache   cacheStore
	ttl     time.Duration
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCachedTemplateReader wraps source. A nil cache or non-positive TTL disables caching.
func NewCachedTemplateReader(source templateReader, cache cacheStore, ttl time.Duration, metrics *MetricsService, logger *zap.Logger) *CachedTemplateReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedTemplateReader{source: source, cache: cache, ttl: ttl, metrics: metrics, logger: logger}
}

func (r *CachedTemplateReader) enabled() bool {
	return r.cache != nil && r.ttl > 0
}

// GetLatestPublished serves from cache when possible. Cache failures fall back to the source.
func (r *CachedTemplateReader) GetLatestPublished(ctx context.Context, id string) (*models.ExamTemplate, error) {
	if !r.enabled() {
		return r.source.GetLatestPublished(ctx, id)
	}
	key := "exam-template:" + id + ":latest"

	var cached models.ExamTemplate
	hit, err := r.cache.Get(ctx, key, &cached)
	if err != nil {
		r.logger.Warn("template cache get failed", zap.String("template_id", id), zap.Error(err))
	}
	r.metrics.CacheLookup("exam_template", hit)
	if hit {
		return &cached, nil
	}

	tpl, err := r.source.GetLatestPublished(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, key, tpl, r.ttl); err != nil {
		r.logger.Warn("template cache set failed", zap.String("template_id", id), zap.Error(err))
	}
	return tpl, nil
}
