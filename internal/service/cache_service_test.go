package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-exam-api/internal/models"
)

type cacheStoreStub struct {
	entries map[string][]byte
	getErr  error
	sets    int
}

func (c *cacheStoreStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if c.getErr != nil {
		return false, c.getErr
	}
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *cacheStoreStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.sets++
	c.entries[key] = raw
	return nil
}

type countingTemplateStub struct {
	templateStub
	calls int
}

func (t *countingTemplateStub) GetLatestPublished(ctx context.Context, id string) (*models.ExamTemplate, error) {
	t.calls++
	return t.templateStub.GetLatestPublished(ctx, id)
}

func TestCachedTemplateReaderServesRepeatLookupsFromCache(t *testing.T) {
	source := &countingTemplateStub{templateStub: templateStub{templates: map[string]*models.ExamTemplate{
		"tpl-1": {ID: "tpl-1", Version: 3, Title: "Algebra", DurationMinutes: 60, SLAHours: 24, Published: true},
	}}}
	cache := &cacheStoreStub{entries: map[string][]byte{}}
	metrics := NewMetricsService()
	reader := NewCachedTemplateReader(source, cache, time.Minute, metrics, nil)

	first, err := reader.GetLatestPublished(context.Background(), "tpl-1")
	require.NoError(t, err)
	second, err := reader.GetLatestPublished(context.Background(), "tpl-1")
	require.NoError(t, err)

	assert.Equal(t, 1, source.calls)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, "Algebra", second.Title)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("exam_template", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("exam_template", "miss")))
}

func TestCachedTemplateReaderDoesNotCacheMissingTemplates(t *testing.T) {
	source := &countingTemplateStub{templateStub: templateStub{templates: map[string]*models.ExamTemplate{}}}
	cache := &cacheStoreStub{entries: map[string][]byte{}}
	reader := NewCachedTemplateReader(source, cache, time.Minute, nil, nil)

	_, err := reader.GetLatestPublished(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.Zero(t, cache.sets)
}

func TestCachedTemplateReaderFallsBackOnCacheError(t *testing.T) {
	source := &countingTemplateStub{templateStub: templateStub{templates: map[string]*models.ExamTemplate{
		"tpl-1": {ID: "tpl-1", Version: 1},
	}}}
	cache := &cacheStoreStub{entries: map[string][]byte{}, getErr: errors.New("redis down")}
	reader := NewCachedTemplateReader(source, cache, time.Minute, nil, nil)

	tpl, err := reader.GetLatestPublished(context.Background(), "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, 1, tpl.Version)
	assert.Equal(t, 1, source.calls)
}

func TestCachedTemplateReaderDisabledWithoutTTL(t *testing.T) {
	source := &countingTemplateStub{templateStub: templateStub{templates: map[string]*models.ExamTemplate{
		"tpl-1": {ID: "tpl-1", Version: 1},
	}}}
	cache := &cacheStoreStub{entries: map[string][]byte{}}
	reader := NewCachedTemplateReader(source, cache, 0, nil, nil)

	for i := 0; i < 2; i++ {
		_, err := reader.GetLatestPublished(context.Background(), "tpl-1")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, source.calls)
	assert.Zero(t, cache.sets)
}
