package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/care-roster-api/pkg/errors"
)

type memoryCacheRepo struct {
	items   map[string][]byte
	getErr  error
	deleted []string
}

func (r *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if r.getErr != nil {
		return r.getErr
	}
	raw, ok := r.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.items[key] = raw
	return nil
}

func (r *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	for key := range r.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(r.items, key)
			r.deleted = append(r.deleted, key)
		}
	}
	return nil
}

func TestRosterCacheKeys(t *testing.T) {
	assert.Equal(t, "roster:plan:p1:2025-06", RosterPlanKey("p1", 2025, 6))
	assert.Equal(t, "roster:plan:*:2025-06", RosterMonthPattern(2025, 6))
	ok, err := path.Match(RosterMonthPattern(2025, 6), RosterPlanKey("p7", 2025, 6))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheServiceRoundTripAndInvalidate(t *testing.T) {
	repo := &memoryCacheRepo{items: map[string][]byte{}}
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, nil, true)
	ctx := context.Background()

	var out map[string]int
	hit, err := svc.Get(ctx, RosterPlanKey("p1", 2025, 6), &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, RosterPlanKey("p1", 2025, 6), map[string]int{"unfilled": 2}, 0))
	require.NoError(t, svc.Set(ctx, RosterPlanKey("p2", 2025, 7), map[string]int{"unfilled": 0}, 0))
	hit, err = svc.Get(ctx, RosterPlanKey("p1", 2025, 6), &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 2, out["unfilled"])

	require.NoError(t, svc.Invalidate(ctx, RosterMonthPattern(2025, 6)))
	assert.Equal(t, []string{"roster:plan:p1:2025-06"}, repo.deleted)
	assert.Contains(t, repo.items, RosterPlanKey("p2", 2025, 7))
}

func TestCacheServiceDisabled(t *testing.T) {
	svc := NewCacheService(nil, nil, 0, nil, true)
	assert.False(t, svc.Enabled())
	hit, err := svc.Get(context.Background(), "k", &struct{}{})
	assert.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, svc.Set(context.Background(), "k", 1, 0))

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
}

func TestCacheServiceSurfacesBackendErrors(t *testing.T) {
	repo := &memoryCacheRepo{items: map[string][]byte{}, getErr: errors.New("redis down")}
	svc := NewCacheService(repo, nil, 0, nil, true)

	hit, err := svc.Get(context.Background(), "k", &struct{}{})
	assert.Error(t, err)
	assert.False(t, hit)
}
