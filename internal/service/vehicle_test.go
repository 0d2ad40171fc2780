package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/carwatch/internal/cache"
	"github.com/langchou/carwatch/internal/models"
)

type serviceFixture struct {
	store   *fakeStore
	auth    *fakeAuth
	api     *fakeAPI
	notes   *fakeNotes
	cache   *cache.SnapshotCache
	service *VehicleService
}

func newServiceFixture(records ...models.TokenRecord) *serviceFixture {
	f := &serviceFixture{
		store: newFakeStore(records...),
		auth:  &fakeAuth{},
		api:   newFakeAPI(),
		notes: &fakeNotes{notes: map[string][]models.Note{}},
		cache: cache.New(5*time.Minute, 0),
	}
	logger := zap.NewNop()
	refresher := NewTokenRefresher(f.store, f.auth, logger, nil)
	fetcher := NewVehicleFetcher(f.api, logger, nil, FetcherConfig{})
	f.service = NewVehicleService(f.store, refresher, fetcher, f.cache, f.notes, logger, nil)
	return f
}

func TestVehicles_NotAuthorizedWhenStoreEmpty(t *testing.T) {
	f := newServiceFixture()

	res, err := f.service.Vehicles(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeNotAuthorized, res.Outcome)
	assert.Empty(t, res.Vehicles)
	assert.Equal(t, int32(0), f.api.calls())
}

func TestVehicles_NotAuthorizedWhenStoreUnreadable(t *testing.T) {
	f := newServiceFixture(liveToken("toyota"))
	f.store.readErr = errors.New("corrupt file")

	res, err := f.service.Vehicles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotAuthorized, res.Outcome)
}

func TestVehicles_NoVehiclesIsDistinctFromNotAuthorized(t *testing.T) {
	f := newServiceFixture(liveToken("toyota"))

	res, err := f.service.Vehicles(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeNoVehicles, res.Outcome)
	assert.NotEqual(t, OutcomeNotAuthorized, res.Outcome)
	assert.Empty(t, res.Vehicles)

	_, cached := f.cache.Get()
	assert.False(t, cached, "empty result must not be cached")
}

func TestVehicles_FetchesThenServesFromCache(t *testing.T) {
	f := newServiceFixture(liveToken("toyota"))
	f.api.lists["toyota-access"] = []string{"v1", "v2"}
	f.api.vehicles["v1"] = fakeVehicle{make: "Toyota", model: "Prius", unitSystem: "metric", distance: 100}
	f.api.vehicles["v2"] = fakeVehicle{make: "Toyota", model: "RAV4", unitSystem: "imperial", distance: 100}

	first, err := f.service.Vehicles(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, first.Outcome)
	assert.False(t, first.FromCache)
	require.Len(t, first.Vehicles, 2)
	for _, v := range first.Vehicles {
		assert.Equal(t, "TOYOTA", v.Brand)
	}
	assert.Equal(t, 62, *first.Vehicles[0].MilesDriven)
	assert.Equal(t, 100, *first.Vehicles[1].MilesDriven)

	calls := f.api.calls()

	second, err := f.service.Vehicles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, second.Outcome)
	assert.True(t, second.FromCache)
	assert.False(t, second.CachedAt.IsZero())
	assert.Equal(t, first.Vehicles, second.Vehicles)
	assert.Equal(t, calls, f.api.calls(), "cache hit must not call the provider")
}

func TestVehicles_RefreshesExpiredTokenBeforeFetch(t *testing.T) {
	f := newServiceFixture(expiredToken("toyota"))
	f.api.lists["new-access-toyota-refresh"] = []string{"v1"}
	f.api.vehicles["v1"] = fakeVehicle{make: "Toyota", unitSystem: "imperial"}

	res, err := f.service.Vehicles(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Len(t, res.Vehicles, 1)
	assert.Equal(t, "new-access-toyota-refresh", f.store.snapshot()[0].AccessToken)
}

func TestVehicles_AttachesNotes(t *testing.T) {
	f := newServiceFixture(liveToken("toyota"))
	f.api.lists["toyota-access"] = []string{"v1"}
	f.api.vehicles["v1"] = fakeVehicle{make: "Toyota", unitSystem: "imperial"}
	f.notes.notes["v1"] = []models.Note{{ID: "n1", Date: "2024-01-01", Note: "oil change", Odometer: 1200}}

	res, err := f.service.Vehicles(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Vehicles, 1)
	assert.Equal(t, "oil change", res.Vehicles[0].Notes[0].Note)

	// 备注不进入缓存
	cached, ok := f.cache.Get()
	require.True(t, ok)
	assert.Empty(t, cached[0].Notes)

	// 新备注在缓存命中时也能看到
	f.notes.notes["v1"] = append(f.notes.notes["v1"], models.Note{ID: "n2", Note: "tires"})
	res, err = f.service.Vehicles(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Vehicles[0].Notes, 2)
}

func TestVehicles_ConcurrentMissesShareOneFetch(t *testing.T) {
	f := newServiceFixture(liveToken("toyota"))
	f.api.lists["toyota-access"] = []string{"v1"}
	f.api.vehicles["v1"] = fakeVehicle{make: "Toyota", unitSystem: "imperial"}
	f.api.gate = make(chan struct{})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*VehiclesResult, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.service.Vehicles(context.Background())
			assert.NoError(t, err)
			results[i] = res
		}()
	}

	require.Eventually(t, func() bool {
		return f.api.listCount() > 0
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.api.gate)
	wg.Wait()

	assert.LessOrEqual(t, int(f.api.listCount()), 2)
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, OutcomeOK, res.Outcome)
		assert.Len(t, res.Vehicles, 1)
	}
}

func TestVehicles_CallerCancelReturnsContextError(t *testing.T) {
	f := newServiceFixture(liveToken("toyota"))
	f.api.lists["toyota-access"] = []string{"v1"}
	f.api.vehicles["v1"] = fakeVehicle{make: "Toyota", unitSystem: "imperial"}
	f.api.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.service.Vehicles(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return f.api.listCount() > 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// 共享抓取继续完成并写入缓存
	close(f.api.gate)
	assert.Eventually(t, func() bool {
		_, ok := f.cache.Get()
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestCachedVehicles(t *testing.T) {
	f := newServiceFixture(liveToken("toyota"))
	assert.Empty(t, f.service.CachedVehicles())

	f.cache.Set([]models.VehicleSnapshot{{Brand: "TOYOTA", VehicleID: "v1"}})
	assert.Len(t, f.service.CachedVehicles(), 1)

	f.service.Invalidate()
	assert.Empty(t, f.service.CachedVehicles())
}
