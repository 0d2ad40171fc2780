package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/langchou/carwatch/internal/api/smartcar"
	"github.com/langchou/carwatch/internal/models"
)

var errUpstream = errors.New("upstream failure")

// fakeStore 内存令牌存储
type fakeStore struct {
	mu       sync.Mutex
	records  []models.TokenRecord
	readErr  error
	writeErr error
	reads    int
	writes   int
	// 第 N 次读取开始失败，0 表示不启用
	failReadsFrom int
}

func newFakeStore(records ...models.TokenRecord) *fakeStore {
	return &fakeStore{records: append([]models.TokenRecord{}, records...)}
}

func (s *fakeStore) ReadAll(ctx context.Context) ([]models.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil || (s.failReadsFrom > 0 && s.reads >= s.failReadsFrom) {
		err := s.readErr
		if err == nil {
			err = errors.New("read failed")
		}
		return []models.TokenRecord{}, err
	}
	return append([]models.TokenRecord{}, s.records...), nil
}

func (s *fakeStore) Upsert(ctx context.Context, record models.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes++
	for i := range s.records {
		if s.records[i].Brand == record.Brand {
			s.records[i] = record
			return nil
		}
	}
	s.records = append(s.records, record)
	return nil
}

func (s *fakeStore) snapshot() []models.TokenRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TokenRecord{}, s.records...)
}

// fakeAuth 刷新令牌交换
type fakeAuth struct {
	mu        sync.Mutex
	calls     []string
	failFor   map[string]bool // 按 refresh token 失败
	expiresIn int64
}

func (a *fakeAuth) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*smartcar.Access, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, refreshToken)
	if a.failFor[refreshToken] {
		return nil, errUpstream
	}
	expiresIn := a.expiresIn
	if expiresIn == 0 {
		expiresIn = 7200
	}
	return &smartcar.Access{
		AccessToken:  "new-access-" + refreshToken,
		RefreshToken: "new-refresh-" + refreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

func (a *fakeAuth) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

// fakeVehicle 单车数据
type fakeVehicle struct {
	make, model string
	year        int
	lat, lng    float64
	distance    float64
	unitSystem  string
	fail        bool
	delay       time.Duration
}

// fakeAPI 车辆数据接口
type fakeAPI struct {
	mu        sync.Mutex
	lists     map[string][]string // access token -> vehicle ids
	listErr   map[string]error
	vehicles  map[string]fakeVehicle
	listCalls int32
	callCount int32
	// 非 nil 时 ListVehicles 会阻塞直到关闭
	gate chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		lists:    make(map[string][]string),
		listErr:  make(map[string]error),
		vehicles: make(map[string]fakeVehicle),
	}
}

func (f *fakeAPI) ListVehicles(ctx context.Context, accessToken string) ([]string, error) {
	atomic.AddInt32(&f.listCalls, 1)
	atomic.AddInt32(&f.callCount, 1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[accessToken]; err != nil {
		return nil, err
	}
	return append([]string{}, f.lists[accessToken]...), nil
}

func (f *fakeAPI) vehicle(ctx context.Context, id string) (fakeVehicle, error) {
	atomic.AddInt32(&f.callCount, 1)
	f.mu.Lock()
	v, ok := f.vehicles[id]
	f.mu.Unlock()
	if !ok || v.fail {
		return fakeVehicle{}, errUpstream
	}
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
			return fakeVehicle{}, ctx.Err()
		}
	}
	return v, nil
}

func (f *fakeAPI) Attributes(ctx context.Context, vehicleID, accessToken string) (*smartcar.Attributes, error) {
	v, err := f.vehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	return &smartcar.Attributes{ID: vehicleID, Make: v.make, Model: v.model, Year: v.year}, nil
}

func (f *fakeAPI) Location(ctx context.Context, vehicleID, accessToken string) (*smartcar.Location, error) {
	v, err := f.vehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	return &smartcar.Location{Latitude: v.lat, Longitude: v.lng}, nil
}

func (f *fakeAPI) Odometer(ctx context.Context, vehicleID, accessToken string) (*smartcar.Odometer, error) {
	v, err := f.vehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	distance := v.distance
	return &smartcar.Odometer{Distance: &distance, Meta: smartcar.Meta{UnitSystem: v.unitSystem}}, nil
}

func (f *fakeAPI) listCount() int32 {
	return atomic.LoadInt32(&f.listCalls)
}

func (f *fakeAPI) calls() int32 {
	return atomic.LoadInt32(&f.callCount)
}

// fakeNotes 备注读取
type fakeNotes struct {
	notes map[string][]models.Note
	err   error
}

func (n *fakeNotes) Read(vehicleID string) ([]models.Note, error) {
	if n.err != nil {
		return nil, n.err
	}
	return append([]models.Note{}, n.notes[vehicleID]...), nil
}

func liveToken(brand string) models.TokenRecord {
	return models.TokenRecord{
		Brand:        brand,
		AccessToken:  brand + "-access",
		RefreshToken: brand + "-refresh",
		Expiration:   time.Now().Add(time.Hour).UnixMilli(),
	}
}

func expiredToken(brand string) models.TokenRecord {
	return models.TokenRecord{
		Brand:        brand,
		AccessToken:  brand + "-access",
		RefreshToken: brand + "-refresh",
		Expiration:   time.Now().Add(-time.Minute).UnixMilli(),
	}
}
