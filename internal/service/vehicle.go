package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/langchou/carwatch/internal/cache"
	"github.com/langchou/carwatch/internal/metrics"
	"github.com/langchou/carwatch/internal/models"
)

// Outcome 车辆查询结果类型
type Outcome int

const (
	// OutcomeOK 有车辆数据（来自缓存或实时抓取）
	OutcomeOK Outcome = iota
	// OutcomeNotAuthorized 没有任何品牌令牌
	OutcomeNotAuthorized
	// OutcomeNoVehicles 有令牌但没有得到任何车辆
	OutcomeNoVehicles
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotAuthorized:
		return "not_authorized"
	case OutcomeNoVehicles:
		return "no_vehicles"
	default:
		return "unknown"
	}
}

// VehiclesResult 车辆查询结果
type VehiclesResult struct {
	Outcome   Outcome
	Vehicles  []models.VehicleSnapshot
	FromCache bool
	CachedAt  time.Time // 仅 FromCache 时有值
}

// VehicleService 处理车辆数据请求
type VehicleService struct {
	store     TokenStore
	refresher *TokenRefresher
	fetcher   *VehicleFetcher
	cache     SnapshotCache
	notes     NotesReader
	logger    *zap.Logger
	metrics   metrics.Recorder

	group singleflight.Group
}

// NewVehicleService 创建车辆服务，notes 为 nil 时不附带备注
func NewVehicleService(
	store TokenStore,
	refresher *TokenRefresher,
	fetcher *VehicleFetcher,
	cache SnapshotCache,
	notes NotesReader,
	logger *zap.Logger,
	rec metrics.Recorder,
) *VehicleService {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &VehicleService{
		store:     store,
		refresher: refresher,
		fetcher:   fetcher,
		cache:     cache,
		notes:     notes,
		logger:    logger,
		metrics:   rec,
	}
}

// Vehicles 返回所有车辆
//
// 每次请求都从存储读取令牌；缓存命中直接返回，未命中时同步刷新令牌并抓取，
// 并发的未命中请求共享同一次抓取。
func (s *VehicleService) Vehicles(ctx context.Context) (*VehiclesResult, error) {
	records, err := s.store.ReadAll(ctx)
	if err != nil {
		s.logger.Warn("Token store unreadable, treating as empty", zap.Error(err))
	}
	if len(records) == 0 {
		s.logger.Warn("No tokens found")
		return &VehiclesResult{Outcome: OutcomeNotAuthorized}, nil
	}

	if cached, ok := s.cache.Get(); ok {
		s.metrics.RecordCacheLookup(true)
		s.logger.Debug("Serving vehicle data from cache")
		storedAt, _ := s.cache.StoredAt()
		return &VehiclesResult{
			Outcome:   OutcomeOK,
			Vehicles:  s.attachNotes(cached),
			FromCache: true,
			CachedAt:  storedAt,
		}, nil
	}
	s.metrics.RecordCacheLookup(false)

	s.logger.Info("No cached vehicle data found, fetching")

	// 抓取不跟随单个请求取消，品牌超时保证不会无限等待
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(cache.AllVehiclesKey, func() (interface{}, error) {
		return s.fetch(fetchCtx, records), nil
	})

	var snapshots []models.VehicleSnapshot
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		snapshots = models.CloneSnapshots(res.Val.([]models.VehicleSnapshot))
	}

	if len(snapshots) == 0 {
		return &VehiclesResult{Outcome: OutcomeNoVehicles}, nil
	}

	return &VehiclesResult{
		Outcome:  OutcomeOK,
		Vehicles: s.attachNotes(snapshots),
	}, nil
}

// CachedVehicles 只读缓存，不触发抓取
func (s *VehicleService) CachedVehicles() []models.VehicleSnapshot {
	cached, ok := s.cache.Get()
	if !ok {
		return []models.VehicleSnapshot{}
	}
	return s.attachNotes(cached)
}

// Invalidate 清空缓存，下次请求重新抓取
func (s *VehicleService) Invalidate() {
	s.cache.Invalidate()
}

func (s *VehicleService) fetch(ctx context.Context, records []models.TokenRecord) []models.VehicleSnapshot {
	records = s.refresher.RefreshExpired(ctx, records)
	snapshots := s.fetcher.FetchAll(ctx, records)

	if len(snapshots) == 0 {
		s.logger.Warn("No vehicle details fetched")
		return snapshots
	}

	s.cache.Set(snapshots)
	s.logger.Info("Vehicle data cached", zap.Int("vehicles", len(snapshots)))
	return snapshots
}

// attachNotes 为每辆车附带备注，读取失败的车辆不带备注
func (s *VehicleService) attachNotes(snapshots []models.VehicleSnapshot) []models.VehicleSnapshot {
	if s.notes == nil {
		return snapshots
	}
	for i := range snapshots {
		if snapshots[i].VehicleID == "" {
			continue
		}
		notes, err := s.notes.Read(snapshots[i].VehicleID)
		if err != nil {
			s.logger.Warn("Failed to read notes", zap.String("vehicle_id", snapshots[i].VehicleID), zap.Error(err))
			continue
		}
		snapshots[i].Notes = notes
	}
	return snapshots
}
