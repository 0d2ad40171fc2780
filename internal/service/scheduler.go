package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/carwatch/internal/metrics"
	"github.com/langchou/carwatch/internal/models"
	"github.com/langchou/carwatch/internal/state"
)

// ErrRefreshInProgress 已有刷新在执行
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Scheduler 定时刷新令牌和车辆缓存
type Scheduler struct {
	store     TokenStore
	refresher *TokenRefresher
	fetcher   *VehicleFetcher
	cache     SnapshotCache
	logger    *zap.Logger
	metrics   metrics.Recorder
	interval  time.Duration
	machine   *state.Machine

	mu        sync.RWMutex
	listeners []func([]models.VehicleSnapshot)
	running   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewScheduler 创建刷新调度器
func NewScheduler(
	store TokenStore,
	refresher *TokenRefresher,
	fetcher *VehicleFetcher,
	cache SnapshotCache,
	logger *zap.Logger,
	rec metrics.Recorder,
	interval time.Duration,
) *Scheduler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	s := &Scheduler{
		store:     store,
		refresher: refresher,
		fetcher:   fetcher,
		cache:     cache,
		logger:    logger,
		metrics:   rec,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
	s.machine = state.NewMachine(func(from, to string) {
		s.logger.Debug("Refresh state changed", zap.String("from", from), zap.String("to", to))
	})
	return s
}

// OnUpdate 注册缓存更新回调，回调收到的是快照副本
func (s *Scheduler) OnUpdate(fn func([]models.VehicleSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// State 当前刷新任务状态
func (s *Scheduler) State() state.RunState {
	return s.machine.GetState()
}

// Start 同步执行首次刷新，成功后启动定时循环
// 首次刷新读取令牌存储失败时返回错误，服务不应继续启动
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info("Refresh scheduler already running, skipping start")
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("Running initial refresh")
	if err := s.RunOnce(ctx); err != nil {
		return fmt.Errorf("initial refresh: %w", err)
	}

	s.mu.Lock()
	s.stopCh = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Refresh scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop 停止定时循环并等待当前刷新结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Refresh scheduler stopped")
}

// loop 定时刷新循环，不管缓存是否仍然有效都会执行
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logger.Info("Refreshing cached vehicle data")
			if err := s.RunOnce(ctx); err != nil {
				if errors.Is(err, ErrRefreshInProgress) {
					s.logger.Warn("Previous refresh still running, skipping tick")
					continue
				}
				s.logger.Error("Error refreshing cached vehicle data", zap.Error(err))
			}
		}
	}
}

// RunOnce 执行一次 刷新令牌 -> 抓取车辆 -> 写缓存
// 同一时刻只会有一次执行，重叠调用返回 ErrRefreshInProgress
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.machine.TryStart() {
		return ErrRefreshInProgress
	}

	start := time.Now()
	count, err := s.cycle(ctx)
	s.machine.Finish(count, err)
	s.metrics.RecordRefreshCycle(time.Since(start), count, err)
	return err
}

func (s *Scheduler) cycle(ctx context.Context) (int, error) {
	records, err := s.store.ReadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("read tokens: %w", err)
	}

	records = s.refresher.RefreshExpired(ctx, records)
	snapshots := s.fetcher.FetchAll(ctx, records)

	// 空结果不覆盖已有缓存
	if len(snapshots) == 0 {
		s.logger.Warn("No vehicle data fetched during cache refresh")
		return 0, nil
	}

	s.cache.Set(snapshots)
	s.logger.Info("Cached vehicle data refreshed", zap.Int("vehicles", len(snapshots)))
	s.notify(snapshots)
	return len(snapshots), nil
}

func (s *Scheduler) notify(snapshots []models.VehicleSnapshot) {
	s.mu.RLock()
	listeners := append([]func([]models.VehicleSnapshot){}, s.listeners...)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(models.CloneSnapshots(snapshots))
	}
}
