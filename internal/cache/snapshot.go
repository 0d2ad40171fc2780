// Package cache 保存最近一次成功聚合的车辆快照
package cache

import (
	"sync"
	"time"

	"github.com/langchou/carwatch/internal/models"
)

// AllVehiclesKey 全部车辆快照的缓存键
const AllVehiclesKey = "allVehicles"

// entry 缓存条目
type entry struct {
	value    []models.VehicleSnapshot
	storedAt time.Time
	expireAt time.Time
}

// SnapshotCache 带 TTL 的快照缓存，后台定期清理过期条目
type SnapshotCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	sweep   time.Duration
	now     func() time.Time

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// Option 缓存选项
type Option func(*SnapshotCache)

// WithClock 替换时钟，测试使用
func WithClock(now func() time.Time) Option {
	return func(c *SnapshotCache) {
		c.now = now
	}
}

// New 创建缓存，ttl 为条目有效期，sweep 为清理间隔
func New(ttl, sweep time.Duration, opts ...Option) *SnapshotCache {
	c := &SnapshotCache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		sweep:   sweep,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get 返回未过期的快照副本
func (c *SnapshotCache) Get() ([]models.VehicleSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[AllVehiclesKey]
	if !ok || !c.now().Before(e.expireAt) {
		return nil, false
	}
	return models.CloneSnapshots(e.value), true
}

// Set 无条件覆盖缓存并重置 TTL
// 调用方负责不要用空结果覆盖有效缓存
func (c *SnapshotCache) Set(value []models.VehicleSnapshot) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[AllVehiclesKey] = &entry{
		value:    models.CloneSnapshots(value),
		storedAt: now,
		expireAt: now.Add(c.ttl),
	}
}

// StoredAt 返回缓存写入时间
func (c *SnapshotCache) StoredAt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[AllVehiclesKey]
	if !ok {
		return time.Time{}, false
	}
	return e.storedAt, true
}

// Invalidate 删除缓存
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, AllVehiclesKey)
}

// Len 当前条目数（包括尚未清理的过期条目）
func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Start 启动后台清理
func (c *SnapshotCache) Start() {
	if c.sweep <= 0 {
		return
	}
	c.wg.Add(1)
	go c.cleanupLoop()
}

// Stop 停止后台清理
func (c *SnapshotCache) Stop() {
	c.stopped.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

func (c *SnapshotCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.DeleteExpired()
		}
	}
}

// DeleteExpired 清理过期条目
func (c *SnapshotCache) DeleteExpired() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if !now.Before(e.expireAt) {
			delete(c.entries, key)
		}
	}
}
