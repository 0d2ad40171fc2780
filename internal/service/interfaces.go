package service

import (
	"context"
	"time"

	"github.com/langchou/carwatch/internal/api/smartcar"
	"github.com/langchou/carwatch/internal/models"
)

// TokenStore 品牌令牌的持久化存储
// ReadAll 失败时返回空列表和错误；Upsert 的错误只用于上报，调用方不中断流程
type TokenStore interface {
	ReadAll(ctx context.Context) ([]models.TokenRecord, error)
	Upsert(ctx context.Context, record models.TokenRecord) error
}

// AuthProvider 刷新令牌交换
type AuthProvider interface {
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (*smartcar.Access, error)
}

// VehicleAPI 车辆数据接口
type VehicleAPI interface {
	ListVehicles(ctx context.Context, accessToken string) ([]string, error)
	Attributes(ctx context.Context, vehicleID, accessToken string) (*smartcar.Attributes, error)
	Location(ctx context.Context, vehicleID, accessToken string) (*smartcar.Location, error)
	Odometer(ctx context.Context, vehicleID, accessToken string) (*smartcar.Odometer, error)
}

// SnapshotCache 快照缓存
type SnapshotCache interface {
	Get() ([]models.VehicleSnapshot, bool)
	Set(value []models.VehicleSnapshot)
	StoredAt() (time.Time, bool)
	Invalidate()
}

// NotesReader 读取车辆备注
type NotesReader interface {
	Read(vehicleID string) ([]models.Note, error)
}
