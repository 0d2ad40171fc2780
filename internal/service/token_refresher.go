package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/carwatch/internal/metrics"
	"github.com/langchou/carwatch/internal/models"
)

// TokenRefresher 刷新过期的品牌令牌
type TokenRefresher struct {
	store   TokenStore
	auth    AuthProvider
	logger  *zap.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewTokenRefresher 创建令牌刷新器
func NewTokenRefresher(store TokenStore, auth AuthProvider, logger *zap.Logger, rec metrics.Recorder) *TokenRefresher {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &TokenRefresher{
		store:   store,
		auth:    auth,
		logger:  logger,
		metrics: rec,
		now:     time.Now,
	}
}

// RefreshExpired 刷新所有已过期的令牌
//
// 单个品牌刷新失败只记录日志，不影响其他品牌，原记录保持不变。
// 只要有一个刷新成功，就从存储重新读取并返回，调用方看到的始终是已落盘的状态；
// 全部未刷新时原样返回 records。
func (r *TokenRefresher) RefreshExpired(ctx context.Context, records []models.TokenRecord) []models.TokenRecord {
	now := r.now()
	refreshed := make(map[string]models.TokenRecord)

	for _, record := range records {
		if !record.Expired(now) {
			continue
		}

		r.logger.Info("Access token expired, refreshing", zap.String("brand", record.Brand))

		updated, err := r.refresh(ctx, record)
		if err != nil {
			r.logger.Error("Error refreshing access token", zap.String("brand", record.Brand), zap.Error(err))
			r.metrics.RecordTokenRefresh(record.Brand, false)
			continue
		}

		r.metrics.RecordTokenRefresh(record.Brand, true)
		refreshed[models.NormalizeBrand(record.Brand)] = updated
		r.logger.Info("Access token refreshed", zap.String("brand", record.Brand), zap.Time("expires_at", updated.ExpiresAt()))
	}

	if len(refreshed) == 0 {
		return records
	}

	stored, err := r.store.ReadAll(ctx)
	if err != nil {
		r.logger.Warn("Failed to reload tokens after refresh, using refreshed copies", zap.Error(err))
		out := make([]models.TokenRecord, len(records))
		for i, record := range records {
			if updated, ok := refreshed[models.NormalizeBrand(record.Brand)]; ok {
				record = updated
			}
			out[i] = record
		}
		return out
	}

	return stored
}

// refresh 换取新令牌并持久化，失败时不产生任何修改
func (r *TokenRefresher) refresh(ctx context.Context, record models.TokenRecord) (models.TokenRecord, error) {
	access, err := r.auth.ExchangeRefreshToken(ctx, record.RefreshToken)
	if err != nil {
		return models.TokenRecord{}, err
	}

	updated := record
	updated.AccessToken = access.AccessToken
	if access.RefreshToken != "" {
		updated.RefreshToken = access.RefreshToken
	}
	updated.Expiration = r.now().UnixMilli() + access.ExpiresIn*1000

	if err := r.store.Upsert(ctx, updated); err != nil {
		return models.TokenRecord{}, err
	}
	return updated, nil
}
