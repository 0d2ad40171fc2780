package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/carwatch/internal/models"
)

// PostgresTokenStore 基于 Postgres 的令牌存储
type PostgresTokenStore struct {
	db     *DB
	logger *zap.Logger
}

// NewPostgresTokenStore 创建令牌仓库
func NewPostgresTokenStore(db *DB, logger *zap.Logger) *PostgresTokenStore {
	return &PostgresTokenStore{db: db, logger: logger}
}

// ReadAll 获取所有令牌，失败时返回空列表和错误
func (r *PostgresTokenStore) ReadAll(ctx context.Context) ([]models.TokenRecord, error) {
	query := `
		SELECT brand, access_token, refresh_token, expiration
		FROM tokens ORDER BY created_at, brand
	`
	records := []models.TokenRecord{}

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		r.logger.Error("Error reading tokens", zap.Error(err))
		return records, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t models.TokenRecord
		if err := rows.Scan(&t.Brand, &t.AccessToken, &t.RefreshToken, &t.Expiration); err != nil {
			r.logger.Error("Error reading tokens", zap.Error(err))
			return []models.TokenRecord{}, fmt.Errorf("scan token: %w", err)
		}
		records = append(records, t)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Error reading tokens", zap.Error(err))
		return []models.TokenRecord{}, fmt.Errorf("iterate tokens: %w", err)
	}

	return records, nil
}

// Upsert 创建或更新品牌令牌
func (r *PostgresTokenStore) Upsert(ctx context.Context, record models.TokenRecord) error {
	query := `
		INSERT INTO tokens (brand, access_token, refresh_token, expiration, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (brand) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expiration = EXCLUDED.expiration,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Pool.Exec(ctx, query,
		models.NormalizeBrand(record.Brand),
		record.AccessToken,
		record.RefreshToken,
		record.Expiration,
		time.Now(),
	)
	if err != nil {
		r.logger.Error("Error writing tokens", zap.String("brand", record.Brand), zap.Error(err))
		return fmt.Errorf("upsert token: %w", err)
	}

	r.logger.Info("Tokens saved", zap.String("brand", record.Brand))
	return nil
}
