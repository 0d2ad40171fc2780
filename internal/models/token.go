package models

import (
	"strings"
	"time"
)

// TokenRecord 某个品牌的 OAuth 令牌记录
type TokenRecord struct {
	Brand        string `json:"brand" db:"brand"`
	AccessToken  string `json:"accessToken" db:"access_token"`
	RefreshToken string `json:"refreshToken" db:"refresh_token"`
	Expiration   int64  `json:"expiration" db:"expiration"` // 毫秒时间戳
}

// NewTokenRecord 根据 expiresIn（秒）计算过期时间
func NewTokenRecord(brand, accessToken, refreshToken string, expiresIn int64, now time.Time) TokenRecord {
	return TokenRecord{
		Brand:        NormalizeBrand(brand),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Expiration:   now.UnixMilli() + expiresIn*1000,
	}
}

// Expired 检查令牌是否已过期
func (t TokenRecord) Expired(now time.Time) bool {
	return now.UnixMilli() >= t.Expiration
}

// ExpiresAt 过期时间
func (t TokenRecord) ExpiresAt() time.Time {
	return time.UnixMilli(t.Expiration)
}

// NormalizeBrand 品牌统一为小写存储
func NormalizeBrand(brand string) string {
	return strings.ToLower(strings.TrimSpace(brand))
}
