package store

import (
	"context"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/models"

	"gorm.io/gorm"
)

func (s *Store) SaveRefreshToken(ctx context.Context, userID uint, token string, expiresAt time.Time) error {
	return translate(s.write(ctx, func(tx *gorm.DB) error {
		return tx.Create(&models.RefreshToken{UserID: userID, Token: token, ExpiresAt: utc(expiresAt)}).Error
	}))
}

// RotateRefreshToken 校验并吊销旧 token，同时写入新 token（旋转刷新）。
// 旧 token 不存在、已吊销或已过期时返回 ErrNotFound。
func (s *Store) RotateRefreshToken(ctx context.Context, old, next string, nextExpiry time.Time) (uint, error) {
	var userID uint
	err := s.write(ctx, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		var rt models.RefreshToken
		if err := tx.Where("token = ? AND revoked_at IS NULL AND expires_at > ?", old, now).First(&rt).Error; err != nil {
			return err
		}
		if err := tx.Model(&rt).Update("revoked_at", &now).Error; err != nil {
			return err
		}
		userID = rt.UserID
		return tx.Create(&models.RefreshToken{UserID: rt.UserID, Token: next, ExpiresAt: utc(nextExpiry)}).Error
	})
	return userID, translate(err)
}
