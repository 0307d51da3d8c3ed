package store

import (
	"context"

	"github.com/dilwearus-ops/neochat-server/internal/models"

	"gorm.io/gorm"
)

func (s *Store) CreateInvite(ctx context.Context, inv *models.InviteCode) error {
	inv.CreatedAt = utc(inv.CreatedAt)
	inv.ExpiresAt = utc(inv.ExpiresAt)
	return translate(s.write(ctx, func(tx *gorm.DB) error {
		return tx.Create(inv).Error
	}))
}

// Invite 按邀请码读取记录，不检查是否过期。
func (s *Store) Invite(ctx context.Context, code string) (*models.InviteCode, error) {
	var inv models.InviteCode
	if err := s.read(ctx).Where("code = ?", code).First(&inv).Error; err != nil {
		return nil, translate(err)
	}
	return &inv, nil
}
