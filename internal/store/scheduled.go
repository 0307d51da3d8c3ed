package store

import (
	"context"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/models"

	"gorm.io/gorm"
)

func (s *Store) ScheduleMessage(ctx context.Context, m *models.ScheduledMessage) error {
	m.ScheduledFor = utc(m.ScheduledFor)
	m.Sent = false
	return translate(s.write(ctx, func(tx *gorm.DB) error {
		return tx.Create(m).Error
	}))
}

// DueScheduled 返回到期且尚未发送的定时消息，按到期时间升序。
func (s *Store) DueScheduled(ctx context.Context, now time.Time, limit int) ([]models.ScheduledMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.ScheduledMessage
	err := s.read(ctx).
		Where("sent = ? AND scheduled_for <= ?", false, utc(now)).
		Order("scheduled_for asc, id asc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkScheduledSent 把 sent 从 false 改为 true。只有真正完成这次修改的调用方得到 true，
// 并发的两次 tick 中只有一方会投递同一条消息。
func (s *Store) MarkScheduledSent(ctx context.Context, id uint) (bool, error) {
	var claimed bool
	err := s.write(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.ScheduledMessage{}).
			Where("id = ? AND sent = ?", id, false).
			Update("sent", true)
		claimed = res.RowsAffected == 1
		return res.Error
	})
	return claimed, translate(err)
}
