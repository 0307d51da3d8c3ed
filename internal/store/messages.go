package store

import (
	"context"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/models"

	"gorm.io/gorm"
)

const (
	DefaultHistoryLimit = 50
	DefaultSearchLimit  = 100
	MaxSearchLimit      = 200
	threadLimit         = 50
)

// HistoryQuery 描述一个会话窗口。PM 上下文下 Target 是对方用户名，Viewer 是当前用户。
type HistoryQuery struct {
	Context  string
	Target   string
	Viewer   string
	Limit    int
	BeforeID uint
}

type MessageQuery struct {
	Context string
	Target  string
	Viewer  string
	Text    string
	Start   *time.Time
	End     *time.Time
	Limit   int
}

// SaveMessage 写入消息并回填自增 ID。
func (s *Store) SaveMessage(ctx context.Context, m *models.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.CreatedAt = utc(m.CreatedAt)
	return translate(s.write(ctx, func(tx *gorm.DB) error {
		return tx.Create(m).Error
	}))
}

func (s *Store) Message(ctx context.Context, id uint) (*models.Message, error) {
	var m models.Message
	if err := s.read(ctx).First(&m, id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func route(tx *gorm.DB, kind, target, viewer string) *gorm.DB {
	if kind == models.ContextPM {
		return tx.Where("context = ? AND ((sender = ? AND target = ?) OR (sender = ? AND target = ?))",
			models.ContextPM, viewer, target, target, viewer)
	}
	return tx.Where("context = ? AND target = ?", models.ContextRoom, target)
}

// History 返回会话最近的 Limit 条消息，按 ID 升序。
func (s *Store) History(ctx context.Context, q HistoryQuery) ([]models.Message, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	tx := route(s.read(ctx), q.Context, q.Target, q.Viewer)
	if q.BeforeID > 0 {
		tx = tx.Where("id < ?", q.BeforeID)
	}
	var msgs []models.Message
	if err := tx.Order("id desc").Limit(q.Limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

// SearchMessages 在一个会话内按文本子串和时间范围搜索，按 ID 升序。
func (s *Store) SearchMessages(ctx context.Context, q MessageQuery) ([]models.Message, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}
	if q.Limit > MaxSearchLimit {
		q.Limit = MaxSearchLimit
	}
	tx := route(s.read(ctx), q.Context, q.Target, q.Viewer)
	if q.Text != "" {
		tx = tx.Where("text LIKE ? ESCAPE '\\'", likePattern(q.Text))
	}
	if q.Start != nil {
		tx = tx.Where("created_at >= ?", utc(*q.Start))
	}
	if q.End != nil {
		tx = tx.Where("created_at <= ?", utc(*q.End))
	}
	var msgs []models.Message
	if err := tx.Order("id desc").Limit(q.Limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

// Thread 返回线程内的回复（不含根消息），按 ID 升序。
// 只包含与根消息同一会话且 viewer 能看到的回复。
func (s *Store) Thread(ctx context.Context, root *models.Message, viewer string) ([]models.Message, error) {
	target := root.Target
	if root.Context == models.ContextPM && root.Target == viewer {
		target = root.Sender
	}
	var msgs []models.Message
	err := route(s.read(ctx), root.Context, target, viewer).
		Where("thread_id = ?", root.ID).
		Order("id asc").
		Limit(threadLimit).
		Find(&msgs).Error
	return msgs, err
}

// EditMessage 只允许原作者修改文本。
func (s *Store) EditMessage(ctx context.Context, id uint, editor, text string) (*models.Message, error) {
	var m models.Message
	err := s.write(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&m, id).Error; err != nil {
			return err
		}
		if m.Sender != editor {
			return ErrForbidden
		}
		m.Text = text
		m.IsEdited = true
		return tx.Model(&m).Updates(map[string]any{"text": text, "is_edited": true}).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// DeleteMessage 删除消息及其反应、投票、收藏，并写入审计记录。返回被删除的消息。
func (s *Store) DeleteMessage(ctx context.Context, id uint, by, reason string) (*models.Message, error) {
	var m models.Message
	err := s.write(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&m, id).Error; err != nil {
			return err
		}
		for _, model := range []any{&models.Reaction{}, &models.PollVote{}, &models.Bookmark{}} {
			if err := tx.Where("message_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&models.Message{}, id).Error; err != nil {
			return err
		}
		return tx.Create(&models.DeletedMessage{
			MessageID: m.ID,
			Context:   m.Context,
			Target:    m.Target,
			Sender:    m.Sender,
			Text:      m.Text,
			DeletedBy: by,
			Reason:    reason,
			DeletedAt: time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// DeletedLog 返回房间的删除审计记录，最新的在前。
func (s *Store) DeletedLog(ctx context.Context, roomID string, limit int) ([]models.DeletedMessage, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	var rows []models.DeletedMessage
	err := s.read(ctx).
		Where("context = ? AND target = ?", models.ContextRoom, roomID).
		Order("id desc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkRead 把 sender 发给 reader 的未读私聊标记为已读，返回受影响的条数。
func (s *Store) MarkRead(ctx context.Context, sender, reader string) (int64, error) {
	var n int64
	err := s.write(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Message{}).
			Where("context = ? AND sender = ? AND target = ? AND is_read = ?", models.ContextPM, sender, reader, false).
			Update("is_read", true)
		n = res.RowsAffected
		return res.Error
	})
	return n, translate(err)
}

func reverse(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
