package store

import (
	"context"
	"sort"

	"github.com/dilwearus-ops/neochat-server/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ToggleReaction 存在则删除，不存在则插入。返回操作后该三元组是否存在。
func (s *Store) ToggleReaction(ctx context.Context, messageID uint, username, emoji string) (bool, error) {
	var added bool
	err := s.write(ctx, func(tx *gorm.DB) error {
		if err := mustExist(tx, messageID); err != nil {
			return err
		}
		res := tx.Where("message_id = ? AND username = ? AND emoji = ?", messageID, username, emoji).
			Delete(&models.Reaction{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		added = true
		return tx.Create(&models.Reaction{MessageID: messageID, Username: username, Emoji: emoji}).Error
	})
	return added, translate(err)
}

// Reactions 返回 message → emoji → 用户名列表。没有反应的消息不出现在结果中。
func (s *Store) Reactions(ctx context.Context, ids []uint) (map[uint]map[string][]string, error) {
	out := make(map[uint]map[string][]string)
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Reaction
	if err := s.read(ctx).Where("message_id IN ?", ids).Order("message_id, emoji, username").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		byEmoji, ok := out[r.MessageID]
		if !ok {
			byEmoji = make(map[string][]string)
			out[r.MessageID] = byEmoji
		}
		byEmoji[r.Emoji] = append(byEmoji[r.Emoji], r.Username)
	}
	return out, nil
}

// Vote 记录投票；同一用户再次投票覆盖之前的选项。
func (s *Store) Vote(ctx context.Context, messageID uint, username string, option int) error {
	return translate(s.write(ctx, func(tx *gorm.DB) error {
		var m models.Message
		if err := tx.Select("id", "mtype").First(&m, messageID).Error; err != nil {
			return err
		}
		if m.Type != models.TypePoll {
			return ErrNotFound
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"option_index"}),
		}).Create(&models.PollVote{MessageID: messageID, Username: username, OptionIndex: option}).Error
	}))
}

// PollResults 返回 message → 选项下标 → 投票用户名（按名称排序）。
func (s *Store) PollResults(ctx context.Context, ids []uint) (map[uint]map[int][]string, error) {
	out := make(map[uint]map[int][]string)
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.PollVote
	if err := s.read(ctx).Where("message_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		byOption, ok := out[r.MessageID]
		if !ok {
			byOption = make(map[int][]string)
			out[r.MessageID] = byOption
		}
		byOption[r.OptionIndex] = append(byOption[r.OptionIndex], r.Username)
	}
	for _, byOption := range out {
		for _, names := range byOption {
			sort.Strings(names)
		}
	}
	return out, nil
}

// ToggleBookmark 切换用户的收藏，并按是否仍有任何收藏重算消息的 is_bookmarked。
// 返回操作后该用户是否收藏了这条消息。
func (s *Store) ToggleBookmark(ctx context.Context, username string, messageID uint) (bool, error) {
	var added bool
	err := s.write(ctx, func(tx *gorm.DB) error {
		if err := mustExist(tx, messageID); err != nil {
			return err
		}
		res := tx.Where("username = ? AND message_id = ?", username, messageID).Delete(&models.Bookmark{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			added = true
			if err := tx.Create(&models.Bookmark{Username: username, MessageID: messageID}).Error; err != nil {
				return err
			}
		}
		var remaining int64
		if err := tx.Model(&models.Bookmark{}).Where("message_id = ?", messageID).Count(&remaining).Error; err != nil {
			return err
		}
		return tx.Model(&models.Message{}).Where("id = ?", messageID).Update("is_bookmarked", remaining > 0).Error
	})
	return added, translate(err)
}

func mustExist(tx *gorm.DB, messageID uint) error {
	var count int64
	if err := tx.Model(&models.Message{}).Where("id = ?", messageID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}
