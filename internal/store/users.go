package store

import (
	"context"

	"github.com/dilwearus-ops/neochat-server/internal/models"

	"gorm.io/gorm"
)

// CreateUser 创建用户；用户名已存在时返回 ErrConflict。
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	user := models.User{Username: username, PasswordHash: passwordHash, Status: models.DefaultStatus}
	err := s.write(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrConflict
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) UserByName(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.read(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.read(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// UsersByName 批量读取用户资料，缺失的用户名不会出现在结果中。
func (s *Store) UsersByName(ctx context.Context, names []string) (map[string]models.User, error) {
	out := make(map[string]models.User, len(names))
	if len(names) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.read(ctx).Where("username IN ?", names).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.Username] = u
	}
	return out, nil
}

func (s *Store) UpdateProfile(ctx context.Context, username, avatar, bio string) error {
	return s.updateUser(ctx, username, map[string]any{"avatar": avatar, "bio": bio})
}

func (s *Store) UpdateStatus(ctx context.Context, username, status string) error {
	return s.updateUser(ctx, username, map[string]any{"status": status})
}

func (s *Store) updateUser(ctx context.Context, username string, fields map[string]any) error {
	return translate(s.write(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("username = ?", username).Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	}))
}

// SearchUsers 按用户名子串搜索，可排除当前用户。
func (s *Store) SearchUsers(ctx context.Context, query, exclude string, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 20 {
		limit = 20
	}
	q := s.read(ctx).Where("username LIKE ? ESCAPE '\\'", likePattern(query))
	if exclude != "" {
		q = q.Where("username <> ?", exclude)
	}
	var users []models.User
	if err := q.Order("username asc").Limit(limit).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// Contacts 返回与该用户有过私聊往来的全部用户名（去重）。
func (s *Store) Contacts(ctx context.Context, username string) ([]string, error) {
	var rows []struct {
		Sender string
		Target string
	}
	err := s.read(ctx).Model(&models.Message{}).
		Distinct("sender", "target").
		Where("context = ? AND (sender = ? OR target = ?)", models.ContextPM, username, username).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(rows))
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		peer := r.Sender
		if peer == username {
			peer = r.Target
		}
		if peer == "" || peer == username {
			continue
		}
		if _, ok := seen[peer]; ok {
			continue
		}
		seen[peer] = struct{}{}
		out = append(out, peer)
	}
	return out, nil
}

// RecentContacts 返回最近私聊过的用户资料，按最近一条消息倒序。
func (s *Store) RecentContacts(ctx context.Context, username string, limit int) ([]models.User, error) {
	if limit <= 0 {
		limit = 15
	}
	var rows []struct {
		Peer   string
		LastID uint
	}
	err := s.read(ctx).Model(&models.Message{}).
		Select("CASE WHEN sender = ? THEN target ELSE sender END AS peer, MAX(id) AS last_id", username).
		Where("context = ? AND (sender = ? OR target = ?)", models.ContextPM, username, username).
		Group("peer").
		Order("last_id desc").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Peer)
	}
	byName, err := s.UsersByName(ctx, names)
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(names))
	for _, n := range names {
		if u, ok := byName[n]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}
