package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoomSummary 是房间列表的一行，附带成员数。
type RoomSummary struct {
	models.Room
	MemberCount int64
}

// MemberInfo 是房间成员及其头像。
type MemberInfo struct {
	Username string
	Role     string
	Avatar   string
	JoinedAt time.Time
}

// CreateRoom 创建房间并把创建者设为 admin。ID 或名称冲突返回 ErrConflict。
func (s *Store) CreateRoom(ctx context.Context, name, creator, rtype string) (*models.Room, error) {
	id := RoomID(name)
	if id == "@" {
		return nil, ErrConflict
	}
	now := time.Now().UTC()
	room := models.Room{ID: id, Name: name, Creator: creator, Type: rtype, CreatedAt: now}
	err := s.write(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Room{}).Where("id = ? OR name = ?", id, name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrConflict
		}
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		return tx.Create(&models.RoomMember{RoomID: id, Username: creator, Role: models.RoleAdmin, JoinedAt: now}).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

// Room 先按 ID 查找，找不到再按显示名查找。
func (s *Store) Room(ctx context.Context, idOrName string) (*models.Room, error) {
	var room models.Room
	err := s.read(ctx).Where("id = ?", idOrName).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.read(ctx).Where("name = ?", idOrName).First(&room).Error
	}
	if err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

// RoomsFor 只返回用户有成员记录的房间，按创建时间倒序。
func (s *Store) RoomsFor(ctx context.Context, username string) ([]RoomSummary, error) {
	var rooms []models.Room
	err := s.read(ctx).
		Joins("JOIN room_members rm ON rm.room_id = rooms.id").
		Where("rm.username = ?", username).
		Order("rooms.created_at desc").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return s.withMemberCounts(ctx, rooms)
}

// SearchRooms 以 @ 开头时按 ID 前缀搜索，否则按名称子串搜索。
func (s *Store) SearchRooms(ctx context.Context, query string) ([]RoomSummary, error) {
	q := s.read(ctx)
	if strings.HasPrefix(query, "@") {
		q = q.Where("id LIKE ? ESCAPE '\\'", prefixPattern(strings.ToLower(query)))
	} else {
		q = q.Where("name LIKE ? ESCAPE '\\'", likePattern(query))
	}
	var rooms []models.Room
	if err := q.Order("created_at desc").Limit(50).Find(&rooms).Error; err != nil {
		return nil, err
	}
	return s.withMemberCounts(ctx, rooms)
}

func (s *Store) withMemberCounts(ctx context.Context, rooms []models.Room) ([]RoomSummary, error) {
	out := make([]RoomSummary, 0, len(rooms))
	if len(rooms) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	var counts []struct {
		RoomID string
		N      int64
	}
	err := s.read(ctx).Model(&models.RoomMember{}).
		Select("room_id, COUNT(*) AS n").
		Where("room_id IN ?", ids).
		Group("room_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	byRoom := make(map[string]int64, len(counts))
	for _, c := range counts {
		byRoom[c.RoomID] = c.N
	}
	for _, r := range rooms {
		out = append(out, RoomSummary{Room: r, MemberCount: byRoom[r.ID]})
	}
	return out, nil
}

// RenameRoom 只修改显示名，ID 不变。新名称被占用时返回 ErrConflict。
func (s *Store) RenameRoom(ctx context.Context, roomID, name string) error {
	return translate(s.write(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Room{}).Where("name = ? AND id <> ?", name, roomID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrConflict
		}
		return updateRoom(tx, roomID, "name", name)
	}))
}

func (s *Store) SetRoomAvatar(ctx context.Context, roomID, avatar string) error {
	return translate(s.write(ctx, func(tx *gorm.DB) error {
		return updateRoom(tx, roomID, "avatar", avatar)
	}))
}

func (s *Store) PinMessage(ctx context.Context, roomID string, messageID uint) error {
	return translate(s.write(ctx, func(tx *gorm.DB) error {
		return updateRoom(tx, roomID, "pinned_message_id", messageID)
	}))
}

func updateRoom(tx *gorm.DB, roomID, column string, value any) error {
	res := tx.Model(&models.Room{}).Where("id = ?", roomID).Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// JoinRoom 添加成员记录。房间不存在返回 ErrNotFound，已是成员返回 ErrConflict。
func (s *Store) JoinRoom(ctx context.Context, roomID, username, role string) error {
	return translate(s.write(ctx, func(tx *gorm.DB) error {
		var rooms int64
		if err := tx.Model(&models.Room{}).Where("id = ?", roomID).Count(&rooms).Error; err != nil {
			return err
		}
		if rooms == 0 {
			return ErrNotFound
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.RoomMember{RoomID: roomID, Username: username, Role: role, JoinedAt: time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		return nil
	}))
}

func (s *Store) RemoveMember(ctx context.Context, roomID, username string) error {
	return translate(s.write(ctx, func(tx *gorm.DB) error {
		res := tx.Where("room_id = ? AND username = ?", roomID, username).Delete(&models.RoomMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	}))
}

// Role 返回用户在房间内的角色，非成员返回空字符串。
func (s *Store) Role(ctx context.Context, roomID, username string) (string, error) {
	var m models.RoomMember
	err := s.read(ctx).Where("room_id = ? AND username = ?", roomID, username).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return m.Role, nil
}

func (s *Store) IsMember(ctx context.Context, roomID, username string) (bool, error) {
	role, err := s.Role(ctx, roomID, username)
	return role != "", err
}

func (s *Store) SetRole(ctx context.Context, roomID, username, role string) error {
	return translate(s.write(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.RoomMember{}).
			Where("room_id = ? AND username = ?", roomID, username).
			Update("role", role)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	}))
}

// Members 按加入时间升序返回房间成员。
func (s *Store) Members(ctx context.Context, roomID string) ([]MemberInfo, error) {
	var rows []models.RoomMember
	if err := s.read(ctx).Where("room_id = ?", roomID).Order("joined_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Username)
	}
	users, err := s.UsersByName(ctx, names)
	if err != nil {
		return nil, err
	}
	out := make([]MemberInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, MemberInfo{Username: r.Username, Role: r.Role, Avatar: users[r.Username].Avatar, JoinedAt: r.JoinedAt})
	}
	return out, nil
}

// Ban 幂等地写入封禁记录。
func (s *Store) Ban(ctx context.Context, roomID, username, by string) error {
	return translate(s.write(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Ban{RoomID: roomID, Username: username, BannedBy: by}).Error
	}))
}

func (s *Store) IsBanned(ctx context.Context, roomID, username string) (bool, error) {
	var count int64
	err := s.read(ctx).Model(&models.Ban{}).Where("room_id = ? AND username = ?", roomID, username).Count(&count).Error
	return count > 0, err
}
