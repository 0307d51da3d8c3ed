package service

import (
	"context"
	"errors"

	"github.com/dilwearus-ops/neochat-server/internal/store"
)

// OnlineChecker 报告某个用户当前是否有活跃会话，ws.Hub 满足该接口。
type OnlineChecker interface {
	IsOnline(nick string) bool
}

// RoomService 封装 REST 侧的房间查询。
type RoomService struct {
	store  *store.Store
	online OnlineChecker
}

func NewRoomService(s *store.Store, online OnlineChecker) *RoomService {
	return &RoomService{store: s, online: online}
}

// RoomDTO 是对外输出的房间数据。
type RoomDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Avatar      string `json:"avatar"`
	MemberCount int64  `json:"member_count"`
	Online      int    `json:"online"`
}

// List 返回用户加入的房间，附带成员数和在线成员数。
func (s *RoomService) List(ctx context.Context, username string) ([]RoomDTO, error) {
	rooms, err := s.store.RoomsFor(ctx, username)
	if err != nil {
		return nil, err
	}
	out := make([]RoomDTO, 0, len(rooms))
	for _, r := range rooms {
		members, err := s.store.Members(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		online := 0
		for _, m := range members {
			if s.online.IsOnline(m.Username) {
				online++
			}
		}
		out = append(out, RoomDTO{
			ID:          r.ID,
			Name:        r.Name,
			Type:        r.Type,
			Avatar:      r.Avatar,
			MemberCount: r.MemberCount,
			Online:      online,
		})
	}
	return out, nil
}

// RequireMember 检查房间存在且 username 是成员，返回规范化的房间 ID。
func (s *RoomService) RequireMember(ctx context.Context, idOrName, username string) (string, error) {
	room, err := s.store.Room(ctx, idOrName)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrRoomNotFound
	}
	if err != nil {
		return "", err
	}
	ok, err := s.store.IsMember(ctx, room.ID, username)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotMember
	}
	return room.ID, nil
}
