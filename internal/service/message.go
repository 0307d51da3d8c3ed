package service

import (
	"context"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/models"
	"github.com/dilwearus-ops/neochat-server/internal/store"
)

// MessageService 封装 REST 侧的消息查询。
type MessageService struct {
	store *store.Store
	rooms *RoomService
}

func NewMessageService(s *store.Store, rooms *RoomService) *MessageService {
	return &MessageService{store: s, rooms: rooms}
}

// MessageDTO 是对外输出的消息数据。
type MessageDTO struct {
	ID        uint      `json:"id"`
	RoomID    string    `json:"room_id"`
	Sender    string    `json:"sender"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Filename  string    `json:"filename,omitempty"`
	ThreadID  *uint     `json:"thread_id,omitempty"`
	IsEdited  bool      `json:"is_edited"`
	CreatedAt time.Time `json:"created_at"`
}

// ListByRoom 分页查询房间消息，按 id 升序返回。只有成员可以读取。
func (s *MessageService) ListByRoom(ctx context.Context, viewer, roomID string, limit int, beforeID uint) ([]MessageDTO, error) {
	if limit <= 0 || limit > store.MaxSearchLimit {
		limit = store.DefaultHistoryLimit
	}
	id, err := s.rooms.RequireMember(ctx, roomID, viewer)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.History(ctx, store.HistoryQuery{
		Context:  models.ContextRoom,
		Target:   id,
		Viewer:   viewer,
		Limit:    limit,
		BeforeID: beforeID,
	})
	if err != nil {
		return nil, err
	}
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageDTO{
			ID:        m.ID,
			RoomID:    m.Target,
			Sender:    m.Sender,
			Type:      m.Type,
			Text:      m.Text,
			Filename:  m.Filename,
			ThreadID:  m.ThreadID,
			IsEdited:  m.IsEdited,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}
