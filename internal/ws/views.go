package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/models"
	"github.com/dilwearus-ops/neochat-server/internal/store"
)

// MessageView 是消息在线协议中的形状，广播、历史、搜索、线程共用。
// 布尔标志按 0/1 输出，与已有客户端保持一致。
type MessageView struct {
	ID           uint                `json:"id"`
	Type         string              `json:"type"`
	Context      string              `json:"context"`
	Sender       string              `json:"sender"`
	SenderAvatar string              `json:"sender_avatar"`
	RoomName     string              `json:"room_name,omitempty"`
	Recipient    string              `json:"recipient,omitempty"`
	Text         string              `json:"text"`
	Data         string              `json:"data"`
	Filename     string              `json:"filename"`
	Timestamp    float64             `json:"timestamp"`
	IsEdited     int                 `json:"is_edited"`
	IsRead       int                 `json:"is_read"`
	IsBookmarked int                 `json:"is_bookmarked"`
	ThreadID     *uint               `json:"thread_id"`
	ReplyTo      json.RawMessage     `json:"replyTo"`
	Reactions    map[string][]string `json:"reactions"`
	Options      []string            `json:"options,omitempty"`
	PollResults  any                 `json:"poll_results,omitempty"`
}

type RoomView struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Creator     string       `json:"creator"`
	Type        string       `json:"type"`
	Avatar      string       `json:"avatar"`
	PinnedMsgID *uint        `json:"pinned_msg_id"`
	CreatedAt   float64      `json:"created_at"`
	MemberCount int64        `json:"member_count"`
	IsMember    *bool        `json:"is_member,omitempty"`
	Members     []MemberView `json:"members,omitempty"`
}

type MemberView struct {
	Username string  `json:"username"`
	Role     string  `json:"role"`
	Avatar   string  `json:"avatar"`
	JoinedAt float64 `json:"joined_at"`
}

type UserView struct {
	Username   string `json:"username"`
	Avatar     string `json:"avatar"`
	Bio        string `json:"bio"`
	UserStatus string `json:"user_status"`
}

type DeletedView struct {
	ID        uint    `json:"id"`
	MessageID uint    `json:"message_id"`
	Sender    string  `json:"sender"`
	Text      string  `json:"text"`
	DeletedBy string  `json:"deleted_by"`
	Reason    string  `json:"reason"`
	DeletedAt float64 `json:"deleted_at"`
}

// unixSeconds 把时间转为带小数的 Unix 秒。
func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

func fromUnixSeconds(v float64) time.Time {
	sec := int64(v)
	return time.Unix(sec, int64((v-float64(sec))*1e9)).UTC()
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// pollOptions 解析投票消息保存在 media 列中的选项列表。
func pollOptions(m *models.Message) []string {
	if m.Type != models.TypePoll || m.MediaData == "" {
		return nil
	}
	var opts []string
	if err := json.Unmarshal([]byte(m.MediaData), &opts); err != nil {
		return nil
	}
	return opts
}

// renderMessages 批量加载反应、投票结果和发送者头像，保持输入顺序。
func (h *Hub) renderMessages(ctx context.Context, msgs []models.Message) ([]MessageView, error) {
	out := make([]MessageView, 0, len(msgs))
	if len(msgs) == 0 {
		return out, nil
	}
	ids := make([]uint, 0, len(msgs))
	var polls []uint
	senders := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
		senders = append(senders, m.Sender)
		if m.Type == models.TypePoll {
			polls = append(polls, m.ID)
		}
	}
	reactions, err := h.deps.Store.Reactions(ctx, ids)
	if err != nil {
		return nil, err
	}
	results, err := h.deps.Store.PollResults(ctx, polls)
	if err != nil {
		return nil, err
	}
	users, err := h.deps.Store.UsersByName(ctx, senders)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		m := &msgs[i]
		v := MessageView{
			ID:           m.ID,
			Type:         m.Type,
			Context:      m.Context,
			Sender:       m.Sender,
			SenderAvatar: users[m.Sender].Avatar,
			Text:         m.Text,
			Data:         m.MediaData,
			Filename:     m.Filename,
			Timestamp:    unixSeconds(m.CreatedAt),
			IsEdited:     flag(m.IsEdited),
			IsRead:       flag(m.IsRead),
			IsBookmarked: flag(m.IsBookmarked),
			ThreadID:     m.ThreadID,
			Reactions:    reactions[m.ID],
		}
		if v.Reactions == nil {
			v.Reactions = map[string][]string{}
		}
		if m.ReplyTo != "" {
			v.ReplyTo = json.RawMessage(m.ReplyTo)
		}
		if m.Context == models.ContextRoom {
			v.RoomName = m.Target
		} else {
			v.Recipient = m.Target
		}
		if m.Type == models.TypePoll {
			v.Options = pollOptions(m)
			r := results[m.ID]
			if r == nil {
				r = map[int][]string{}
			}
			v.PollResults = r
		}
		out = append(out, v)
	}
	return out, nil
}

func (h *Hub) renderMessage(ctx context.Context, m *models.Message) (*MessageView, error) {
	views, err := h.renderMessages(ctx, []models.Message{*m})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func roomView(r store.RoomSummary) RoomView {
	return RoomView{
		ID:          r.ID,
		Name:        r.Name,
		Creator:     r.Creator,
		Type:        r.Type,
		Avatar:      r.Avatar,
		PinnedMsgID: r.PinnedMessageID,
		CreatedAt:   unixSeconds(r.CreatedAt),
		MemberCount: r.MemberCount,
	}
}

func memberViews(ms []store.MemberInfo) []MemberView {
	out := make([]MemberView, 0, len(ms))
	for _, m := range ms {
		out = append(out, MemberView{Username: m.Username, Role: m.Role, Avatar: m.Avatar, JoinedAt: unixSeconds(m.JoinedAt)})
	}
	return out
}

func userViews(users []models.User) []UserView {
	out := make([]UserView, 0, len(users))
	for _, u := range users {
		out = append(out, UserView{Username: u.Username, Avatar: u.Avatar, Bio: u.Bio, UserStatus: u.Status})
	}
	return out
}

func deletedViews(rows []models.DeletedMessage) []DeletedView {
	out := make([]DeletedView, 0, len(rows))
	for _, d := range rows {
		out = append(out, DeletedView{
			ID:        d.ID,
			MessageID: d.MessageID,
			Sender:    d.Sender,
			Text:      d.Text,
			DeletedBy: d.DeletedBy,
			Reason:    d.Reason,
			DeletedAt: unixSeconds(d.DeletedAt),
		})
	}
	return out
}
