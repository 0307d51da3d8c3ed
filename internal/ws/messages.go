package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/authz"
	"github.com/dilwearus-ops/neochat-server/internal/events"
	"github.com/dilwearus-ops/neochat-server/internal/metrics"
	"github.com/dilwearus-ops/neochat-server/internal/models"
	"github.com/dilwearus-ops/neochat-server/internal/moderation"
	"github.com/dilwearus-ops/neochat-server/internal/store"

	"github.com/rs/zerolog/log"
)

const (
	historyLimit  = 100
	deletedLimit  = 100
	forwardPrefix = "[Forwarded] "
)

// allow 消耗一次发送配额。限流后端出错时放行，只记录日志。
func (h *Hub) allow(ctx context.Context, nick string) error {
	ok, err := h.deps.Limiter.Allow(ctx, nick)
	if err != nil {
		log.Warn().Err(err).Str("nick", nick).Msg("rate limiter unavailable, allowing")
	}
	if !ok {
		return reject("rate_limited", "you are sending messages too fast")
	}
	return nil
}

func (h *Hub) handleContent(ctx context.Context, c *Client, e *contentEvent) error {
	if err := h.allow(ctx, c.nick); err != nil {
		return err
	}
	m := models.Message{
		Type:      e.Type,
		Text:      moderation.Sanitize(e.Text),
		MediaData: e.Data,
		Filename:  moderation.Sanitize(e.Filename),
		ThreadID:  e.ThreadID,
	}
	if e.Type == models.TypePoll {
		opts := make([]string, 0, len(e.Options))
		for _, o := range e.Options {
			opts = append(opts, moderation.Sanitize(o))
		}
		b, err := json.Marshal(opts)
		if err != nil {
			return err
		}
		m.MediaData = string(b)
	}
	reply, err := sanitizeJSON(e.ReplyTo)
	if err != nil {
		return fmt.Errorf("%w: replyTo: %v", errMalformed, err)
	}
	m.ReplyTo = reply

	var at *time.Time
	if e.ScheduledTime != nil {
		t := fromUnixSeconds(*e.ScheduledTime)
		at = &t
	}
	return h.post(ctx, c, m, e.RoomName, e.Recipient, at)
}

// post 对已清洗的草稿做内容过滤和路由授权，然后持久化并投递；
// at 在未来时只保存为定时消息。
func (h *Hub) post(ctx context.Context, c *Client, m models.Message, roomName, recipient string, at *time.Time) error {
	if h.deps.Filter.Blocked(m.Text) {
		return reject("blocked", "message contains blocked content")
	}
	m.Sender = c.nick
	if err := h.route(ctx, &m, roomName, recipient); err != nil {
		return err
	}
	if at != nil && at.After(h.deps.Clock.Now()) {
		sm := &models.ScheduledMessage{
			Context:      m.Context,
			Target:       m.Target,
			Sender:       m.Sender,
			Type:         m.Type,
			Text:         m.Text,
			MediaData:    m.MediaData,
			Filename:     m.Filename,
			ReplyTo:      m.ReplyTo,
			ThreadID:     m.ThreadID,
			ScheduledFor: at.UTC(),
		}
		if err := h.deps.Store.ScheduleMessage(ctx, sm); err != nil {
			return err
		}
		c.sendJSON(map[string]any{"type": "message_scheduled", "id": sm.ID, "scheduled_time": unixSeconds(sm.ScheduledFor)})
		return nil
	}
	return h.publish(ctx, &m)
}

// route 填写消息的 Context 和 Target。私聊要求对方存在且不是自己，房间消息要求通过 Post 授权。
func (h *Hub) route(ctx context.Context, m *models.Message, roomName, recipient string) error {
	if recipient != "" {
		if recipient == m.Sender {
			return reject("invalid", "cannot send messages to yourself")
		}
		if _, err := h.deps.Store.UserByName(ctx, recipient); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return reject("not_found", "unknown recipient")
			}
			return err
		}
		m.Context, m.Target = models.ContextPM, recipient
		return nil
	}
	room, err := h.resolveRoom(ctx, roomName)
	if err != nil {
		return err
	}
	if err := h.deps.Gate.Check(ctx, room.ID, m.Sender, authz.Post); err != nil {
		return err
	}
	m.Context, m.Target = models.ContextRoom, room.ID
	return nil
}

// publish 先写库拿到 ID，再向受众投递。
func (h *Hub) publish(ctx context.Context, m *models.Message) error {
	m.CreatedAt = h.deps.Clock.Now().UTC()
	if err := h.deps.Store.SaveMessage(ctx, m); err != nil {
		return err
	}
	view, err := h.renderMessage(ctx, m)
	if err != nil {
		return err
	}
	metrics.WsMessagesTotal.Inc()
	h.audience(m, view)
	return nil
}

// DeliverScheduled 把到期的定时消息按实时消息的路径投递，投递前重新检查发送权限。
func (h *Hub) DeliverScheduled(ctx context.Context, sm models.ScheduledMessage) error {
	if sm.Context == models.ContextRoom {
		if err := h.deps.Gate.Check(ctx, sm.Target, sm.Sender, authz.Post); err != nil {
			return fmt.Errorf("scheduled message %d: %w", sm.ID, err)
		}
	}
	due := sm.ScheduledFor
	m := models.Message{
		Context:      sm.Context,
		Target:       sm.Target,
		Sender:       sm.Sender,
		Type:         sm.Type,
		Text:         sm.Text,
		MediaData:    sm.MediaData,
		Filename:     sm.Filename,
		ReplyTo:      sm.ReplyTo,
		ThreadID:     sm.ThreadID,
		ScheduledFor: &due,
	}
	if err := h.publish(ctx, &m); err != nil {
		return err
	}
	metrics.ScheduledDeliveredTotal.Inc()
	return nil
}

func (h *Hub) handleForward(ctx context.Context, c *Client, e *forwardReq) error {
	orig, err := h.visibleMessage(ctx, c.nick, e.MessageID)
	if err != nil {
		return err
	}
	if err := h.allow(ctx, c.nick); err != nil {
		return err
	}
	m := models.Message{
		Type:      orig.Type,
		Text:      forwardPrefix + orig.Text,
		MediaData: orig.MediaData,
		Filename:  orig.Filename,
	}
	if e.TargetType == models.ContextRoom {
		return h.post(ctx, c, m, e.Target, "", nil)
	}
	return h.post(ctx, c, m, "", e.Target, nil)
}

// visibleMessage 读取消息并确认 nick 能看到它：房间消息需要成员资格且未被封禁，
// 私聊只对双方可见（对第三方表现为不存在）。
func (h *Hub) visibleMessage(ctx context.Context, nick string, id uint) (*models.Message, error) {
	m, err := h.deps.Store.Message(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Context == models.ContextRoom {
		if err := h.deps.Gate.Check(ctx, m.Target, nick, authz.ReadHistory); err != nil {
			return nil, err
		}
		return m, nil
	}
	if m.Sender != nick && m.Target != nick {
		return nil, store.ErrNotFound
	}
	return m, nil
}

func (h *Hub) handleHistory(ctx context.Context, c *Client, e *historyReq) error {
	limit := e.Limit
	if limit <= 0 || limit > store.MaxSearchLimit {
		limit = historyLimit
	}
	resp := map[string]any{
		"type":      "history",
		"context":   e.Context,
		"target":    e.Target,
		"room_info": nil,
		"pinned":    nil,
	}
	target := e.Target
	if e.Context == models.ContextPM {
		n, err := h.deps.Store.MarkRead(ctx, e.Target, c.nick)
		if err != nil {
			return err
		}
		if n > 0 {
			h.sendTo(e.Target, map[string]any{"type": "msgs_read_by_user", "reader": c.nick})
		}
	} else {
		room, err := h.resolveRoom(ctx, e.Target)
		if err != nil {
			return err
		}
		target = room.ID
		members, err := h.deps.Store.Members(ctx, room.ID)
		if err != nil {
			return err
		}
		roomInfo := roomView(store.RoomSummary{Room: *room, MemberCount: int64(len(members))})
		roomInfo.Members = memberViews(members)
		resp["room_info"] = roomInfo
		if room.PinnedMessageID != nil {
			pinned, err := h.deps.Store.Message(ctx, *room.PinnedMessageID)
			switch {
			case err == nil:
				view, err := h.renderMessage(ctx, pinned)
				if err != nil {
					return err
				}
				resp["pinned"] = view
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}
	}
	msgs, err := h.deps.Store.History(ctx, store.HistoryQuery{
		Context:  e.Context,
		Target:   target,
		Viewer:   c.nick,
		Limit:    limit,
		BeforeID: e.BeforeID,
	})
	if err != nil {
		return err
	}
	views, err := h.renderMessages(ctx, msgs)
	if err != nil {
		return err
	}
	resp["history"] = views
	c.sendJSON(resp)
	return nil
}

func (h *Hub) handleSearchMessages(ctx context.Context, c *Client, e *searchMessagesReq) error {
	target := e.Target
	if e.Context == models.ContextRoom {
		room, err := h.resolveRoom(ctx, e.Target)
		if err != nil {
			return err
		}
		target = room.ID
	}
	q := store.MessageQuery{
		Context: e.Context,
		Target:  target,
		Viewer:  c.nick,
		Text:    e.Query,
		Limit:   e.Limit,
	}
	if e.StartDate != nil {
		t := fromUnixSeconds(*e.StartDate)
		q.Start = &t
	}
	if e.EndDate != nil {
		t := fromUnixSeconds(*e.EndDate)
		q.End = &t
	}
	msgs, err := h.deps.Store.SearchMessages(ctx, q)
	if err != nil {
		return err
	}
	views, err := h.renderMessages(ctx, msgs)
	if err != nil {
		return err
	}
	c.sendJSON(map[string]any{"type": "search_results", "context": e.Context, "target": target, "results": views})
	return nil
}

func (h *Hub) handleThread(ctx context.Context, c *Client, e *threadReq) error {
	root, err := h.visibleMessage(ctx, c.nick, e.ThreadID)
	if err != nil {
		return err
	}
	msgs, err := h.deps.Store.Thread(ctx, root, c.nick)
	if err != nil {
		return err
	}
	views, err := h.renderMessages(ctx, msgs)
	if err != nil {
		return err
	}
	c.sendJSON(map[string]any{"type": "thread_messages", "thread_id": e.ThreadID, "messages": views})
	return nil
}

func (h *Hub) handleBookmark(ctx context.Context, c *Client, e *messageRef) error {
	if _, err := h.visibleMessage(ctx, c.nick, e.MessageID); err != nil {
		return err
	}
	added, err := h.deps.Store.ToggleBookmark(ctx, c.nick, e.MessageID)
	if err != nil {
		return err
	}
	c.sendJSON(map[string]any{"type": "bookmark_toggled", "id": e.MessageID, "bookmarked": added})
	return nil
}

func (h *Hub) handleVote(ctx context.Context, c *Client, e *voteReq) error {
	m, err := h.visibleMessage(ctx, c.nick, e.MessageID)
	if err != nil {
		return err
	}
	if m.Type != models.TypePoll {
		return reject("invalid", "message is not a poll")
	}
	if *e.OptionIndex >= len(pollOptions(m)) {
		return reject("invalid", "option_index out of range")
	}
	if err := h.deps.Store.Vote(ctx, m.ID, c.nick, *e.OptionIndex); err != nil {
		return err
	}
	results, err := h.deps.Store.PollResults(ctx, []uint{m.ID})
	if err != nil {
		return err
	}
	r := results[m.ID]
	if r == nil {
		r = map[int][]string{}
	}
	h.audience(m, map[string]any{"type": "poll_update", "id": m.ID, "results": r})
	return nil
}

func (h *Hub) handleReaction(ctx context.Context, c *Client, e *reactionReq) error {
	m, err := h.visibleMessage(ctx, c.nick, e.MessageID)
	if err != nil {
		return err
	}
	if _, err := h.deps.Store.ToggleReaction(ctx, m.ID, c.nick, e.Emoji); err != nil {
		return err
	}
	all, err := h.deps.Store.Reactions(ctx, []uint{m.ID})
	if err != nil {
		return err
	}
	r := all[m.ID]
	if r == nil {
		r = map[string][]string{}
	}
	h.audience(m, map[string]any{"type": "reaction_update", "id": m.ID, "reactions": r})
	return nil
}

func (h *Hub) handleMarkRead(ctx context.Context, c *Client, e *markReadReq) error {
	n, err := h.deps.Store.MarkRead(ctx, e.Sender, c.nick)
	if err != nil {
		return err
	}
	if n > 0 {
		h.sendTo(e.Sender, map[string]any{"type": "msgs_read_by_user", "reader": c.nick})
	}
	return nil
}

func (h *Hub) handleEdit(ctx context.Context, c *Client, e *editReq) error {
	text := moderation.Sanitize(e.Text)
	if h.deps.Filter.Blocked(text) {
		return reject("blocked", "message contains blocked content")
	}
	if _, err := h.visibleMessage(ctx, c.nick, e.ID); err != nil {
		return err
	}
	m, err := h.deps.Store.EditMessage(ctx, e.ID, c.nick, text)
	if errors.Is(err, store.ErrForbidden) {
		return reject("forbidden", "only the author can edit this message")
	}
	if err != nil {
		return err
	}
	h.audience(m, map[string]any{"type": "msg_edited", "id": m.ID, "text": m.Text})
	return nil
}

// handleDelete 允许作者删除自己的消息，房间内的 moderator/admin 可以删除任何人的消息。
func (h *Hub) handleDelete(ctx context.Context, c *Client, e *deleteReq) error {
	m, err := h.deps.Store.Message(ctx, e.ID)
	if err != nil {
		return err
	}
	switch {
	case m.Sender != c.nick && m.Context != models.ContextRoom:
		return store.ErrNotFound
	case m.Sender != c.nick:
		if err := h.deps.Gate.Check(ctx, m.Target, c.nick, authz.DeleteAny); err != nil {
			return err
		}
	case m.Context == models.ContextRoom:
		banned, err := h.deps.Store.IsBanned(ctx, m.Target, c.nick)
		if err != nil {
			return err
		}
		if banned {
			return authz.ErrBanned
		}
	}
	reason := moderation.Sanitize(e.Reason)
	deleted, err := h.deps.Store.DeleteMessage(ctx, e.ID, c.nick, reason)
	if err != nil {
		return err
	}
	h.audience(deleted, map[string]any{"type": "msg_deleted", "id": deleted.ID})
	if deleted.Context == models.ContextRoom {
		h.emit(ctx, events.Event{
			Type:      events.MessageDeleted,
			Room:      deleted.Target,
			Actor:     c.nick,
			Subject:   deleted.Sender,
			MessageID: deleted.ID,
			Reason:    reason,
		})
	}
	return nil
}

func (h *Hub) handleSignal(ctx context.Context, c *Client, e *signalReq) error {
	payload := map[string]any{
		"type":          "signal",
		"sender":        c.nick,
		"sender_avatar": h.avatar(ctx, c.nick),
		"data":          e.Data,
	}
	if e.RoomName != "" {
		payload["room_name"] = e.RoomName
		h.broadcastAll(payload, c)
		return nil
	}
	h.sendTo(e.Target, payload)
	return nil
}

// handleTyping 原样转发客户端的字段，只覆盖 sender。
func (h *Hub) handleTyping(c *Client, e *typingReq) error {
	e.raw["sender"] = c.nick
	if e.RoomName != "" {
		h.broadcastAll(e.raw, c)
		return nil
	}
	h.sendTo(e.Recipient, e.raw)
	return nil
}

func (h *Hub) avatar(ctx context.Context, nick string) string {
	u, err := h.deps.Store.UserByName(ctx, nick)
	if err != nil {
		return ""
	}
	return u.Avatar
}

// sanitizeJSON 转义引用快照中的所有字符串值，空值或 null 返回空串。
func sanitizeJSON(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(escapeStrings(v)); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func escapeStrings(v any) any {
	switch t := v.(type) {
	case string:
		return moderation.Sanitize(t)
	case []any:
		for i := range t {
			t[i] = escapeStrings(t[i])
		}
		return t
	case map[string]any:
		for k, x := range t {
			t[k] = escapeStrings(x)
		}
		return t
	}
	return v
}
