package ws

import (
	"context"
	"errors"
	"fmt"

	"github.com/dilwearus-ops/neochat-server/internal/authz"
	"github.com/dilwearus-ops/neochat-server/internal/events"
	"github.com/dilwearus-ops/neochat-server/internal/invite"
	"github.com/dilwearus-ops/neochat-server/internal/models"
	"github.com/dilwearus-ops/neochat-server/internal/store"
)

// resolveRoom 按 ID 或显示名查找房间。
func (h *Hub) resolveRoom(ctx context.Context, idOrName string) (*models.Room, error) {
	room, err := h.deps.Store.Room(ctx, idOrName)
	if errors.Is(err, store.ErrNotFound) {
		return nil, reject("not_found", "room not found")
	}
	return room, err
}

// authorizedRoom 查找房间并检查 nick 能否执行 action。
func (h *Hub) authorizedRoom(ctx context.Context, roomName, nick string, action authz.Action) (*models.Room, error) {
	room, err := h.resolveRoom(ctx, roomName)
	if err != nil {
		return nil, err
	}
	if err := h.deps.Gate.Check(ctx, room.ID, nick, action); err != nil {
		return nil, err
	}
	return room, nil
}

func info(text string) map[string]any {
	return map[string]any{"type": "info", "text": text}
}

func (h *Hub) handleCreateRoom(ctx context.Context, c *Client, e *createRoomReq) error {
	_, err := h.deps.Store.CreateRoom(ctx, e.Name, c.nick, e.Rtype)
	if errors.Is(err, store.ErrConflict) {
		return reject("conflict", "room already exists")
	}
	if err != nil {
		return err
	}
	return h.sendRoomsList(ctx, c)
}

func (h *Hub) handleJoinRoom(ctx context.Context, c *Client, e *joinRoomReq) error {
	room, err := h.authorizedRoom(ctx, e.RoomID, c.nick, authz.Join)
	if err != nil {
		return err
	}
	err = h.deps.Store.JoinRoom(ctx, room.ID, c.nick, models.RoleMember)
	if errors.Is(err, store.ErrConflict) {
		return reject("conflict", "already a member of this room")
	}
	if err != nil {
		return err
	}
	c.sendJSON(map[string]any{"type": "room_joined", "room_id": room.ID, "message": "joined " + room.Name})
	return h.sendRoomsList(ctx, c)
}

// handleSearchRooms 对空查询直接返回空结果。
func (h *Hub) handleSearchRooms(ctx context.Context, c *Client, e *queryReq) error {
	views := []RoomView{}
	if e.Query != "" {
		rooms, err := h.deps.Store.SearchRooms(ctx, e.Query)
		if err != nil {
			return err
		}
		for _, r := range rooms {
			member, err := h.deps.Store.IsMember(ctx, r.ID, c.nick)
			if err != nil {
				return err
			}
			v := roomView(r)
			v.IsMember = &member
			views = append(views, v)
		}
	}
	c.sendJSON(map[string]any{"type": "search_results", "results": views})
	return nil
}

func (h *Hub) handlePin(ctx context.Context, c *Client, e *pinReq) error {
	room, err := h.authorizedRoom(ctx, e.RoomName, c.nick, authz.Pin)
	if err != nil {
		return err
	}
	m, err := h.deps.Store.Message(ctx, e.ID)
	if err != nil {
		return err
	}
	if m.Context != models.ContextRoom || m.Target != room.ID {
		return reject("not_found", "message is not in this room")
	}
	if err := h.deps.Store.PinMessage(ctx, room.ID, m.ID); err != nil {
		return err
	}
	view, err := h.renderMessage(ctx, m)
	if err != nil {
		return err
	}
	h.broadcastAll(map[string]any{"type": "pinned_update", "room_name": room.ID, "msg": view}, nil)
	return nil
}

func (h *Hub) handleCreateInvite(ctx context.Context, c *Client, e *roomReq) error {
	room, err := h.authorizedRoom(ctx, e.RoomName, c.nick, authz.CreateInvite)
	if err != nil {
		return err
	}
	inv, err := h.deps.Invites.Issue(ctx, room.ID, c.nick)
	if err != nil {
		return err
	}
	c.sendJSON(map[string]any{
		"type":       "invite_created",
		"code":       inv.Code,
		"link":       "join/" + inv.Code,
		"room_name":  room.ID,
		"expires_at": unixSeconds(inv.ExpiresAt),
	})
	return nil
}

// handleJoinWithInvite 总是回复 join_result，失败原因写在 message 里。
func (h *Hub) handleJoinWithInvite(ctx context.Context, c *Client, e *inviteCodeReq) error {
	room, err := h.deps.Invites.Redeem(ctx, e.Code, c.nick)
	result := map[string]any{"type": "join_result", "success": false, "room_name": "", "message": "OK"}
	if room != nil {
		result["room_name"] = room.ID
	}
	switch {
	case err == nil:
		result["success"] = true
	case errors.Is(err, invite.ErrNotFound):
		result["message"] = "invalid invite code"
	case errors.Is(err, invite.ErrExpired):
		result["message"] = "invite code has expired"
	case errors.Is(err, invite.ErrBanned):
		result["message"] = "you are banned in this room"
	case errors.Is(err, store.ErrConflict):
		result["message"] = "already a member"
	default:
		return err
	}
	c.sendJSON(result)
	if err != nil {
		return nil
	}
	if err := h.sendRoomsList(ctx, c); err != nil {
		return err
	}
	h.broadcastPresence(ctx)
	return nil
}

// handleKick 删除成员记录并广播通知；被踢用户在线时刷新其房间列表。
func (h *Hub) handleKick(ctx context.Context, c *Client, e *memberReq) error {
	room, err := h.authorizedRoom(ctx, e.RoomName, c.nick, authz.Kick)
	if err != nil {
		return err
	}
	if e.User == c.nick {
		return reject("invalid", "cannot kick yourself")
	}
	err = h.deps.Store.RemoveMember(ctx, room.ID, e.User)
	if errors.Is(err, store.ErrNotFound) {
		return reject("not_found", "user is not a member of this room")
	}
	if err != nil {
		return err
	}
	h.broadcastAll(info(fmt.Sprintf("%s was kicked from %s", e.User, room.Name)), nil)
	if kicked, ok := h.registry.Get(e.User); ok {
		if err := h.sendRoomsList(ctx, kicked); err != nil {
			return err
		}
	}
	h.emit(ctx, events.Event{Type: events.UserKicked, Room: room.ID, Actor: c.nick, Subject: e.User})
	return nil
}

// handleBan 写入封禁记录。成员记录保留，封禁本身阻止该用户在房间内的所有写操作。
func (h *Hub) handleBan(ctx context.Context, c *Client, e *memberReq) error {
	room, err := h.authorizedRoom(ctx, e.RoomName, c.nick, authz.BanUser)
	if err != nil {
		return err
	}
	if e.User == c.nick {
		return reject("invalid", "cannot ban yourself")
	}
	if _, err := h.deps.Store.UserByName(ctx, e.User); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return reject("not_found", "unknown user")
		}
		return err
	}
	if err := h.deps.Store.Ban(ctx, room.ID, e.User, c.nick); err != nil {
		return err
	}
	h.broadcastAll(info(fmt.Sprintf("%s was banned in %s", e.User, room.Name)), nil)
	h.emit(ctx, events.Event{Type: events.UserBanned, Room: room.ID, Actor: c.nick, Subject: e.User})
	return nil
}

func (h *Hub) handleRenameRoom(ctx context.Context, c *Client, e *renameRoomReq) error {
	room, err := h.authorizedRoom(ctx, e.RoomName, c.nick, authz.Rename)
	if err != nil {
		return err
	}
	err = h.deps.Store.RenameRoom(ctx, room.ID, e.NewName)
	if errors.Is(err, store.ErrConflict) {
		return reject("conflict", "room name already taken")
	}
	if err != nil {
		return err
	}
	h.refreshRooms(ctx)
	return nil
}

func (h *Hub) handleRoomAvatar(ctx context.Context, c *Client, e *roomAvatarReq) error {
	room, err := h.authorizedRoom(ctx, e.RoomName, c.nick, authz.ChangeAvatar)
	if err != nil {
		return err
	}
	if err := h.deps.Store.SetRoomAvatar(ctx, room.ID, e.Avatar); err != nil {
		return err
	}
	h.refreshRooms(ctx)
	return nil
}

func (h *Hub) handleChangeRole(ctx context.Context, c *Client, e *roleReq) error {
	room, err := h.authorizedRoom(ctx, e.RoomName, c.nick, authz.ChangeRole)
	if err != nil {
		return err
	}
	err = h.deps.Store.SetRole(ctx, room.ID, e.Username, e.Role)
	if errors.Is(err, store.ErrNotFound) {
		return reject("not_found", "user is not a member of this room")
	}
	if err != nil {
		return err
	}
	h.broadcastAll(info(fmt.Sprintf("role of %s in %s changed to %s", e.Username, room.Name, e.Role)), nil)
	h.emit(ctx, events.Event{Type: events.RoleChanged, Room: room.ID, Actor: c.nick, Subject: e.Username, Role: e.Role})
	return nil
}

func (h *Hub) handleDeletedLog(ctx context.Context, c *Client, e *roomReq) error {
	room, err := h.authorizedRoom(ctx, e.RoomName, c.nick, authz.ViewDeleted)
	if err != nil {
		return err
	}
	rows, err := h.deps.Store.DeletedLog(ctx, room.ID, deletedLimit)
	if err != nil {
		return err
	}
	c.sendJSON(map[string]any{"type": "deleted_log", "room_name": room.ID, "entries": deletedViews(rows)})
	return nil
}
