package ws

import (
	"context"
	"fmt"
)

// dispatch 把已校验的事件交给对应的处理函数。同一种结构可能对应多个 type，
// 比如 kick_user 和 ban_user 共用 memberReq。
func (h *Hub) dispatch(ctx context.Context, c *Client, typ string, ev event) error {
	switch e := ev.(type) {
	case *authReq:
		return reject("invalid", "already authenticated")
	case *contentEvent:
		return h.handleContent(ctx, c, e)
	case *historyReq:
		return h.handleHistory(ctx, c, e)
	case *searchMessagesReq:
		return h.handleSearchMessages(ctx, c, e)
	case *forwardReq:
		return h.handleForward(ctx, c, e)
	case *threadReq:
		return h.handleThread(ctx, c, e)
	case *voteReq:
		return h.handleVote(ctx, c, e)
	case *signalReq:
		return h.handleSignal(ctx, c, e)
	case *typingReq:
		return h.handleTyping(c, e)
	case *reactionReq:
		return h.handleReaction(ctx, c, e)
	case *markReadReq:
		return h.handleMarkRead(ctx, c, e)
	case *editReq:
		return h.handleEdit(ctx, c, e)
	case *deleteReq:
		return h.handleDelete(ctx, c, e)
	case *pinReq:
		return h.handlePin(ctx, c, e)
	case *inviteCodeReq:
		return h.handleJoinWithInvite(ctx, c, e)
	case *statusReq:
		return h.handleStatus(ctx, c, e)
	case *profileReq:
		return h.handleProfile(ctx, c, e)
	case *createRoomReq:
		return h.handleCreateRoom(ctx, c, e)
	case *joinRoomReq:
		return h.handleJoinRoom(ctx, c, e)
	case *emptyReq:
		return h.handleRecentContacts(ctx, c)
	case *renameRoomReq:
		return h.handleRenameRoom(ctx, c, e)
	case *roomAvatarReq:
		return h.handleRoomAvatar(ctx, c, e)
	case *roleReq:
		return h.handleChangeRole(ctx, c, e)
	case *messageRef:
		return h.handleBookmark(ctx, c, e)
	case *roomReq:
		if typ == "get_deleted_log" {
			return h.handleDeletedLog(ctx, c, e)
		}
		return h.handleCreateInvite(ctx, c, e)
	case *memberReq:
		if typ == "ban_user" {
			return h.handleBan(ctx, c, e)
		}
		return h.handleKick(ctx, c, e)
	case *queryReq:
		if typ == "search_users" {
			return h.handleSearchUsers(ctx, c, e)
		}
		return h.handleSearchRooms(ctx, c, e)
	}
	return fmt.Errorf("%w: %q", errUnknownType, typ)
}
