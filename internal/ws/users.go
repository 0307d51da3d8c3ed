package ws

import (
	"context"
	"unicode/utf8"

	"github.com/dilwearus-ops/neochat-server/internal/moderation"
)

const (
	maxStatusLen        = 256
	searchUsersLimit    = 20
	recentContactsLimit = 15
)

func (h *Hub) handleStatus(ctx context.Context, c *Client, e *statusReq) error {
	status := moderation.Sanitize(e.Status)
	if utf8.RuneCountInString(status) > maxStatusLen {
		return reject("invalid", "status is too long")
	}
	if err := h.deps.Store.UpdateStatus(ctx, c.nick, status); err != nil {
		return err
	}
	h.broadcastPresence(ctx)
	return nil
}

func (h *Hub) handleProfile(ctx context.Context, c *Client, e *profileReq) error {
	if err := h.deps.Store.UpdateProfile(ctx, c.nick, e.Avatar, moderation.Sanitize(e.Bio)); err != nil {
		return err
	}
	h.broadcastPresence(ctx)
	c.sendJSON(info("profile updated"))
	return nil
}

func (h *Hub) handleSearchUsers(ctx context.Context, c *Client, e *queryReq) error {
	views := []UserView{}
	if e.Query != "" {
		users, err := h.deps.Store.SearchUsers(ctx, e.Query, c.nick, searchUsersLimit)
		if err != nil {
			return err
		}
		views = userViews(users)
	}
	c.sendJSON(map[string]any{"type": "search_users_results", "results": views})
	return nil
}

func (h *Hub) handleRecentContacts(ctx context.Context, c *Client) error {
	users, err := h.deps.Store.RecentContacts(ctx, c.nick, recentContactsLimit)
	if err != nil {
		return err
	}
	c.sendJSON(map[string]any{"type": "recent_contacts", "contacts": userViews(users)})
	return nil
}
