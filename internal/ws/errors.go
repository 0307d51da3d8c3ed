package ws

import (
	"context"
	"errors"

	"github.com/dilwearus-ops/neochat-server/internal/authz"
	"github.com/dilwearus-ops/neochat-server/internal/metrics"
	"github.com/dilwearus-ops/neochat-server/internal/store"

	"github.com/rs/zerolog/log"
)

// clientError 的文本原样回给客户端。
type clientError struct {
	reason string
	text   string
}

func (e *clientError) Error() string { return e.text }

func reject(reason, text string) error {
	return &clientError{reason: reason, text: text}
}

// fail 把处理错误映射为 error 事件；会话继续。未预期的错误只记录日志，不暴露细节。
func (h *Hub) fail(c *Client, typ string, err error) {
	reason, text := "internal", "internal error"
	var ce *clientError
	switch {
	case errors.As(err, &ce):
		reason, text = ce.reason, ce.text
	case errors.Is(err, errMalformed), errors.Is(err, errUnknownType):
		reason, text = "invalid", err.Error()
	case errors.Is(err, authz.ErrBanned):
		reason, text = "banned", "you are banned in this room"
	case errors.Is(err, authz.ErrNotMember):
		reason, text = "forbidden", "you are not a member of this room"
	case errors.Is(err, authz.ErrForbidden), errors.Is(err, store.ErrForbidden):
		reason, text = "forbidden", "insufficient permissions"
	case errors.Is(err, store.ErrNotFound):
		reason, text = "not_found", "not found"
	case errors.Is(err, store.ErrConflict):
		reason, text = "conflict", "already exists"
	case errors.Is(err, context.DeadlineExceeded):
		reason, text = "timeout", "server busy, try again"
		log.Warn().Err(err).Str("nick", c.nick).Str("type", typ).Msg("event timed out")
	default:
		log.Error().Err(err).Str("nick", c.nick).Str("type", typ).Msg("handle event")
	}
	metrics.WsRejectedTotal.WithLabelValues(reason).Inc()
	c.sendJSON(map[string]any{"type": "error", "text": text})
}
