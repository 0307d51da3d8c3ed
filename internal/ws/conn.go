package ws

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/metrics"
	"github.com/dilwearus-ops/neochat-server/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	errAuthFailed    = errors.New("authentication failed")
	errAlreadyOnline = errors.New("already online")
)

// Serve 把 HTTP 请求升级为 websocket 并运行会话，直到连接关闭才返回。
func (h *Hub) Serve() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Debug().Err(err).Str("remote", c.ClientIP()).Msg("websocket upgrade failed")
			return
		}
		h.runSession(c.Request.Context(), conn)
	}
}

// runSession 驱动单个连接的状态机：Connecting → Authenticating → Active → Closed。
func (h *Hub) runSession(ctx context.Context, conn *websocket.Conn) {
	c := newClient(conn, h.opts.SendBuffer)
	conn.SetReadLimit(h.opts.MaxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.opts.AuthTimeout))

	_, data, err := conn.ReadMessage()
	if err != nil {
		log.Debug().Err(err).Str("conn_id", c.id).Msg("no auth frame")
		_ = conn.Close()
		return
	}
	authCtx, cancel := context.WithTimeout(ctx, h.opts.StoreTimeout)
	err = h.login(authCtx, c, data)
	cancel()
	if err != nil {
		c.flush()
		_ = conn.Close()
		return
	}

	go c.writePump(h.opts.PingInterval)
	defer h.logout(c)
	h.readLoop(ctx, c)
}

// login 处理第一帧。失败时已把 auth_error 放入发送队列，调用方负责写出并断开。
func (h *Hub) login(ctx context.Context, c *Client, data []byte) error {
	_, ev, err := decodeEvent(data)
	req, ok := ev.(*authReq)
	if err != nil || !ok {
		c.sendJSON(authError("authentication required"))
		return errAuthFailed
	}
	if !service.ValidHandle(req.Username) {
		c.sendJSON(authError("invalid handle"))
		return errAuthFailed
	}
	user, err := h.deps.Auth.Authenticate(ctx, req.Action, req.Username, req.Password)
	if err != nil {
		text := "authentication failed"
		switch {
		case errors.Is(err, service.ErrUsernameTaken):
			text = "handle already taken"
		case errors.Is(err, service.ErrInvalidCredentials):
			text = "invalid credentials"
		case errors.Is(err, service.ErrInvalidUsername):
			text = "invalid handle"
		default:
			log.Error().Err(err).Str("nick", req.Username).Msg("authenticate")
		}
		c.sendJSON(authError(text))
		return fmt.Errorf("%w: %v", errAuthFailed, err)
	}
	token, err := h.deps.Auth.AccessToken(user)
	if err != nil {
		log.Error().Err(err).Str("nick", user.Username).Msg("issue access token")
		c.sendJSON(authError("authentication failed"))
		return fmt.Errorf("%w: %v", errAuthFailed, err)
	}

	c.nick = user.Username
	if !h.registry.Reserve(c.nick, c) {
		c.sendJSON(authError("already online"))
		return errAlreadyOnline
	}
	h.deps.Presence.Connected(c.nick)
	metrics.WsConnections.Inc()
	log.Info().Str("nick", c.nick).Str("conn_id", c.id).Str("action", req.Action).Msg("session authenticated")

	c.sendJSON(map[string]any{
		"type":        "auth_success",
		"nick":        user.Username,
		"avatar":      user.Avatar,
		"bio":         user.Bio,
		"status":      user.Status,
		"user_status": user.Status,
		"token":       token,
	})
	if err := h.sendRoomsList(ctx, c); err != nil {
		log.Warn().Err(err).Str("nick", c.nick).Msg("initial rooms list")
	}
	h.broadcastPresence(ctx)
	return nil
}

// readLoop 读取并分发帧，直到连接出错。处理过程中的 panic 在这里被捕获，
// 随后由 logout 完成清理，不影响其他会话。
func (h *Hub) readLoop(ctx context.Context, c *Client) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("nick", c.nick).Str("conn_id", c.id).
				Interface("panic", r).Bytes("stack", debug.Stack()).
				Msg("session handler panicked")
		}
	}()
	pongWait := 2 * h.opts.PingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("nick", c.nick).Msg("websocket read")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		h.HandleFrame(ctx, c, data)
	}
}

// logout 释放用户名、记录离开时间并重新广播在线状态。
func (h *Hub) logout(c *Client) {
	c.close()
	if !h.registry.Release(c.nick, c) {
		return
	}
	h.deps.Presence.Disconnected(c.nick)
	metrics.WsConnections.Dec()
	log.Info().Str("nick", c.nick).Str("conn_id", c.id).Msg("session closed")

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.StoreTimeout)
	defer cancel()
	h.broadcastPresence(ctx)
}

// HandleFrame 解码并处理一个已认证会话的入站帧。
func (h *Hub) HandleFrame(ctx context.Context, c *Client, data []byte) {
	typ, ev, err := decodeEvent(data)
	metrics.WsEventsTotal.WithLabelValues(eventLabel(typ, err)).Inc()
	if err != nil {
		h.fail(c, typ, err)
		return
	}
	h.deps.Presence.Touch(c.nick)

	ctx, cancel := context.WithTimeout(ctx, h.opts.StoreTimeout)
	defer cancel()
	if err := h.dispatch(ctx, c, typ, ev); err != nil {
		h.fail(c, typ, err)
	}
}

func eventLabel(typ string, err error) string {
	if errors.Is(err, errUnknownType) || typ == "" {
		return "unknown"
	}
	return typ
}

func authError(text string) map[string]any {
	return map[string]any{"type": "auth_error", "text": text}
}
