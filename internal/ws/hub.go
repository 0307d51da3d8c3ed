// Package ws 实现实时会话层：连接注册表、带类型标签的协议、每连接状态机、
// 事件分发和扇出投递。
//
// 每个连接由自己的 goroutine 读取并处理事件，写出由独立的 writePump 负责；
// 扇出只做非阻塞入队，一个慢客户端不会拖住其他会话。所有持久化写操作经由
// store.Store 串行化。
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/authz"
	"github.com/dilwearus-ops/neochat-server/internal/clock"
	"github.com/dilwearus-ops/neochat-server/internal/events"
	"github.com/dilwearus-ops/neochat-server/internal/invite"
	"github.com/dilwearus-ops/neochat-server/internal/models"
	"github.com/dilwearus-ops/neochat-server/internal/moderation"
	"github.com/dilwearus-ops/neochat-server/internal/presence"
	"github.com/dilwearus-ops/neochat-server/internal/store"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Authenticator 处理 auth_req 并为成功的会话签发访问令牌，service.UserService 满足该接口。
type Authenticator interface {
	Authenticate(ctx context.Context, action, username, password string) (*models.User, error)
	AccessToken(u *models.User) (string, error)
}

// Deps 是 Hub 的外部依赖。除 Store 和 Auth 外都可以留空，NewHub 会补上默认实现。
type Deps struct {
	Store    *store.Store
	Auth     Authenticator
	Limiter  moderation.Limiter
	Filter   *moderation.Filter
	Presence *presence.Tracker
	Gate     *authz.Gate
	Invites  *invite.Manager
	Events   events.Publisher
	Clock    clock.Clock
}

type Options struct {
	AuthTimeout   time.Duration
	StoreTimeout  time.Duration
	PingInterval  time.Duration
	MaxFrameBytes int64
	SendBuffer    int
}

func (o *Options) setDefaults() {
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 60 * time.Second
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 20 << 20
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
}

type Hub struct {
	deps     Deps
	opts     Options
	registry *Registry
	upgrader websocket.Upgrader
}

func NewHub(deps Deps, opts Options) *Hub {
	opts.setDefaults()
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Limiter == nil {
		deps.Limiter = moderation.NewSlidingWindow(deps.Clock, moderation.DefaultLimit, moderation.DefaultWindow)
	}
	if deps.Filter == nil {
		deps.Filter = moderation.NewFilter(moderation.DefaultBlocklist...)
	}
	if deps.Presence == nil {
		deps.Presence = presence.NewTracker(deps.Clock)
	}
	if deps.Gate == nil {
		deps.Gate = authz.NewGate(deps.Store)
	}
	if deps.Invites == nil {
		deps.Invites = invite.NewManager(deps.Store, deps.Clock, invite.DefaultTTL)
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	return &Hub{
		deps:     deps,
		opts:     opts,
		registry: NewRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// IsOnline 报告 nick 当前是否有活跃会话。
func (h *Hub) IsOnline(nick string) bool {
	_, ok := h.registry.Get(nick)
	return ok
}

func (h *Hub) Online() []string { return h.registry.Handles() }

// broadcastAll 把同一份负载投递给所有在线会话（exclude 除外），返回成功入队的数量。
// 房间消息也走这里：投递对象是全部在线会话，不按成员过滤。
func (h *Hub) broadcastAll(v any, exclude *Client) int {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("encode broadcast")
		return 0
	}
	n := 0
	for _, c := range h.registry.Clients() {
		if c == exclude {
			continue
		}
		if c.deliver(b) {
			n++
		}
	}
	return n
}

// sendTo 投递给在线用户，对方不在线时返回 false。
func (h *Hub) sendTo(nick string, v any) bool {
	c, ok := h.registry.Get(nick)
	if !ok {
		return false
	}
	return c.sendJSON(v)
}

// audience 按消息的路由投递：房间消息广播，私聊只发给双方。
func (h *Hub) audience(m *models.Message, v any) {
	if m.Context == models.ContextRoom {
		h.broadcastAll(v, nil)
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("encode pm payload")
		return
	}
	for _, nick := range []string{m.Sender, m.Target} {
		if c, ok := h.registry.Get(nick); ok {
			c.deliver(b)
		}
		if m.Sender == m.Target {
			break
		}
	}
}

// broadcastPresence 为每个在线用户重新组装联系人列表并推送。
func (h *Hub) broadcastPresence(ctx context.Context) {
	online := h.registry.Handles()
	for _, c := range h.registry.Clients() {
		list, err := h.deps.Presence.ContactList(ctx, h.deps.Store, c.nick, online)
		if err != nil {
			log.Warn().Err(err).Str("nick", c.nick).Msg("build contact list")
			continue
		}
		c.sendJSON(map[string]any{"type": "contacts_list", "users": list})
	}
}

// roomsList 返回 nick 所在房间的 rooms_list 负载。
func (h *Hub) roomsList(ctx context.Context, nick string) (map[string]any, error) {
	rooms, err := h.deps.Store.RoomsFor(ctx, nick)
	if err != nil {
		return nil, err
	}
	views := make([]RoomView, 0, len(rooms))
	for _, r := range rooms {
		views = append(views, roomView(r))
	}
	return map[string]any{"type": "rooms_list", "rooms": views}, nil
}

func (h *Hub) sendRoomsList(ctx context.Context, c *Client) error {
	payload, err := h.roomsList(ctx, c.nick)
	if err != nil {
		return err
	}
	c.sendJSON(payload)
	return nil
}

// refreshRooms 给每个在线会话推送各自的 rooms_list。
func (h *Hub) refreshRooms(ctx context.Context) {
	for _, c := range h.registry.Clients() {
		if err := h.sendRoomsList(ctx, c); err != nil {
			log.Warn().Err(err).Str("nick", c.nick).Msg("refresh rooms list")
		}
	}
}

func (h *Hub) emit(ctx context.Context, ev events.Event) {
	ev.At = h.deps.Clock.Now().UTC()
	events.Emit(ctx, h.deps.Events, ev)
}
