package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dilwearus-ops/neochat-server/internal/models"
	"github.com/dilwearus-ops/neochat-server/internal/moderation"
)

var (
	errMalformed   = errors.New("malformed frame")
	errUnknownType = errors.New("unknown event type")
)

const maxEmojiBytes = 64

// roomNameChars 不允许出现在房间名里：房间 ID 由名称直接派生，转义会改变 ID。
const roomNameChars = `<>&"'`

// event 是一个已解码的入站帧。validate 在分发前调用，失败时会话回复 error 并继续。
type event interface {
	validate() error
}

type envelope struct {
	Type string `json:"type"`
}

type authReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Action   string `json:"action"`
}

func (e *authReq) validate() error {
	if e.Action != "register" && e.Action != "login" {
		return fmt.Errorf("%w: action must be register or login", errMalformed)
	}
	if e.Password == "" {
		return fmt.Errorf("%w: password required", errMalformed)
	}
	return nil
}

// contentEvent 覆盖所有会被持久化的消息类型（msg、image、poll 等）。
type contentEvent struct {
	Type          string          `json:"type"`
	Text          string          `json:"text"`
	Data          string          `json:"data"`
	Filename      string          `json:"filename"`
	RoomName      string          `json:"room_name"`
	Recipient     string          `json:"recipient"`
	ReplyTo       json.RawMessage `json:"replyTo"`
	ThreadID      *uint           `json:"thread_id"`
	Options       []string        `json:"options"`
	ScheduledTime *float64        `json:"scheduled_time"`
}

func (e *contentEvent) validate() error {
	if err := exactlyOne("room_name", e.RoomName, "recipient", e.Recipient); err != nil {
		return err
	}
	if e.Type == models.TypePoll {
		if len(e.Options) < 2 {
			return fmt.Errorf("%w: poll needs at least two options", errMalformed)
		}
		return nil
	}
	if e.Text == "" && e.Data == "" {
		return fmt.Errorf("%w: empty message", errMalformed)
	}
	return nil
}

type historyReq struct {
	Context  string `json:"context"`
	Target   string `json:"target"`
	BeforeID uint   `json:"before_id"`
	Limit    int    `json:"limit"`
}

func (e *historyReq) validate() error {
	return validRoute(e.Context, e.Target)
}

type searchMessagesReq struct {
	Context   string   `json:"context"`
	Target    string   `json:"target"`
	Query     string   `json:"query"`
	StartDate *float64 `json:"start_date"`
	EndDate   *float64 `json:"end_date"`
	Limit     int      `json:"limit"`
}

func (e *searchMessagesReq) validate() error {
	return validRoute(e.Context, e.Target)
}

type messageRef struct {
	MessageID uint `json:"message_id"`
}

func (e *messageRef) validate() error {
	if e.MessageID == 0 {
		return fmt.Errorf("%w: message_id required", errMalformed)
	}
	return nil
}

type forwardReq struct {
	MessageID  uint   `json:"message_id"`
	TargetType string `json:"target_type"`
	Target     string `json:"target"`
}

func (e *forwardReq) validate() error {
	if e.MessageID == 0 || e.Target == "" {
		return fmt.Errorf("%w: message_id and target required", errMalformed)
	}
	if e.TargetType != models.ContextRoom && e.TargetType != models.ContextPM {
		return fmt.Errorf("%w: target_type must be room or pm", errMalformed)
	}
	return nil
}

type statusReq struct {
	Status string `json:"status"`
}

func (e *statusReq) validate() error { return nil }

type threadReq struct {
	ThreadID uint `json:"thread_id"`
}

func (e *threadReq) validate() error {
	if e.ThreadID == 0 {
		return fmt.Errorf("%w: thread_id required", errMalformed)
	}
	return nil
}

type voteReq struct {
	MessageID   uint `json:"message_id"`
	OptionIndex *int `json:"option_index"`
}

func (e *voteReq) validate() error {
	if e.MessageID == 0 || e.OptionIndex == nil || *e.OptionIndex < 0 {
		return fmt.Errorf("%w: message_id and option_index required", errMalformed)
	}
	return nil
}

type signalReq struct {
	Data     json.RawMessage `json:"data"`
	RoomName string          `json:"room_name"`
	Target   string          `json:"target"`
}

func (e *signalReq) validate() error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: data required", errMalformed)
	}
	return exactlyOne("room_name", e.RoomName, "target", e.Target)
}

// typingReq 原样转发，raw 保存客户端发来的全部字段。
type typingReq struct {
	RoomName  string `json:"room_name"`
	Recipient string `json:"recipient"`
	raw       map[string]any
}

func (e *typingReq) validate() error {
	return exactlyOne("room_name", e.RoomName, "recipient", e.Recipient)
}

type reactionReq struct {
	MessageID uint   `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// validate 转义 emoji 后再检查长度，存储的是转义后的值。
func (e *reactionReq) validate() error {
	if e.MessageID == 0 || e.Emoji == "" {
		return fmt.Errorf("%w: message_id and emoji required", errMalformed)
	}
	e.Emoji = moderation.Sanitize(e.Emoji)
	if len(e.Emoji) > maxEmojiBytes {
		return fmt.Errorf("%w: emoji too long", errMalformed)
	}
	return nil
}

type markReadReq struct {
	Sender string `json:"sender"`
}

func (e *markReadReq) validate() error {
	if e.Sender == "" {
		return fmt.Errorf("%w: sender required", errMalformed)
	}
	return nil
}

type editReq struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

func (e *editReq) validate() error {
	if e.ID == 0 || e.Text == "" {
		return fmt.Errorf("%w: id and text required", errMalformed)
	}
	return nil
}

type deleteReq struct {
	ID     uint   `json:"id"`
	Reason string `json:"reason"`
}

func (e *deleteReq) validate() error {
	if e.ID == 0 {
		return fmt.Errorf("%w: id required", errMalformed)
	}
	return nil
}

type pinReq struct {
	RoomName string `json:"room_name"`
	ID       uint   `json:"id"`
}

func (e *pinReq) validate() error {
	if e.RoomName == "" || e.ID == 0 {
		return fmt.Errorf("%w: room_name and id required", errMalformed)
	}
	return nil
}

// roomReq 用于只带房间的请求：create_invite、get_deleted_log。
type roomReq struct {
	RoomName string `json:"room_name"`
}

func (e *roomReq) validate() error {
	if e.RoomName == "" {
		return fmt.Errorf("%w: room_name required", errMalformed)
	}
	return nil
}

type inviteCodeReq struct {
	Code string `json:"code"`
}

func (e *inviteCodeReq) validate() error {
	if e.Code == "" {
		return fmt.Errorf("%w: code required", errMalformed)
	}
	return nil
}

// memberReq 用于 kick_user 和 ban_user。
type memberReq struct {
	RoomName string `json:"room_name"`
	User     string `json:"user"`
}

func (e *memberReq) validate() error {
	if e.RoomName == "" || e.User == "" {
		return fmt.Errorf("%w: room_name and user required", errMalformed)
	}
	return nil
}

type profileReq struct {
	Avatar string `json:"avatar"`
	Bio    string `json:"bio"`
}

func (e *profileReq) validate() error { return nil }

type createRoomReq struct {
	Name  string `json:"name"`
	Rtype string `json:"rtype"`
}

func (e *createRoomReq) validate() error {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return fmt.Errorf("%w: name required", errMalformed)
	}
	if strings.ContainsAny(e.Name, roomNameChars) {
		return fmt.Errorf("%w: room name must not contain %s", errMalformed, roomNameChars)
	}
	if e.Rtype == "" {
		e.Rtype = models.RoomGroup
	}
	if e.Rtype != models.RoomGroup && e.Rtype != models.RoomChannel {
		return fmt.Errorf("%w: rtype must be group or channel", errMalformed)
	}
	return nil
}

type queryReq struct {
	Query string `json:"query"`
}

func (e *queryReq) validate() error {
	e.Query = strings.TrimSpace(e.Query)
	return nil
}

type joinRoomReq struct {
	RoomID string `json:"room_id"`
}

func (e *joinRoomReq) validate() error {
	if e.RoomID == "" {
		return fmt.Errorf("%w: room_id required", errMalformed)
	}
	return nil
}

type emptyReq struct{}

func (e *emptyReq) validate() error { return nil }

type renameRoomReq struct {
	RoomName string `json:"room_name"`
	NewName  string `json:"new_name"`
}

func (e *renameRoomReq) validate() error {
	e.NewName = strings.TrimSpace(e.NewName)
	if e.RoomName == "" || e.NewName == "" {
		return fmt.Errorf("%w: room_name and new_name required", errMalformed)
	}
	if strings.ContainsAny(e.NewName, roomNameChars) {
		return fmt.Errorf("%w: room name must not contain %s", errMalformed, roomNameChars)
	}
	return nil
}

type roomAvatarReq struct {
	RoomName string `json:"room_name"`
	Avatar   string `json:"avatar"`
}

func (e *roomAvatarReq) validate() error {
	if e.RoomName == "" {
		return fmt.Errorf("%w: room_name required", errMalformed)
	}
	return nil
}

type roleReq struct {
	RoomName string `json:"room_name"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (e *roleReq) validate() error {
	if e.RoomName == "" || e.Username == "" {
		return fmt.Errorf("%w: room_name and username required", errMalformed)
	}
	switch e.Role {
	case models.RoleAdmin, models.RoleModerator, models.RoleMember:
		return nil
	}
	return fmt.Errorf("%w: unknown role %q", errMalformed, e.Role)
}

// contentTypes 是会被持久化并计入限流的消息类型。
var contentTypes = map[string]bool{
	models.TypeMsg:     true,
	models.TypeImage:   true,
	models.TypeVideo:   true,
	models.TypeAudio:   true,
	models.TypeFile:    true,
	models.TypePoll:    true,
	models.TypeSticker: true,
}

var decoders = map[string]func() event{
	"history_req":         func() event { return &historyReq{} },
	"search_messages":     func() event { return &searchMessagesReq{} },
	"toggle_bookmark":     func() event { return &messageRef{} },
	"forward_msg":         func() event { return &forwardReq{} },
	"update_status":       func() event { return &statusReq{} },
	"get_thread":          func() event { return &threadReq{} },
	"vote_poll":           func() event { return &voteReq{} },
	"signal":              func() event { return &signalReq{} },
	"typing":              func() event { return &typingReq{} },
	"reaction":            func() event { return &reactionReq{} },
	"mark_read":           func() event { return &markReadReq{} },
	"edit_msg":            func() event { return &editReq{} },
	"delete_msg":          func() event { return &deleteReq{} },
	"pin_msg":             func() event { return &pinReq{} },
	"create_invite":       func() event { return &roomReq{} },
	"join_with_invite":    func() event { return &inviteCodeReq{} },
	"kick_user":           func() event { return &memberReq{} },
	"ban_user":            func() event { return &memberReq{} },
	"update_profile":      func() event { return &profileReq{} },
	"create_room":         func() event { return &createRoomReq{} },
	"search_rooms":        func() event { return &queryReq{} },
	"search_users":        func() event { return &queryReq{} },
	"join_room":           func() event { return &joinRoomReq{} },
	"get_recent_contacts": func() event { return &emptyReq{} },
	"rename_room":         func() event { return &renameRoomReq{} },
	"update_room_avatar":  func() event { return &roomAvatarReq{} },
	"change_member_role":  func() event { return &roleReq{} },
	"get_deleted_log":     func() event { return &roomReq{} },
}

// decodeEvent 按 type 字段选择具体结构并校验。返回的 type 即使出错也会尽量给出，便于记录日志。
func decodeEvent(data []byte) (string, event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	var ev event
	switch {
	case contentTypes[env.Type]:
		ev = &contentEvent{}
	case env.Type == "auth_req":
		ev = &authReq{}
	default:
		mk, ok := decoders[env.Type]
		if !ok {
			return env.Type, nil, fmt.Errorf("%w: %q", errUnknownType, env.Type)
		}
		ev = mk()
	}
	if err := json.Unmarshal(data, ev); err != nil {
		return env.Type, nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if t, ok := ev.(*typingReq); ok {
		if err := json.Unmarshal(data, &t.raw); err != nil {
			return env.Type, nil, fmt.Errorf("%w: %v", errMalformed, err)
		}
	}
	if err := ev.validate(); err != nil {
		return env.Type, nil, err
	}
	return env.Type, ev, nil
}

func exactlyOne(aName, a, bName, b string) error {
	if (a == "") == (b == "") {
		return fmt.Errorf("%w: exactly one of %s or %s required", errMalformed, aName, bName)
	}
	return nil
}

func validRoute(kind, target string) error {
	if kind != models.ContextRoom && kind != models.ContextPM {
		return fmt.Errorf("%w: context must be room or pm", errMalformed)
	}
	if target == "" {
		return fmt.Errorf("%w: target required", errMalformed)
	}
	return nil
}
