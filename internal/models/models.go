package models

import "time"

// 消息路由上下文。
const (
	ContextRoom = "room"
	ContextPM   = "pm"
)

// 房间类型：channel 只有管理员可以发言。
const (
	RoomGroup   = "group"
	RoomChannel = "channel"
)

// 房间内角色。
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

// 消息类型。
const (
	TypeMsg     = "msg"
	TypeImage   = "image"
	TypeVideo   = "video"
	TypeAudio   = "audio"
	TypeFile    = "file"
	TypePoll    = "poll"
	TypeSticker = "sticker"
)

const DefaultStatus = "Hi, I'm here"

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:20;not null"`
	PasswordHash string `gorm:"not null"`
	Avatar       string `gorm:"type:text"`
	Bio          string `gorm:"type:text"`
	Status       string `gorm:"size:256"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Room 的 ID 在创建时由名称推导（见 store.RoomID），重命名不会改变 ID。
type Room struct {
	ID              string `gorm:"primaryKey;size:160"`
	Name            string `gorm:"uniqueIndex;size:128;not null"`
	Creator         string `gorm:"size:20;not null"`
	Type            string `gorm:"size:16;not null"`
	Avatar          string `gorm:"type:text"`
	PinnedMessageID *uint
	CreatedAt       time.Time `gorm:"index"`
}

type RoomMember struct {
	RoomID   string    `gorm:"primaryKey;size:160"`
	Username string    `gorm:"primaryKey;size:20;index"`
	Role     string    `gorm:"size:16;not null"`
	JoinedAt time.Time `gorm:"not null"`
}

type Ban struct {
	RoomID    string `gorm:"primaryKey;size:160"`
	Username  string `gorm:"primaryKey;size:20"`
	BannedBy  string `gorm:"size:20"`
	CreatedAt time.Time
}

// Message 是持久化的消息。Target 在 room 上下文中是房间 ID，在 pm 上下文中是接收者用户名。
type Message struct {
	ID           uint   `gorm:"primaryKey"`
	Context      string `gorm:"size:8;not null;index:idx_msg_route,priority:1"`
	Target       string `gorm:"size:160;not null;index:idx_msg_route,priority:2"`
	Sender       string `gorm:"size:20;not null;index"`
	Type         string `gorm:"column:mtype;size:16;not null"`
	Text         string `gorm:"type:text"`
	MediaData    string `gorm:"type:text"`
	Filename     string `gorm:"size:255"`
	ReplyTo      string `gorm:"type:text"`
	ThreadID     *uint  `gorm:"index"`
	IsEdited     bool
	IsRead       bool
	IsBookmarked bool
	ScheduledFor *time.Time
	CreatedAt    time.Time `gorm:"index"`
}

type Reaction struct {
	MessageID uint   `gorm:"primaryKey;autoIncrement:false"`
	Username  string `gorm:"primaryKey;size:20"`
	Emoji     string `gorm:"primaryKey;size:64"`
}

type PollVote struct {
	MessageID   uint   `gorm:"primaryKey;autoIncrement:false"`
	Username    string `gorm:"primaryKey;size:20"`
	OptionIndex int    `gorm:"not null"`
}

type Bookmark struct {
	Username  string `gorm:"primaryKey;size:20"`
	MessageID uint   `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time
}

type InviteCode struct {
	Code      string `gorm:"primaryKey;size:32"`
	RoomID    string `gorm:"size:160;not null;index"`
	Creator   string `gorm:"size:20;not null"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index;not null"`
}

// DeletedMessage 是删除审计记录，保存原消息路由信息，独立于 messages 表存在。
type DeletedMessage struct {
	ID        uint   `gorm:"primaryKey"`
	MessageID uint   `gorm:"index;not null"`
	Context   string `gorm:"size:8"`
	Target    string `gorm:"size:160;index"`
	Sender    string `gorm:"size:20"`
	Text      string `gorm:"type:text"`
	DeletedBy string `gorm:"size:20;not null"`
	Reason    string `gorm:"type:text"`
	DeletedAt time.Time
}

type ScheduledMessage struct {
	ID           uint   `gorm:"primaryKey"`
	Context      string `gorm:"size:8;not null"`
	Target       string `gorm:"size:160;not null"`
	Sender       string `gorm:"size:20;not null"`
	Type         string `gorm:"column:mtype;size:16;not null"`
	Text         string `gorm:"type:text"`
	MediaData    string `gorm:"type:text"`
	Filename     string `gorm:"size:255"`
	ReplyTo      string `gorm:"type:text"`
	ThreadID     *uint
	ScheduledFor time.Time `gorm:"index;not null"`
	Sent         bool      `gorm:"index;not null"`
	CreatedAt    time.Time
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
