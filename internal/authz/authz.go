// Package authz 决定某个用户能否在某个房间执行某个动作。每次检查都重新读取角色和封禁。
package authz

import (
	"context"
	"errors"

	"github.com/dilwearus-ops/neochat-server/internal/models"
)

var (
	ErrBanned    = errors.New("authz: banned from room")
	ErrNotMember = errors.New("authz: not a member")
	ErrForbidden = errors.New("authz: insufficient role")
)

type Action string

const (
	Post         Action = "post"
	Pin          Action = "pin"
	Rename       Action = "rename"
	ChangeAvatar Action = "avatar"
	ChangeRole   Action = "change_role"
	Kick         Action = "kick"
	BanUser      Action = "ban"
	CreateInvite Action = "invite"
	DeleteAny    Action = "delete_any"
	ViewDeleted  Action = "deleted_log"
	Join         Action = "join"
	ReadHistory  Action = "read"
)

// required 为空表示任何成员都可以执行。
var required = map[Action][]string{
	Post:         nil,
	ReadHistory:  nil,
	Pin:          {models.RoleAdmin},
	Rename:       {models.RoleAdmin},
	ChangeAvatar: {models.RoleAdmin},
	ChangeRole:   {models.RoleAdmin},
	Kick:         {models.RoleAdmin},
	BanUser:      {models.RoleAdmin},
	CreateInvite: {models.RoleAdmin, models.RoleModerator},
	DeleteAny:    {models.RoleAdmin, models.RoleModerator},
	ViewDeleted:  {models.RoleAdmin, models.RoleModerator},
}

// Lookup 是 Gate 需要的持久化查询，store.Store 满足该接口。
type Lookup interface {
	Room(ctx context.Context, idOrName string) (*models.Room, error)
	Role(ctx context.Context, roomID, username string) (string, error)
	IsBanned(ctx context.Context, roomID, username string) (bool, error)
}

type Gate struct {
	lookup Lookup
}

func NewGate(l Lookup) *Gate {
	return &Gate{lookup: l}
}

// Check 依次检查：房间存在、封禁、成员资格、角色、频道发言限制。
// 房间不存在时返回 Lookup 的错误（store.ErrNotFound）。
func (g *Gate) Check(ctx context.Context, roomID, user string, action Action) error {
	room, err := g.lookup.Room(ctx, roomID)
	if err != nil {
		return err
	}
	banned, err := g.lookup.IsBanned(ctx, room.ID, user)
	if err != nil {
		return err
	}
	if banned {
		return ErrBanned
	}
	if action == Join {
		return nil
	}
	role, err := g.lookup.Role(ctx, room.ID, user)
	if err != nil {
		return err
	}
	if role == "" {
		return ErrNotMember
	}
	roles, ok := required[action]
	if !ok {
		return ErrForbidden
	}
	if len(roles) > 0 && !contains(roles, role) {
		return ErrForbidden
	}
	if action == Post && room.Type == models.RoomChannel && role != models.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
