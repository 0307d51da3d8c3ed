package service

import "errors"

// 业务层通用错误，REST handler 和 websocket 认证根据错误类型选择响应。
var (
	ErrUsernameTaken      = errors.New("username taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidToken       = errors.New("invalid refresh token")
	ErrRoomNotFound       = errors.New("room not found")
	ErrNotMember          = errors.New("not a member of this room")
)
