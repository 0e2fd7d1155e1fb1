package domain

// WebSocket frame types from client.
const (
	FrameTypeIdentify       = "identify"
	FrameTypeJoinRoom       = "join_room"
	FrameTypeLeaveRoom      = "leave_room"
	FrameTypeSendMessage    = "send_message"
	FrameTypeTyping         = "typing"
	FrameTypePrivateMessage = "private_message"
	FrameTypePing           = "ping"
)

// WebSocket frame types to client.
const (
	FrameTypeUserList       = "user_list"
	FrameTypeUserJoined     = "user_joined"
	FrameTypeUserLeft       = "user_left"
	FrameTypeReceiveMessage = "receive_message"
	FrameTypeRoomHistory    = "room_history"
	FrameTypeTypingUsers    = "typing_users"
	FrameTypeError          = "error"
	FrameTypePong           = "pong"
)

// Error codes for boundary validation failures. Domain failures
// (unknown sender, empty content, offline recipient) are deliberately
// silent on the wire and only logged server-side.
const (
	ErrCodeBadRequest = "BAD_REQUEST"
)

// BaseFrame carries the discriminator shared by every frame.
type BaseFrame struct {
	Type string `json:"type"`
}

// Client -> Server frames

type IdentifyFrame struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type JoinRoomFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type LeaveRoomFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type SendMessageFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Room    string `json:"room,omitempty"`
}

type TypingFrame struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"isTyping"`
}

type PrivateMessageFrame struct {
	Type    string `json:"type"`
	To      string `json:"to"`
	Content string `json:"content"`
}

// Server -> Client frames

type UserListFrame struct {
	Type  string          `json:"type"`
	Users []PresenceEntry `json:"users"`
}

type UserEventFrame struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Username string `json:"username"`
}

type ReceiveMessageFrame struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

type RoomHistoryFrame struct {
	Type     string    `json:"type"`
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}

type TypingUsersFrame struct {
	Type      string   `json:"type"`
	Room      string   `json:"room"`
	Usernames []string `json:"usernames"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PongFrame struct {
	Type string `json:"type"`
}

// NewErrorFrame builds an error frame for a malformed or unknown inbound frame.
func NewErrorFrame(code, message string) *ErrorFrame {
	return &ErrorFrame{Type: FrameTypeError, Code: code, Message: message}
}
