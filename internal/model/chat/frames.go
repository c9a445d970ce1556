package chat

// Outbound frame type tags that are not Message types.
const (
	FrameUserID   = "userId"
	FrameUserList = "userList"
)

// UserIDFrame tells a freshly connected client which identifier it was given.
type UserIDFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// UserListFrame carries a presence snapshot.
type UserListFrame struct {
	Type  string         `json:"type"`
	Users []ClientRecord `json:"users"`
}

// Inbound is what a client may send. Anything that does not decode into it
// is treated as plain content with no target.
type Inbound struct {
	Content  string `json:"content"`
	ToUserID string `json:"toUserId,omitempty"`
}
