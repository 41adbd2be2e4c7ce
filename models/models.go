package models

import "time"

// Origin tells whether a chat message was typed locally or arrived
// over the channel.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// ChatMessage is immutable once created. Its lifetime is bounded to
// the in-memory chat log.
type ChatMessage struct {
	ID     string
	Text   string
	Origin Origin
}

type User struct {
	ID       int64
	Username string
	Email    string
	Password string // bcrypt hash
}

type Post struct {
	ID       int64
	Title    string
	Likes    int64
	Dislikes int64
}

type ContactMessage struct {
	ID        int64
	Name      string
	Email     string
	Message   string
	CreatedAt time.Time
}
