package chat

import "time"

// Channel is a chat room users can join.
type Channel struct {
	ID        string
	Name      string
	Kind      string // public|private|direct
	CreatedAt time.Time
}

// Membership records that a user belongs to a channel.
type Membership struct {
	UserID    string
	ChannelID string
	Role      string
	JoinedAt  time.Time
}

// Message is a single chat message.
type Message struct {
	ID        string
	ChannelID string
	AuthorID  string
	Body      string
	CreatedAt time.Time
	EditedAt  time.Time
}

// Reaction is an emoji response attached to a story or message.
type Reaction struct {
	ID       string
	TargetID string
	ActorID  string
	Emoji    string
}

// Comment is a reply attached to a story.
type Comment struct {
	ID       string
	StoryID  string
	ActorID  string
	Body     string
	PostedAt time.Time
}
