package friendship

import "time"

// Status tracks the lifecycle of a friendship request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

// Friendship represents a directed friend request between two users.
type Friendship struct {
	ID          string
	RequesterID string
	RecipientID string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
