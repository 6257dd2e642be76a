package donation

import "time"

// Status tracks a donation through its payment lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// Donation records a pledge toward a campaign. Amount is kept as a decimal
// string because on-chain values exceed float precision.
type Donation struct {
	ID         string
	DonorID    string
	CampaignID string
	Amount     string
	Currency   string
	Status     Status
	TxHash     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HonorBoardEntry is one row of the top-donors ranking.
type HonorBoardEntry struct {
	DonorID   string
	Total     string
	Donations int
}
