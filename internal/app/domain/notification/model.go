package notification

// Category identifies the kind of activity a counter tracks.
type Category string

const (
	CategoryFriendRequest Category = "friend_request"
	CategoryReaction      Category = "reaction"
	CategoryComment       Category = "comment"
	CategoryDonation      Category = "donation"
)

// Counters is a snapshot of a user's notification tallies. UnreadTotal is the
// running sum of category increments since the last clear; the category
// counters are lifetime-since-subscribe totals and survive clears.
type Counters struct {
	UnreadTotal    int
	FriendRequests int
	Reactions      int
	Comments       int
	Donations      int
}

// Bump increments the counter for the category and the unread total.
// Unknown categories are ignored so a malformed event cannot corrupt state.
func (c *Counters) Bump(cat Category) {
	switch cat {
	case CategoryFriendRequest:
		c.FriendRequests++
	case CategoryReaction:
		c.Reactions++
	case CategoryComment:
		c.Comments++
	case CategoryDonation:
		c.Donations++
	default:
		return
	}
	c.UnreadTotal++
}
