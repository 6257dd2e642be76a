package wallet

import "time"

// Snapshot is the cached view of a wallet balance. Amount and USDApprox are
// decimal strings; USDApprox is a display estimate derived from a fixed
// configured price, not a live feed.
type Snapshot struct {
	Address   string
	Amount    string
	USDApprox string
	FetchedAt time.Time
	Loading   bool
	Err       string
}
