package notifier

import "strconv"

// badgeCap is the largest count rendered verbatim on a badge.
const badgeCap = 99

// FormatBadge renders a counter for display on a notification badge. Zero
// and negative counts render empty, counts above the cap render as "99+".
func FormatBadge(n int) string {
	if n <= 0 {
		return ""
	}
	if n > badgeCap {
		return strconv.Itoa(badgeCap) + "+"
	}
	return strconv.Itoa(n)
}
