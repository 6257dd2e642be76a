package notifier

import "github.com/Van103/fun-charity-sub001/internal/app/domain/notification"

// Alerter delivers a local, best-effort alert (sound, desktop notification)
// when a friend request arrives. Implementations may fail freely: the
// aggregator discards errors and never lets them affect counter state.
type Alerter interface {
	Alert(category notification.Category) error
}

// AlerterFunc adapts a function to the Alerter interface.
type AlerterFunc func(category notification.Category) error

func (f AlerterFunc) Alert(category notification.Category) error {
	if f == nil {
		return nil
	}
	return f(category)
}
