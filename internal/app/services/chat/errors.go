package chat

import "errors"

// ErrEditWindowClosed is returned when a caller may not edit a message,
// either because they are not the author or the edit window has elapsed.
var ErrEditWindowClosed = errors.New("message can no longer be edited")
