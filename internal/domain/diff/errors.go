package diff

import "errors"

// ErrStore marks a snapshot read or write failure.
var ErrStore = errors.New("snapshot store failure")
