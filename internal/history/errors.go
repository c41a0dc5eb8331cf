package history

import "errors"

// ErrClosed is returned by a Store used after Close.
var ErrClosed = errors.New("history store closed")
