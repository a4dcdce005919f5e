package index

import "errors"

// ErrMalformedKey is returned when a stored key does not have the shape
// its prefix implies; it signals on-disk corruption rather than a usage
// error.
var ErrMalformedKey = errors.New("index: malformed key")
