package repositories

import "errors"

// ErrNotFound is returned when a record or schema does not exist.
var ErrNotFound = errors.New("not found")
