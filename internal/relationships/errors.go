package relationships

import "errors"

var (
	// ErrValidation is returned when a record of the wrong type is added to a typed relationship
	ErrValidation = errors.New("relationship validation failed")

	// ErrState is returned for operations that are invalid in the current state
	ErrState = errors.New("invalid relationship state")

	// ErrProtocol is returned when a caller passes a value of the wrong kind
	ErrProtocol = errors.New("relationship protocol violation")

	// ErrIdentity is returned when a proxy does not originate from the relationship being synced
	ErrIdentity = errors.New("relationship identity mismatch")
)
