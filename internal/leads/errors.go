package leads

import "errors"

var (
	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")

	// ErrInvalidStatus is returned for a status outside the lifecycle vocabulary
	ErrInvalidStatus = errors.New("invalid lead status")
)
