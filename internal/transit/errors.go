package transit

import "errors"

var (
	ErrTooFewStops      = errors.New("line needs at least 2 stops")
	ErrLineActive       = errors.New("line is active")
	ErrPassengersAboard = errors.New("cannot remove: passengers aboard")
	ErrDuplicateStop    = errors.New("stop already on line")
	ErrUnknownStop      = errors.New("unknown stop")
	ErrUnknownLine      = errors.New("unknown line")
)
