package layout

import (
	"errors"
	"fmt"
)

// ErrUnresolved is returned when a named member cannot be located in an aggregate.
var ErrUnresolved = errors.New("layout unresolved")

// UnresolvedError names the aggregate and member that could not be found.
type UnresolvedError struct {
	Aggregate string
	Field     string
}

func (e *UnresolvedError) Error() string {
	if e.Aggregate == "" {
		return fmt.Sprintf("%v: field %q not found", ErrUnresolved, e.Field)
	}
	return fmt.Sprintf("%v: field %q not found in %s", ErrUnresolved, e.Field, e.Aggregate)
}

func (e *UnresolvedError) Unwrap() error {
	return ErrUnresolved
}
