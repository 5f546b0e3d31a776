package lineage

import (
	"errors"
	"fmt"
)

// ErrMalformedQuery is matched by errors.Is for any SQL that fails to parse.
var ErrMalformedQuery = errors.New("malformed query")

// MalformedQueryError wraps the parse error of a query that could not be
// resolved.
type MalformedQueryError struct {
	Err error
}

func (e *MalformedQueryError) Error() string {
	return fmt.Sprintf("malformed query: %v", e.Err)
}

func (e *MalformedQueryError) Unwrap() error { return e.Err }

// Is reports whether target is ErrMalformedQuery.
func (e *MalformedQueryError) Is(target error) bool {
	return target == ErrMalformedQuery
}
