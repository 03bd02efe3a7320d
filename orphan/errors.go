package orphan

import (
	"errors"
	"fmt"
)

// ErrSafeguard is returned when a scan finds more orphans than it may move
var ErrSafeguard = errors.New("orphaned file safeguard tripped")

// SafeguardError carries the counts behind ErrSafeguard
type SafeguardError struct {
	Found int
	Limit int
}

func (e *SafeguardError) Error() string {
	return fmt.Sprintf("found %d orphaned files, more than the allowed %d; nothing moved", e.Found, e.Limit)
}

func (e *SafeguardError) Unwrap() error {
	return ErrSafeguard
}
