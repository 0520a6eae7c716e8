package graph

import "github.com/pkg/errors"

// Common errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateName   = errors.New("duplicate name")
	ErrIndexOutOfRange = errors.New("node index out of range")
)
