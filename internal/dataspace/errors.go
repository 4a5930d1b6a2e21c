package dataspace

import "errors"

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
	ErrPrecondition      = errors.New("precondition failed")
	ErrUpstream          = errors.New("upstream failure")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrConflict          = errors.New("conflict")
)
