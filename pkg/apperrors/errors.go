package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotRefreshed      = errors.New("catalog has not been refreshed")
	ErrIndexNotBuilt     = errors.New("similarity index has not been built")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
