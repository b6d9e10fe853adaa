package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateTask  = errors.New("duplicate task")
	ErrEmptyPayload   = errors.New("payload has no shots")
	ErrTooManyShots   = errors.New("payload exceeds shot limit")
	ErrStatusNotReady = errors.New("status not yet available")
	ErrNotCompleted   = errors.New("job is not completed")
	ErrAlreadySaved   = errors.New("artifacts already saved")
	ErrSaveInFlight   = errors.New("save already in flight")
)
