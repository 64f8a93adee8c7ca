package sweep

import "errors"

var (
	ErrBadPlan     = errors.New("invalid acquisition plan")
	ErrRunCanceled = errors.New("acquisition run canceled")
	ErrSinkFailure = errors.New("failed to record measurement")
)
