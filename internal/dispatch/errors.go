package dispatch

import "errors"

var (
	// ErrHandlerAlreadyRegistered — повторная регистрация одного JobType.
	ErrHandlerAlreadyRegistered = errors.New("handler already registered for job type")
)
