package projector

import "errors"

// Programmer errors raised synchronously by the builder's write-once methods
// and by Build's preflight check. None of these are retried; they indicate a misuse of the
// API and abort the call immediately.
var (
	ErrAlreadyInitialized = errors.New("projector: init already called")
	ErrFromAlreadyCalled  = errors.New("projector: fromAll/fromStream/fromStreams already called")
	ErrWhenAlreadyCalled  = errors.New("projector: when/whenAny already called")
	ErrNoQuery            = errors.New("projector: no fromAll/fromStream/fromStreams call before run")
	ErrNoHandler          = errors.New("projector: no when/whenAny call before run")
	ErrStateNotInitialised = errors.New("projector: state not initialised; call init before run")
	ErrInvalidName        = errors.New("projector: name must be a non-empty printable string")
)
