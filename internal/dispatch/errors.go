package dispatch

import (
	"errors"
	"fmt"

	"settleload/internal/transport"
)

var (
	// ErrDependencyUnavailable means an artifact the action consumes has not
	// been produced yet. It is expected under load.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrUnsupportedAction means the dispatcher has no handler for the type.
	ErrUnsupportedAction = errors.New("unsupported action")
)

// BusinessRejection is a response in which the service explicitly refused the request.
type BusinessRejection struct {
	Code string
	Body []byte
}

func (e *BusinessRejection) Error() string {
	return fmt.Sprintf("rejected by service with code %s", e.Code)
}

// Class is the outcome category of one execution.
type Class string

const (
	ClassOK                    Class = "ok"
	ClassDependencyUnavailable Class = "dependency_unavailable"
	ClassBusinessRejection     Class = "business_rejection"
	ClassTransportError        Class = "transport_error"
	ClassUnsupportedAction     Class = "unsupported_action"
)

// Classify maps an execution error onto its Class. Errors it does not
// recognize are treated as transport failures.
func Classify(err error) Class {
	var rej *BusinessRejection
	switch {
	case err == nil:
		return ClassOK
	case errors.Is(err, ErrDependencyUnavailable):
		return ClassDependencyUnavailable
	case errors.Is(err, ErrUnsupportedAction):
		return ClassUnsupportedAction
	case errors.As(err, &rej):
		return ClassBusinessRejection
	default:
		return ClassTransportError
	}
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDependencyUnavailable, fmt.Sprintf(format, args...))
}

func transportCode(err error) int {
	var te *transport.Error
	if errors.As(err, &te) {
		return te.Code
	}
	return 0
}
