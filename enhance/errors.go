package enhance

import (
	"errors"
	"fmt"
)

// Failure kinds. Match them with errors.Is.
var (
	ErrTypeResolution       = errors.New("type resolution failure")
	ErrUnsupportedConstruct = errors.New("unsupported construct")
	ErrPolicyContract       = errors.New("policy contract violation")
	ErrEnhancement          = errors.New("enhancement failure")
)

// EnhancementError is a failure raised by the enhancer for one class.
type EnhancementError struct {
	Kind      error  // one of the Err* kinds above
	ClassName string // qualified name of the class being enhanced
	Detail    string
	Err       error // underlying cause, may be nil
}

func (e *EnhancementError) Error() string {
	msg := fmt.Sprintf("%v in %s", e.Kind, e.ClassName)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the failure kind.
func (e *EnhancementError) Is(target error) bool {
	return target == e.Kind
}

func (e *EnhancementError) Unwrap() error { return e.Err }

func newError(kind error, class string, cause error, format string, args ...any) *EnhancementError {
	return &EnhancementError{
		Kind:      kind,
		ClassName: class,
		Detail:    fmt.Sprintf(format, args...),
		Err:       cause,
	}
}

// TransformError is the single failure a class loader receives from
// ClassTransformer.Transform. Err is the original failure, unchanged.
type TransformError struct {
	ClassName string
	Err       error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("error performing enhancement of %s: %v", e.ClassName, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }
