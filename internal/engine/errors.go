package engine

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrNoRunner is returned by BaseHandler.Run when the handler was never
// dispatched through a Runner, so no runner has been injected.
var ErrNoRunner = errors.New("handler has no runner: dispatch it through Runner.Run first")

// ConfigError reports a wiring mistake: a type that cannot be resolved, a
// declaration on the wrong method, or a hook whose shape does not fit its
// phase. Configuration errors are never retried.
type ConfigError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Message is a human-readable description.
	Message string

	// CommandType is the command type being dispatched or declared against.
	CommandType reflect.Type

	// Observer and Method identify the offending hook, when there is one.
	Observer reflect.Type
	Method   string
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeUnresolvable: the resolver produced no instance for a type.
	ErrCodeUnresolvable ConfigErrorCode = "UNRESOLVABLE"

	// ErrCodeNotHandler: a command type does not implement Handler.
	ErrCodeNotHandler ConfigErrorCode = "NOT_HANDLER"

	// ErrCodeNotGate: middleware declared off the Handle method, or a gate
	// type that does not implement Middleware.
	ErrCodeNotGate ConfigErrorCode = "NOT_GATE"

	// ErrCodeMissingMethod: the named hook method does not exist.
	ErrCodeMissingMethod ConfigErrorCode = "MISSING_METHOD"

	// ErrCodeBadSignature: the hook method has the wrong shape for its kind.
	ErrCodeBadSignature ConfigErrorCode = "BAD_SIGNATURE"

	// ErrCodeArgType: a value passed to a hook (or returned by a handler)
	// does not fit the declared parameter or requested result type.
	ErrCodeArgType ConfigErrorCode = "ARG_TYPE"
)

// Error implements the error interface.
func (e *ConfigError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)

	var parts []string
	if e.CommandType != nil {
		parts = append(parts, "command="+e.CommandType.String())
	}
	if e.Observer != nil {
		hook := e.Observer.String()
		if e.Method != "" {
			hook += "." + e.Method
		}
		parts = append(parts, "hook="+hook)
	}
	if len(parts) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	return b.String()
}

// IsConfigError returns true if err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// HasConfigCode returns true if err is, or wraps, a ConfigError with code.
func HasConfigCode(err error, code ConfigErrorCode) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// RuntimeError represents a failure the runner itself raises while
// dispatching, as opposed to failures returned by hooks or handlers.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// FlowToken identifies the affected flow.
	FlowToken string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeDepthExceeded indicates nested dispatch went deeper than MaxDepth.
	ErrCodeDepthExceeded RuntimeErrorCode = "DEPTH_EXCEEDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.FlowToken != "" {
		return fmt.Sprintf("%s: %s (flow=%s)", e.Code, e.Message, e.FlowToken)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsDepthError returns true if the error is a nesting depth error.
// Uses errors.As to handle wrapped errors.
func IsDepthError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeDepthExceeded
	}
	return false
}

// NewDepthError creates a RuntimeError for exceeded nesting depth.
func NewDepthError(flowToken string, depth, maxDepth int) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeDepthExceeded,
		Message:   fmt.Sprintf("nested dispatch exceeded max depth (%d > %d)", depth, maxDepth),
		FlowToken: flowToken,
		Details: map[string]string{
			"depth":     fmt.Sprintf("%d", depth),
			"max_depth": fmt.Sprintf("%d", maxDepth),
		},
	}
}

func unresolvable(commandType, observer reflect.Type) *ConfigError {
	if observer != nil {
		return &ConfigError{
			Code:        ErrCodeUnresolvable,
			Message:     "no observer resolvable for this type",
			CommandType: commandType,
			Observer:    observer,
		}
	}
	return &ConfigError{
		Code:        ErrCodeUnresolvable,
		Message:     "no handler resolvable for this command type",
		CommandType: commandType,
	}
}
