// Package errors provides centralized error handling with category and
// component metadata for all audiod packages.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not-found"
	CategoryConflict   ErrorCategory = "conflict"
	CategoryState      ErrorCategory = "state"
	CategoryLimit      ErrorCategory = "limit"
	CategoryDriver     ErrorCategory = "driver"
	CategoryChannel    ErrorCategory = "channel"
	CategoryRouting    ErrorCategory = "routing"
	CategoryStream     ErrorCategory = "stream"
	CategoryConfig     ErrorCategory = "configuration"
	CategoryGeneric    ErrorCategory = "generic"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with additional context and metadata.
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches two enhanced errors by category, otherwise defers to the
// wrapped error chain.
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		if ee2.Err != nil {
			return stderrors.Is(ee.Err, ee2.Err)
		}
		return ee.Category == ee2.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetCategory returns the error category as a string.
func (ee *EnhancedError) GetCategory() string {
	return string(ee.Category)
}

// GetContext returns a copy of the context data.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	result := make(map[string]any, len(ee.Context))
	maps.Copy(result, ee.Context)
	return result
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error builder wrapping err. A nil err produces a
// sentinel-style error whose message is derived from the category.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new formatted error with enhanced context
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name (auto-detected if not set)
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category for better grouping
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Build creates the final enhanced error
func (eb *ErrorBuilder) Build() error {
	if eb.category == "" {
		var ee *EnhancedError
		if As(eb.err, &ee) {
			eb.category = ee.Category
		} else {
			eb.category = CategoryGeneric
		}
	}
	if eb.err == nil {
		eb.err = stderrors.New(sentinelMessage(eb.category, eb.context))
	}
	if eb.component == "" {
		eb.component = detectComponent()
	}
	return &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  eb.category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
}

func sentinelMessage(category ErrorCategory, context map[string]any) string {
	if resource, ok := context["resource"].(string); ok {
		return fmt.Sprintf("%s: %s", category, resource)
	}
	return string(category)
}

// detectComponent walks the call stack for the first audiod package frame
// outside of this package.
func detectComponent() string {
	pcs := make([]uintptr, 8)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if name := componentFromFunction(frame.Function); name != "" {
			return name
		}
		if !more {
			break
		}
	}
	return ComponentUnknown
}

func componentFromFunction(fn string) string {
	const marker = "/internal/"
	idx := strings.LastIndex(fn, marker)
	if idx < 0 {
		return ""
	}
	rest := fn[idx+len(marker):]
	pkg, _, ok := strings.Cut(rest, ".")
	if !ok || pkg == "errors" {
		return ""
	}
	return strings.TrimSuffix(pkg, "/")
}

// --- Standard library passthrough ---

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// NewStd creates a plain error without enhancement.
func NewStd(text string) error {
	return stderrors.New(text)
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	return As(err, &ee) && ee.Category == category
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return IsCategory(err, CategoryValidation)
}

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool {
	return IsCategory(err, CategoryConflict)
}

// IsState reports whether err is an illegal-state error.
func IsState(err error) bool {
	return IsCategory(err, CategoryState)
}
