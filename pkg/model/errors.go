package model

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an error by the phase that produced it.
type ErrorClass string

const (
	// ErrorClassConfig indicates an invalid graph declaration.
	// Fatal at graph-build time, never silently ignored.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassResolution indicates a value could not be resolved yet.
	// Callers must sequence resource startup; the core does not retry.
	ErrorClassResolution ErrorClass = "resolution"

	// ErrorClassLifecycle indicates a rejected lifecycle report.
	ErrorClassLifecycle ErrorClass = "lifecycle"

	// ErrorClassBuild indicates a failed image build, tag, or push step.
	ErrorClassBuild ErrorClass = "build"
)

// Error is a classified error with resource context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the resource name that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Image is the image reference involved, if applicable.
	Image string `json:"image,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Resource != "" {
		msg += fmt.Sprintf(" (resource=%s)", e.Resource)
	}
	if e.Image != "" {
		msg += fmt.Sprintf(" (image=%s)", e.Image)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && (t.Code == "" || e.Code == t.Code)
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, err error) *Error {
	return &Error{Class: ErrorClassConfig, Message: message, Err: err}
}

// NewResolutionError creates a new resolution error.
func NewResolutionError(message string, err error) *Error {
	return &Error{Class: ErrorClassResolution, Message: message, Err: err}
}

// NewLifecycleError creates a new lifecycle error.
func NewLifecycleError(message string, err error) *Error {
	return &Error{Class: ErrorClassLifecycle, Message: message, Err: err}
}

// NewBuildError creates a new build error.
func NewBuildError(message string, err error) *Error {
	return &Error{Class: ErrorClassBuild, Message: message, Err: err}
}

// WithResource adds resource context to an error.
func (e *Error) WithResource(name string) *Error {
	e.Resource = name
	return e
}

// WithImage adds image context to an error.
func (e *Error) WithImage(ref string) *Error {
	e.Image = ref
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// IsConfig returns true if the error is classified as a configuration error.
func IsConfig(err error) bool {
	return hasClass(err, ErrorClassConfig)
}

// IsResolution returns true if the error is classified as a resolution error.
func IsResolution(err error) bool {
	return hasClass(err, ErrorClassResolution)
}

// IsLifecycle returns true if the error is classified as a lifecycle error.
func IsLifecycle(err error) bool {
	return hasClass(err, ErrorClassLifecycle)
}

// IsBuild returns true if the error is classified as a build error.
func IsBuild(err error) bool {
	return hasClass(err, ErrorClassBuild)
}

// IsCode returns true if the error carries the given code.
func IsCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func hasClass(err error, class ErrorClass) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// Common error codes.
const (
	ErrCodeInvalidResourceName  = "INVALID_RESOURCE_NAME"
	ErrCodeDuplicateResource    = "DUPLICATE_RESOURCE"
	ErrCodeDuplicateEndpoint    = "DUPLICATE_ENDPOINT"
	ErrCodeAmbiguousAnnotation  = "AMBIGUOUS_ANNOTATION"
	ErrCodeAnnotationNotFound   = "ANNOTATION_NOT_FOUND"
	ErrCodeBadTemplate          = "BAD_TEMPLATE"
	ErrCodeBadManifestType      = "BAD_MANIFEST_TYPE"
	ErrCodeUnknownReference     = "UNKNOWN_REFERENCE"
	ErrCodeDependencyCycle      = "DEPENDENCY_CYCLE"
	ErrCodeGraphSealed          = "GRAPH_SEALED"
	ErrCodeEndpointNotAllocated = "ENDPOINT_NOT_ALLOCATED"
	ErrCodeEndpointNotDeclared  = "ENDPOINT_NOT_DECLARED"
	ErrCodeAllocationConflict   = "ALLOCATION_CONFLICT"
	ErrCodeStaleTransition      = "STALE_TRANSITION"
	ErrCodeBuildFailed          = "BUILD_FAILED"
	ErrCodeTagFailed            = "TAG_FAILED"
	ErrCodePushFailed           = "PUSH_FAILED"
)
