// Package generation drives generation runs over a report document: one subsection
// at a time in document order, recording success or failure per subsection.
package generation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRunInProgress is returned when a template already has an active run
	ErrRunInProgress = errors.New("a generation run is already in progress for this template")
	// ErrJobNotFound is returned when a job does not exist or belongs to another template
	ErrJobNotFound = errors.New("generation job not found")
	// ErrJobActive is returned when dismissing a job that has not finished
	ErrJobActive = errors.New("generation job has not finished")
	// ErrTemplateNotFound is returned when the template does not exist
	ErrTemplateNotFound = errors.New("template not found")
	// ErrSubsectionNotFound is returned when the subsection does not exist
	ErrSubsectionNotFound = errors.New("subsection not found")
	// ErrCancelled is recorded for subsections that never started because the run was cancelled
	ErrCancelled = errors.New("run cancelled")
)

// RetrievalError is a failed retrieval call for a subsection
type RetrievalError struct {
	SourceID string
	MethodID string
	Cause    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %s/%s failed: %v", e.SourceID, e.MethodID, e.Cause)
}

func (e *RetrievalError) Unwrap() error {
	return e.Cause
}

// GenerationError is a failed content generation call
type GenerationError struct {
	Message string
	Cause   error
}

func (e *GenerationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("generation failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("generation failed: %s", e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// PersistenceError is a failure to store generated content
type PersistenceError struct {
	Message string
	Cause   error
}

func (e *PersistenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("persistence error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("persistence error: %s", e.Message)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// ResolutionError is a failure to resolve a subsection's parameters for the run
type ResolutionError struct {
	Cause error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve parameters: %v", e.Cause)
}

func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// ReadinessError is returned by a single-subsection run that is not ready
type ReadinessError struct {
	Issues []string
}

func (e *ReadinessError) Error() string {
	return fmt.Sprintf("subsection is not ready: %s", strings.Join(e.Issues, "; "))
}
