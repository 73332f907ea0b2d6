package services

import (
	"errors"
	"fmt"
)

// StructuralError fails the whole processing session (empty transcript,
// zero-length segment), as opposed to per-plan failures which stay scoped to
// their plan.
type StructuralError struct {
	Stage  string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural failure at %s: %s", e.Stage, e.Reason)
}

func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// invalidArtifactError marks a provider response that parsed but does not
// satisfy the type's required shape. The artifact is discarded, never
// persisted.
type invalidArtifactError struct {
	Reason string
}

func (e *invalidArtifactError) Error() string {
	return "invalid artifact: " + e.Reason
}

func errInvalidArtifact(format string, args ...any) error {
	return &invalidArtifactError{Reason: fmt.Sprintf(format, args...)}
}

func IsInvalidArtifact(err error) bool {
	var ie *invalidArtifactError
	return errors.As(err, &ie)
}
