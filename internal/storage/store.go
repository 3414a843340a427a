// Package storage provides the object store abstraction used by the
// planner and dispatcher: uniform JSON blob I/O over a single flat
// namespace, with interchangeable file and Redis backends.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Well-known object keys. The namespace is flat; schedule and submission
// keys are derived per function.
const (
	KeyStaticConfig     = "static_config.json"
	KeyFunctionMetadata = "function_metadata.json"
	KeyCarbonForecasts  = "carbon_forecasts.json"
	KeyDeploymentState  = "deployment_state.json"
)

// ScheduleKey returns the object key of a function's persisted schedule.
func ScheduleKey(functionName string) string {
	return fmt.Sprintf("schedule_%s.json", functionName)
}

// SubmissionKey returns the object key of an ad-hoc submission record.
func SubmissionKey(submissionID string) string {
	return fmt.Sprintf("submission_%s.json", submissionID)
}

// ErrNotFound is returned when the requested object does not exist. It is
// explicit and non-fatal for cache checks; any other error is fatal for the
// containing step.
var ErrNotFound = errors.New("object not found")

// IsNotFound reports whether err means a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store reads and writes JSON documents. Writes are whole-object
// replacements; there are no partial updates and no locking. Concurrent
// writers to the same key are acceptable because planning runs are
// serialized by the operator.
type Store interface {
	// Read unmarshals the object at key into out. Returns ErrNotFound when
	// the object does not exist.
	Read(ctx context.Context, key string, out any) error

	// Write replaces the object at key and returns its location string.
	Write(ctx context.Context, key string, value any) (string, error)
}
