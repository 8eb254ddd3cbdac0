package store

import "errors"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when an optimistic workflow update observes
// a version other than the one it expected.
var ErrVersionConflict = errors.New("workflow version conflict")

// ErrDuplicateWorkflow is returned when a workflow insert collides with an
// existing live workflow for the same entity.
var ErrDuplicateWorkflow = errors.New("live workflow already exists for entity")
