// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrUntrained indicates a prediction was requested before the classifier
// finished training. This is a normal cascade branch, not a failure.
var ErrUntrained = errors.New("classifier not trained")

// ErrUnavailable indicates an external collaborator could not produce a
// usable result (timeout, malformed payload, open circuit).
var ErrUnavailable = errors.New("collaborator unavailable")
