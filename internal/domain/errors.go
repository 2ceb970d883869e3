// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrNoUserMessage indicates a turn was started without a trailing user message.
var ErrNoUserMessage = errors.New("turn requires a trailing user message")

// ErrMissingStreamStart indicates an adapted event sequence lacked its opening event.
var ErrMissingStreamStart = errors.New("turn event sequence missing stream-start")
