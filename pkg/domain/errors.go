package domain

import "errors"

// ErrSessionNotFound is returned when a session key cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrUnknownNode is returned when a trigger or transition references a node
// that is not registered. This is a wiring mistake and fails outright.
var ErrUnknownNode = errors.New("unknown node")
