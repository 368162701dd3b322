package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrNotConnected  = errors.New("not connected")
	ErrAuthFailed    = errors.New("authentication failed")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrStaleQuote    = errors.New("stale quote")
	ErrInvalidQuote  = errors.New("invalid quote")
	ErrCloseConflict = errors.New("position close conflict")
)
