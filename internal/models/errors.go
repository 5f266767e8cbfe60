package models

import "errors"

// Domain errors surfaced by repositories and services. Handlers map these to
// HTTP status codes with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrSessionExpired  = errors.New("session expired")

	ErrNotFound = errors.New("not found")

	ErrAlreadyPaired       = errors.New("already connected to a partner")
	ErrCodeNotFound        = errors.New("invalid connection code")
	ErrCodeTaken           = errors.New("connection code already in use")
	ErrSelfConnect         = errors.New("cannot connect with yourself")
	ErrTargetAlreadyPaired = errors.New("this user is already connected to someone else")
	ErrNotPaired           = errors.New("no partner connected")

	ErrInvalidSession  = errors.New("session missing or not active")
	ErrNoActiveSession = errors.New("no active session")

	ErrNotOwner = errors.New("not the owner of this resource")

	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
)
