package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientDepth   = errors.New("insufficient depth")
	ErrCrossedBook         = errors.New("crossed book")
	ErrCooldown            = errors.New("execution cooldown active")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrWindowClosed        = errors.New("market window closed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrRateLimited         = errors.New("rate limited")
	ErrSigningFailed       = errors.New("signing failed")
	ErrWSDisconnect        = errors.New("websocket disconnected")
)
