package model

import "errors"

// Sentinel kinds shared by the engine, the rank index and the API layer.
var (
	ErrInvalidScore  = errors.New("invalid score")
	ErrInvalidPlayer = errors.New("invalid player")
	ErrNotFound      = errors.New("player not found")
	// ErrDuplicateKey means the rank index and the player table disagree.
	ErrDuplicateKey = errors.New("duplicate rank key")
)
