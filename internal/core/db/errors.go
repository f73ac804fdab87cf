package db

import "errors"

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidURL is returned when a website URL fails validation.
	ErrInvalidURL = errors.New("invalid URL")
	// ErrInvalidInput is returned for missing required fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateURL is returned when another website already uses the URL.
	ErrDuplicateURL = errors.New("website already exists")
	// ErrForbidden is returned when a user acts on a row they do not own.
	ErrForbidden = errors.New("forbidden")

	ErrAlreadyLiked     = errors.New("website already liked")
	ErrNotLiked         = errors.New("website not liked")
	ErrAlreadyCollected = errors.New("website already collected")
	ErrNotCollected     = errors.New("website not collected")
)
