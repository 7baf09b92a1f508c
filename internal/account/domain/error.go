package domain

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrVersionConflict = errors.New("account version conflict")
	ErrInvalidAccount  = errors.New("invalid account")
)
