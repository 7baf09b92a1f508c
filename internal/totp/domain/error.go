package domain

import "errors"

var (
	ErrInvalidCode             = errors.New("invalid totp code")
	ErrBackupCodeInvalidOrUsed = errors.New("backup code invalid or already used")
	ErrNotEnrolled             = errors.New("totp not enrolled")
	ErrInvalidSecret           = errors.New("invalid totp secret")
)
