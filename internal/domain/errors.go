package domain

import "errors"

var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrSoftwareNotFound  = errors.New("software not found")
	ErrInvalidLoginState = errors.New("invalid login state")
	ErrTokenNotFound     = errors.New("token not found")
	ErrUnknownField      = errors.New("unknown profile field")
)
