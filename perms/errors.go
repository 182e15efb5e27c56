package perms

import "errors"

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrGrantNotFound    = errors.New("grant not found")
	ErrGrantRevoked     = errors.New("grant has been revoked")
	ErrGrantExpired     = errors.New("grant has expired")
	ErrGrantExhausted   = errors.New("grant use count exhausted")
	ErrInvalidGrant     = errors.New("invalid grant payload")
	ErrInvalidScope     = errors.New("invalid permission scope")
	ErrSerialization    = errors.New("permission payload serialization failed")
)
