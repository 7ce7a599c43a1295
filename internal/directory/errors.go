package directory

import "errors"

var (
	ErrNotFound      = errors.New("directory: not found")
	ErrConflict      = errors.New("directory: conflict")
	ErrInvalidInput  = errors.New("directory: invalid input")
	ErrUnprocessable = errors.New("directory: unprocessable payload")
	ErrTimeout       = errors.New("directory: upstream timeout")
	ErrUnauthorized  = errors.New("directory: unauthorized")
)
