package memory

import "errors"

// ErrClosed is returned by operations on a closed backend
var ErrClosed = errors.New("memory backend is closed")

// ErrListUnsupported is returned by decorators whose wrapped backend cannot list keys
var ErrListUnsupported = errors.New("memory backend does not support key listing")

func isListUnsupported(err error) bool {
	return errors.Is(err, ErrListUnsupported)
}
