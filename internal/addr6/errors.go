package addr6

import "github.com/AdguardTeam/golibs/errors"

const (
	// ErrInvalidOption is returned when an option TLV can't be decoded, for
	// example when its declared length is zero or exceeds the remaining
	// buffer.
	ErrInvalidOption errors.Error = "invalid option"

	// ErrShortBuffer is returned when a buffer is too short to hold a fixed
	// wire structure.
	ErrShortBuffer errors.Error = "buffer too short"
)
