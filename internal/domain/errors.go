package domain

import "errors"

// Common errors
var (
	// ErrTooLarge means the file exceeds its category's size budget and no
	// further compression is available for it.
	ErrTooLarge = errors.New("file exceeds size budget")

	// ErrToolFailure means the external optimization tool exited non-zero,
	// crashed, or hit its timeout. Recoverable: the caller falls back to the
	// original file.
	ErrToolFailure = errors.New("external compression tool failed")

	// ErrCompressionFailed means no compression pass produced a usable result
	// under the strict image policy.
	ErrCompressionFailed = errors.New("compression produced no acceptable result")

	// ErrUnknownFolder means the requested folder is not on the allow-list.
	ErrUnknownFolder = errors.New("unknown upload folder")
)
