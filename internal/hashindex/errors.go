package hashindex

import "errors"

var (
	// ErrResizeUnsupported is returned by Resize, and by Insert when a
	// full table leaves no slot to place a new pair — resizing would
	// otherwise recurse without terminating.
	ErrResizeUnsupported = errors.New("hashindex: resize is not implemented")

	// ErrHeaderCorrupt is returned by Open when the header page's
	// recorded key/value sizes do not match the codecs supplied by the
	// caller.
	ErrHeaderCorrupt = errors.New("hashindex: header page layout mismatch")
)
