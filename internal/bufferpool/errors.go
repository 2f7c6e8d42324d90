package bufferpool

import "errors"

var (
	// ErrNoFreeFrame is returned by FetchPage/NewPage when every frame
	// is pinned and the replacer has nothing to offer.
	ErrNoFreeFrame = errors.New("bufferpool: no free frame available (all pinned)")

	// ErrPagePinned is returned by DeletePage when the page is still
	// referenced by at least one caller.
	ErrPagePinned = errors.New("bufferpool: page is pinned")
)
