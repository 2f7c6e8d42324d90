package bufferpool

import "github.com/pagekit-db/pagekit/internal/storage"

// Frame is one slot of the pool's fixed frame array. Its frame id (its
// index in Pool.frames) never changes for the life of the pool; only
// the page it holds does.
type Frame struct {
	pageID storage.PageID
	pin    int32
	dirty  bool
	data   []byte
}

func newFrame() *Frame {
	return &Frame{pageID: storage.InvalidPageID, data: storage.NewRawPage()}
}

func (f *Frame) PageID() storage.PageID { return f.pageID }
func (f *Frame) Pin() int32             { return f.pin }
func (f *Frame) IsDirty() bool          { return f.dirty }
func (f *Frame) Data() []byte           { return f.data }

func (f *Frame) reset(pageID storage.PageID) {
	f.pageID = pageID
	f.pin = 0
	f.dirty = false
	for i := range f.data {
		f.data[i] = 0
	}
}
