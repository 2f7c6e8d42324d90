// Package bufferpool implements a fixed-capacity page cache backed by a
// DiskManager, using clockreplacer for victim selection among unpinned
// frames. There is no internal locking: callers serialize access.
package bufferpool

import (
	"bytes"
	"log/slog"

	"github.com/pagekit-db/pagekit/internal/clockreplacer"
	"github.com/pagekit-db/pagekit/internal/storage"
)

const logPrefix = "bufferpool: "

// Pool is a fixed-size page cache bound to one DiskManager.
type Pool struct {
	dm storage.DiskManager

	frames    []*Frame
	pageTable map[storage.PageID]int
	freeList  []int
	replacer  *clockreplacer.Replacer

	// shadow holds the last-known-clean image of every resident page,
	// so UnpinPage can detect a caller that mutated Data() without
	// passing isDirty=true.
	shadow map[storage.PageID][]byte

	logManager LogManager
}

// NewPool creates a pool of poolSize frames over dm.
func NewPool(dm storage.DiskManager, poolSize int, opts ...Option) *Pool {
	if poolSize <= 0 {
		poolSize = 16
	}
	frames := make([]*Frame, poolSize)
	freeList := make([]int, poolSize)
	for i := range frames {
		frames[i] = newFrame()
		freeList[i] = poolSize - 1 - i // pop from the back == index 0 first
	}
	p := &Pool{
		dm:        dm,
		frames:    frames,
		pageTable: make(map[storage.PageID]int),
		freeList:  freeList,
		replacer:  clockreplacer.New(poolSize),
		shadow:    make(map[storage.PageID][]byte),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchPage pins pageID into a frame, loading it from disk if it is not
// already resident, and returns that frame.
func (p *Pool) FetchPage(pageID storage.PageID) (*Frame, error) {
	if idx, ok := p.pageTable[pageID]; ok {
		f := p.frames[idx]
		f.pin++
		p.replacer.Pin(int32(idx))
		slog.Debug(logPrefix+"fetch hit", "pageID", pageID, "pin", f.pin)
		return f, nil
	}

	idx, err := p.evictOrFree()
	if err != nil {
		return nil, err
	}

	f := p.frames[idx]
	if err := p.dm.ReadPage(pageID, f.data); err != nil {
		p.freeList = append(p.freeList, idx)
		return nil, err
	}
	f.pageID = pageID
	f.pin = 1
	f.dirty = false
	p.pageTable[pageID] = idx
	p.replacer.Pin(int32(idx))
	p.snapshot(pageID, f.data)

	slog.Debug(logPrefix+"fetch miss, loaded", "pageID", pageID, "frame", idx)
	return f, nil
}

// NewPage allocates a fresh on-disk page, pins it into a frame, and
// returns it zero-filled.
func (p *Pool) NewPage() (*Frame, error) {
	idx, err := p.evictOrFree()
	if err != nil {
		return nil, err
	}

	pageID, err := p.dm.AllocatePage()
	if err != nil {
		p.freeList = append(p.freeList, idx)
		return nil, err
	}

	f := p.frames[idx]
	f.reset(pageID)
	f.pin = 1
	p.pageTable[pageID] = idx
	p.replacer.Pin(int32(idx))
	p.snapshot(pageID, f.data)

	slog.Debug(logPrefix+"new page", "pageID", pageID, "frame", idx)
	return f, nil
}

// UnpinPage decrements pageID's pin count, OR-ing in isDirty (a dirty
// hint is sticky: it is never cleared by a later false). Returns false
// if pageID is not resident or was already unpinned.
func (p *Pool) UnpinPage(pageID storage.PageID, isDirty bool) (bool, error) {
	idx, ok := p.pageTable[pageID]
	if !ok {
		return false, nil
	}
	f := p.frames[idx]
	if f.pin <= 0 {
		return false, nil
	}

	if isDirty {
		f.dirty = true
	}
	if clean, ok := p.shadow[pageID]; ok && !bytes.Equal(clean, f.data) {
		f.dirty = true
	}

	f.pin--
	if f.pin == 0 {
		p.replacer.Unpin(int32(idx))
	}
	slog.Debug(logPrefix+"unpin", "pageID", pageID, "pin", f.pin, "dirty", f.dirty)
	return true, nil
}

// FlushPage writes pageID's current frame contents to disk unconditionally.
// The is_dirty flag is left untouched — an explicit flush is
// caller-observable and does not imply the page is now clean.
func (p *Pool) FlushPage(pageID storage.PageID) (bool, error) {
	idx, ok := p.pageTable[pageID]
	if !ok {
		return false, nil
	}
	return true, p.flushToDisk(p.frames[idx])
}

// ReserveLSN hands out the next log sequence number from the wired
// LogManager, or 0 if none is wired. A caller that stamps this LSN
// into a page before calling FlushLog and then FlushPage gets
// WAL-ahead-of-data ordering for that page.
func (p *Pool) ReserveLSN() uint64 {
	if p.logManager == nil {
		return 0
	}
	return p.logManager.NextLSN()
}

// FlushLog fsyncs the wired LogManager up to lsn. No-op if no
// LogManager is wired or lsn is 0.
func (p *Pool) FlushLog(lsn uint64) error {
	if p.logManager == nil || lsn == 0 {
		return nil
	}
	return p.logManager.Flush(lsn)
}

// DeletePage removes pageID from the pool and deallocates it on disk.
// Fails with ErrPagePinned if the page is still pinned. A page that is
// not resident is left untouched (not deallocated) and nil is returned.
func (p *Pool) DeletePage(pageID storage.PageID) error {
	idx, ok := p.pageTable[pageID]
	if !ok {
		return nil
	}
	f := p.frames[idx]
	if f.pin != 0 {
		return ErrPagePinned
	}

	// Pull the frame out of the replacer's eviction ring without
	// treating this as a victim selection.
	p.replacer.Pin(int32(idx))

	if err := p.dm.DeallocatePage(pageID); err != nil {
		return err
	}
	delete(p.pageTable, pageID)
	delete(p.shadow, pageID)
	f.pageID = storage.InvalidPageID
	f.dirty = false
	for i := range f.data {
		f.data[i] = 0
	}
	p.freeList = append(p.freeList, idx)
	slog.Debug(logPrefix+"delete page", "pageID", pageID, "frame", idx)
	return nil
}

// FlushAllPages writes every resident page to disk in frame-index
// order, stopping at the first error.
func (p *Pool) FlushAllPages() error {
	for _, f := range p.frames {
		if f.pageID == storage.InvalidPageID {
			continue
		}
		if err := p.flushToDisk(f); err != nil {
			return err
		}
	}
	return nil
}

// flushToDisk writes f's contents and refreshes its shadow snapshot. It
// does not touch f.dirty: that bit is cleared only when a frame is
// repurposed for a different page (FetchPage/NewPage), matching
// FlushPage's caller-observable semantics.
func (p *Pool) flushToDisk(f *Frame) error {
	if err := p.dm.WritePage(f.pageID, f.data); err != nil {
		return err
	}
	p.snapshot(f.pageID, f.data)
	return nil
}

func (p *Pool) snapshot(pageID storage.PageID, data []byte) {
	clean := make([]byte, len(data))
	copy(clean, data)
	p.shadow[pageID] = clean
}

// evictOrFree returns a usable frame index: one from the free list if
// any remain, else a Clock-selected victim (flushed first if dirty).
func (p *Pool) evictOrFree() (int, error) {
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return idx, nil
	}

	fid, ok := p.replacer.Victim()
	if !ok {
		return -1, ErrNoFreeFrame
	}
	idx := int(fid)
	victim := p.frames[idx]
	if victim.dirty {
		if err := p.flushToDisk(victim); err != nil {
			return -1, err
		}
	}
	delete(p.pageTable, victim.pageID)
	delete(p.shadow, victim.pageID)
	return idx, nil
}
