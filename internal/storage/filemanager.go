package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pagekit-db/pagekit/internal/alias/bx"
	"github.com/pagekit-db/pagekit/internal/alias/util"
)

// FileSet names the segment files one logical collection of pages lives
// in. Segments are addressed Base, Base.1, Base.2, ... exactly as the
// teacher's LocalFileSet scheme.
type FileSet interface {
	OpenSegment(segNo int32) (*os.File, error)
}

var _ FileSet = (*LocalFileSet)(nil)

// LocalFileSet is a directory + base file name on the local filesystem.
type LocalFileSet struct {
	Dir  string
	Base string
}

func (lfs LocalFileSet) OpenSegment(segNo int32) (*os.File, error) {
	name := lfs.Base
	if segNo > 0 {
		name = fmt.Sprintf("%s.%d", lfs.Base, segNo)
	}
	path := filepath.Join(lfs.Dir, name)
	if err := os.MkdirAll(lfs.Dir, FileMode0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, FileMode0644)
}

// FileManager is the DiskManager implementation this core actually
// drives: a segment-addressed page store plus a persisted page-id
// allocator, grounded in the teacher's StorageManager/LocalFileSet
// addressing scheme but extended with real AllocatePage/DeallocatePage
// (the teacher's version has neither — it only zero-fills sparse reads).
type FileManager struct {
	mu sync.Mutex

	fs FileSet

	allocPath  string
	nextPageID PageID
	freeList   []PageID
}

func pagesPerSegment() int64 {
	return SegmentSize / PageSize
}

func locate(pageID PageID) (segNo int32, offset int64) {
	pps := pagesPerSegment()
	segNo = int32(int64(pageID) / pps)
	pageInSeg := int64(pageID) % pps
	offset = pageInSeg * PageSize
	return segNo, offset
}

// NewFileManager opens (or creates) a FileManager rooted at dir/base.
// The page-id allocator state is restored from a small sidecar file
// (base + ".alloc") so AllocatePage/DeallocatePage survive a restart
// even though this core performs no crash recovery of page contents.
func NewFileManager(dir, base string) (*FileManager, error) {
	fm := &FileManager{
		fs:        LocalFileSet{Dir: dir, Base: base},
		allocPath: filepath.Join(dir, base+".alloc"),
	}
	if err := os.MkdirAll(dir, FileMode0755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}
	if err := fm.loadAllocState(); err != nil {
		return nil, fmt.Errorf("storage: load allocator state: %w", err)
	}
	return fm, nil
}

// ReadPage fills buf (exactly PageSize bytes) with pageID's on-disk
// image. A page never written (beyond current segment EOF) reads back
// as all zero.
func (fm *FileManager) ReadPage(pageID PageID, buf []byte) error {
	if len(buf) != PageSize {
		return ErrPageSizeMismatch
	}
	segNo, off := locate(pageID)
	f, err := fm.fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer util.CloseFile(f)

	n, err := f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return err
	}
	for i := n; i < PageSize; i++ {
		buf[i] = 0
	}
	return nil
}

// WritePage persists buf (exactly PageSize bytes) as pageID.
func (fm *FileManager) WritePage(pageID PageID, buf []byte) error {
	if len(buf) != PageSize {
		return ErrPageSizeMismatch
	}
	segNo, off := locate(pageID)
	f, err := fm.fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer util.CloseFile(f)

	n, err := f.WriteAt(buf, off)
	if err != nil {
		return err
	}
	if n != PageSize {
		return io.ErrShortWrite
	}
	return nil
}

// AllocatePage hands out a reclaimed id if one is on the free list,
// else the next never-used id. The allocator state is persisted
// immediately so ids are not reused across a restart.
func (fm *FileManager) AllocatePage() (PageID, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	var id PageID
	if n := len(fm.freeList); n > 0 {
		id = fm.freeList[n-1]
		fm.freeList = fm.freeList[:n-1]
	} else {
		id = fm.nextPageID
		fm.nextPageID++
	}
	if err := fm.saveAllocState(); err != nil {
		return InvalidPageID, err
	}
	return id, nil
}

// DeallocatePage reclaims pageID onto the free list.
func (fm *FileManager) DeallocatePage(pageID PageID) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	fm.freeList = append(fm.freeList, pageID)
	return fm.saveAllocState()
}

// allocState layout: nextPageID(int32) numFree(int32) free[numFree](int32).
func (fm *FileManager) saveAllocState() error {
	buf := make([]byte, 8+4*len(fm.freeList))
	bx.PutU32At(buf, 0, uint32(fm.nextPageID))
	bx.PutU32At(buf, 4, uint32(len(fm.freeList)))
	for i, id := range fm.freeList {
		bx.PutU32At(buf, 8+4*i, uint32(id))
	}
	return os.WriteFile(fm.allocPath, buf, FileMode0644)
}

func (fm *FileManager) loadAllocState() error {
	buf, err := os.ReadFile(fm.allocPath)
	if err != nil {
		if os.IsNotExist(err) {
			fm.nextPageID = 0
			fm.freeList = nil
			return nil
		}
		return err
	}
	if len(buf) < 8 {
		return nil
	}
	fm.nextPageID = PageID(bx.U32At(buf, 0))
	numFree := int(bx.U32At(buf, 4))
	fm.freeList = make([]PageID, 0, numFree)
	for i := 0; i < numFree; i++ {
		off := 8 + 4*i
		if off+4 > len(buf) {
			break
		}
		fm.freeList = append(fm.freeList, PageID(bx.U32At(buf, off)))
	}
	return nil
}
