// Package wal is the write-ahead log manager: an external collaborator
// the buffer pool consults only for LSN sequencing ahead of a durable
// page flush. It performs no redo/undo during normal operation, and the
// storage core it serves performs no crash recovery of its own; Recover
// replays logged page images only when called explicitly. No code in
// this repository constructs a Manager: the pool accepts one through
// bufferpool.WithLogManager.
package wal

import (
	"bufio"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pagekit-db/pagekit/internal/alias/bx"
	"github.com/pagekit-db/pagekit/internal/storage"
)

var (
	ErrBadMagic  = errors.New("wal: bad magic")
	ErrBadCRC    = errors.New("wal: bad crc")
	ErrBadRecord = errors.New("wal: bad record")
	ErrShortRead = errors.New("wal: short read")
)

const (
	magicU32   uint32 = 0x4C41574E // "NWAL"
	versionU16        = 1

	recPageImage uint8 = 1

	fixedHeaderLen = 4 + 2 + 1 + 1 + 4 + 4 + 8 + 4 // magic+ver+typ+rsv+totalLen+crc+lsn+pageID
)

// PageWriter lets Recover apply redo without wal importing bufferpool.
type PageWriter interface {
	WritePage(pageID storage.PageID, pageBytes []byte) error
}

// Manager appends CRC-checked page-image records and hands out
// monotonically increasing LSNs.
type Manager struct {
	mu      sync.Mutex
	f       *os.File
	path    string
	lsn     uint64
	flushed uint64
}

// Open opens (creating if needed) the WAL file under dir.
func Open(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, storage.FileMode0755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "wal.log")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, storage.FileMode0644)
	if err != nil {
		return nil, err
	}
	m := &Manager{f: f, path: path}
	_ = m.initLastLSN()
	return m, nil
}

func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	return err
}

// NextLSN reserves and returns the next log sequence number without
// writing a record — used to stamp a header page's lsn_ field before
// its first flush.
func (m *Manager) NextLSN() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lsn++
	return m.lsn
}

// LogPageImage appends a full page image under a fresh LSN, returning it.
func (m *Manager) LogPageImage(pageID storage.PageID, pageBytes []byte) (uint64, error) {
	if len(pageBytes) != storage.PageSize {
		return 0, ErrBadRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return 0, ErrBadRecord
	}

	m.lsn++
	lsn := m.lsn

	totalLen := fixedHeaderLen + storage.PageSize
	buf := make([]byte, totalLen)
	off := 0

	putU32 := func(v uint32) { bx.PutU32(buf[off:off+4], v); off += 4 }
	putU16 := func(v uint16) { bx.PutU16(buf[off:off+2], v); off += 2 }
	putU64 := func(v uint64) { bx.PutU64(buf[off:off+8], v); off += 8 }
	putU8 := func(v uint8) { buf[off] = v; off++ }

	putU32(magicU32)
	putU16(versionU16)
	putU8(recPageImage)
	putU8(0)

	putU32(uint32(totalLen))

	crcOff := off
	putU32(0) // placeholder

	putU64(lsn)
	putU32(uint32(pageID))

	copy(buf[off:], pageBytes)
	off += storage.PageSize

	crc := crc32.ChecksumIEEE(buf[crcOff+4:])
	bx.PutU32(buf[crcOff:crcOff+4], crc)

	if _, err := m.f.Write(buf); err != nil {
		return 0, err
	}
	return lsn, nil
}

// Flush fsyncs the log up to (at least) lsn. A no-op if lsn was already
// durable.
func (m *Manager) Flush(lsn uint64) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil || lsn == 0 || lsn <= m.flushed {
		return nil
	}
	if err := m.f.Sync(); err != nil {
		return err
	}
	m.flushed = lsn
	return nil
}

// Recover replays logged page images (redo) through writer.
func (m *Manager) Recover(writer PageWriter) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	path := m.path
	m.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<20)
	for {
		rec, err := readOne(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrShortRead) {
				return nil
			}
			return err
		}
		if rec.typ != recPageImage {
			continue
		}
		if err := writer.WritePage(storage.PageID(rec.pageID), rec.page); err != nil {
			return err
		}
	}
}

type decodedRecord struct {
	typ    uint8
	lsn    uint64
	pageID uint32
	page   []byte
}

func readOne(r *bufio.Reader) (*decodedRecord, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if bx.U32(hdr[:]) != magicU32 {
		return nil, ErrBadMagic
	}

	var verB [2]byte
	if _, err := io.ReadFull(r, verB[:]); err != nil {
		return nil, err
	}
	if bx.U16(verB[:]) != versionU16 {
		return nil, ErrBadRecord
	}

	tp, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadByte(); err != nil { // reserved
		return nil, err
	}

	var lenB [4]byte
	if _, err := io.ReadFull(r, lenB[:]); err != nil {
		return nil, err
	}
	totalLen := bx.U32(lenB[:])
	if totalLen < uint32(fixedHeaderLen) {
		return nil, ErrBadRecord
	}

	var crcB [4]byte
	if _, err := io.ReadFull(r, crcB[:]); err != nil {
		return nil, err
	}
	wantCRC := bx.U32(crcB[:])

	restLen := int(totalLen) - (4 + 2 + 1 + 1 + 4 + 4)
	rest := make([]byte, restLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrShortRead
		}
		return nil, err
	}
	if crc32.ChecksumIEEE(rest) != wantCRC {
		return nil, ErrBadCRC
	}

	off := 0
	lsn := bx.U64(rest[off : off+8])
	off += 8
	pageID := bx.U32(rest[off : off+4])
	off += 4

	if off+storage.PageSize > len(rest) {
		return nil, ErrBadRecord
	}
	page := make([]byte, storage.PageSize)
	copy(page, rest[off:off+storage.PageSize])

	return &decodedRecord{typ: tp, lsn: lsn, pageID: pageID, page: page}, nil
}

func (m *Manager) initLastLSN() error {
	f, err := os.Open(m.path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<20)
	var last uint64
	for {
		rec, err := readOne(r)
		if err != nil {
			break
		}
		if rec.lsn > last {
			last = rec.lsn
		}
	}
	if last > 0 {
		m.lsn = last
		m.flushed = last
	}
	return nil
}
