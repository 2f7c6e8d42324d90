package hashindex

import (
	"log/slog"

	"github.com/pagekit-db/pagekit/internal/bufferpool"
	"github.com/pagekit-db/pagekit/internal/storage"
)

const logPrefix = "hashindex: "

// Table is a persistent hash map from K to V whose header and bucket
// pages are fetched through a buffer pool. It has no internal locking;
// callers serialize access exactly as the pool itself requires.
type Table[K any, V comparable] struct {
	pool *bufferpool.Pool

	headerPageID storage.PageID

	cmp  KeyComparator[K]
	hash HashFunc[K]

	keyCodec Codec[K]
	valCodec Codec[V]

	blockArraySize int
	slotSize       int
}

// New allocates a fresh table with ceil(numBuckets / blockArraySize)
// block pages, all slots empty.
func New[K any, V comparable](
	pool *bufferpool.Pool,
	cmp KeyComparator[K],
	hash HashFunc[K],
	keyCodec Codec[K],
	valCodec Codec[V],
	numBuckets int,
) (*Table[K, V], error) {
	slotSize := keyCodec.Size + valCodec.Size
	blockArraySize := computeBlockArraySize(slotSize)
	blockCounter := (numBuckets + blockArraySize - 1) / blockArraySize
	if blockCounter < 1 {
		blockCounter = 1
	}

	headerFrame, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	headerPageID := headerFrame.PageID()

	blockIDs := make([]storage.PageID, blockCounter)
	for i := 0; i < blockCounter; i++ {
		bf, err := pool.NewPage()
		if err != nil {
			return nil, err
		}
		setBlockPageID(bf.Data(), bf.PageID())
		blockIDs[i] = bf.PageID()
		if _, err := pool.UnpinPage(bf.PageID(), true); err != nil {
			return nil, err
		}
	}

	lsn := pool.ReserveLSN()
	writeHeaderFixed(headerFrame.Data(), headerFields{
		pageID:       headerPageID,
		lsn:          lsn,
		size:         0,
		blockCounter: uint32(blockCounter),
		keySize:      uint32(keyCodec.Size),
		valSize:      uint32(valCodec.Size),
	})
	for i, id := range blockIDs {
		setHeaderBlockPageID(headerFrame.Data(), i, id)
	}
	if _, err := pool.UnpinPage(headerPageID, true); err != nil {
		return nil, err
	}
	if err := pool.FlushLog(lsn); err != nil {
		return nil, err
	}
	if _, err := pool.FlushPage(headerPageID); err != nil {
		return nil, err
	}

	slog.Debug(logPrefix+"created table", "headerPageID", headerPageID, "blocks", blockCounter, "blockArraySize", blockArraySize)

	return &Table[K, V]{
		pool:           pool,
		headerPageID:   headerPageID,
		cmp:            cmp,
		hash:           hash,
		keyCodec:       keyCodec,
		valCodec:       valCodec,
		blockArraySize: blockArraySize,
		slotSize:       slotSize,
	}, nil
}

// Open reattaches to an existing table via its header page id.
func Open[K any, V comparable](
	pool *bufferpool.Pool,
	headerPageID storage.PageID,
	cmp KeyComparator[K],
	hash HashFunc[K],
	keyCodec Codec[K],
	valCodec Codec[V],
) (*Table[K, V], error) {
	frame, err := pool.FetchPage(headerPageID)
	if err != nil {
		return nil, err
	}
	h := readHeader(frame.Data())
	if _, err := pool.UnpinPage(headerPageID, false); err != nil {
		return nil, err
	}

	if h.keySize != uint32(keyCodec.Size) || h.valSize != uint32(valCodec.Size) {
		return nil, ErrHeaderCorrupt
	}

	slotSize := keyCodec.Size + valCodec.Size
	return &Table[K, V]{
		pool:           pool,
		headerPageID:   headerPageID,
		cmp:            cmp,
		hash:           hash,
		keyCodec:       keyCodec,
		valCodec:       valCodec,
		blockArraySize: computeBlockArraySize(slotSize),
		slotSize:       slotSize,
	}, nil
}

// directory snapshots the header page's block_page_id list once so a
// probe loop does not re-fetch the header on every slot it visits.
func (t *Table[K, V]) directory() ([]storage.PageID, error) {
	frame, err := t.pool.FetchPage(t.headerPageID)
	if err != nil {
		return nil, err
	}
	h := readHeader(frame.Data())
	ids := make([]storage.PageID, h.blockCounter)
	for i := range ids {
		ids[i] = headerBlockPageID(frame.Data(), i)
	}
	if _, err := t.pool.UnpinPage(t.headerPageID, false); err != nil {
		return nil, err
	}
	return ids, nil
}

func (t *Table[K, V]) probeStart(key K, blockCount int) (block, slot int) {
	h := t.hash(key)
	block = int(h % uint64(blockCount))
	slot = int(h % uint64(t.blockArraySize))
	return block, slot
}

// advance moves (block, slot) one position forward, wrapping the slot
// within a block and the block within the table.
func (t *Table[K, V]) advance(blockCount, block, slot int) (int, int) {
	slot++
	if slot >= t.blockArraySize {
		slot = 0
		block = (block + 1) % blockCount
	}
	return block, slot
}

// GetValue returns every value stored under key.
func (t *Table[K, V]) GetValue(key K) ([]V, bool) {
	dir, err := t.directory()
	if err != nil {
		return nil, false
	}
	blockCount := len(dir)
	numSlots := blockCount * t.blockArraySize

	block, slot := t.probeStart(key, blockCount)

	var values []V
	for i := 0; i < numSlots; i++ {
		blockID := dir[block]
		frame, err := t.pool.FetchPage(blockID)
		if err != nil {
			return nil, false
		}
		data := frame.Data()

		if !isOccupied(data, t.blockArraySize, slot) {
			_, _ = t.pool.UnpinPage(blockID, false)
			break
		}
		if isReadable(data, t.blockArraySize, slot) {
			sb := slotBytes(data, t.blockArraySize, t.slotSize, slot)
			k := t.keyCodec.Decode(sb[:t.keyCodec.Size])
			if t.cmp(k, key) == 0 {
				v := t.valCodec.Decode(sb[t.keyCodec.Size:])
				values = append(values, v)
			}
		}
		_, _ = t.pool.UnpinPage(blockID, false)

		block, slot = t.advance(blockCount, block, slot)
	}

	return values, len(values) > 0
}

// Insert places (key, value), probing forward from the hashed start.
// Returns false if the exact pair is already present or the table is
// full (see ErrResizeUnsupported).
func (t *Table[K, V]) Insert(key K, value V) (bool, error) {
	dir, err := t.directory()
	if err != nil {
		return false, err
	}
	blockCount := len(dir)
	numSlots := blockCount * t.blockArraySize

	block, slot := t.probeStart(key, blockCount)

	for i := 0; i < numSlots; i++ {
		blockID := dir[block]
		frame, err := t.pool.FetchPage(blockID)
		if err != nil {
			return false, err
		}
		data := frame.Data()

		if !isReadable(data, t.blockArraySize, slot) {
			sb := slotBytes(data, t.blockArraySize, t.slotSize, slot)
			t.keyCodec.Encode(key, sb[:t.keyCodec.Size])
			t.valCodec.Encode(value, sb[t.keyCodec.Size:])
			setOccupied(data, t.blockArraySize, slot, true)
			setReadable(data, t.blockArraySize, slot, true)
			if _, err := t.pool.UnpinPage(blockID, true); err != nil {
				return false, err
			}
			if err := t.bumpSize(1); err != nil {
				return false, err
			}
			slog.Debug(logPrefix+"insert", "block", block, "slot", slot)
			return true, nil
		}

		sb := slotBytes(data, t.blockArraySize, t.slotSize, slot)
		k := t.keyCodec.Decode(sb[:t.keyCodec.Size])
		v := t.valCodec.Decode(sb[t.keyCodec.Size:])
		if _, err := t.pool.UnpinPage(blockID, false); err != nil {
			return false, err
		}
		if t.cmp(k, key) == 0 && v == value {
			return false, nil
		}

		block, slot = t.advance(blockCount, block, slot)
	}

	return false, ErrResizeUnsupported
}

// Remove clears the readable bit for (key, value) if present, leaving
// the slot occupied as a tombstone.
func (t *Table[K, V]) Remove(key K, value V) (bool, error) {
	dir, err := t.directory()
	if err != nil {
		return false, err
	}
	blockCount := len(dir)
	numSlots := blockCount * t.blockArraySize

	block, slot := t.probeStart(key, blockCount)

	for i := 0; i < numSlots; i++ {
		blockID := dir[block]
		frame, err := t.pool.FetchPage(blockID)
		if err != nil {
			return false, err
		}
		data := frame.Data()

		if !isOccupied(data, t.blockArraySize, slot) {
			_, _ = t.pool.UnpinPage(blockID, false)
			return false, nil
		}

		if isReadable(data, t.blockArraySize, slot) {
			sb := slotBytes(data, t.blockArraySize, t.slotSize, slot)
			k := t.keyCodec.Decode(sb[:t.keyCodec.Size])
			v := t.valCodec.Decode(sb[t.keyCodec.Size:])
			if t.cmp(k, key) == 0 && v == value {
				setReadable(data, t.blockArraySize, slot, false)
				if _, err := t.pool.UnpinPage(blockID, true); err != nil {
					return false, err
				}
				if err := t.bumpSize(-1); err != nil {
					return false, err
				}
				slog.Debug(logPrefix+"remove", "block", block, "slot", slot)
				return true, nil
			}
		}
		if _, err := t.pool.UnpinPage(blockID, false); err != nil {
			return false, err
		}

		block, slot = t.advance(blockCount, block, slot)
	}

	return false, nil
}

// GetSize returns the number of live (readable) pairs, maintained as a
// counter on the header page rather than recomputed by scanning.
func (t *Table[K, V]) GetSize() int {
	frame, err := t.pool.FetchPage(t.headerPageID)
	if err != nil {
		return 0
	}
	h := readHeader(frame.Data())
	_, _ = t.pool.UnpinPage(t.headerPageID, false)
	return int(h.size)
}

func (t *Table[K, V]) bumpSize(delta int) error {
	frame, err := t.pool.FetchPage(t.headerPageID)
	if err != nil {
		return err
	}
	h := readHeader(frame.Data())
	h.size = uint32(int(h.size) + delta)
	h.lsn = t.pool.ReserveLSN()
	writeHeaderFixed(frame.Data(), h)
	if _, err := t.pool.UnpinPage(t.headerPageID, true); err != nil {
		return err
	}
	if err := t.pool.FlushLog(h.lsn); err != nil {
		return err
	}
	_, err = t.pool.FlushPage(t.headerPageID)
	return err
}

// Resize is a reserved extension point: bucket splitting / doubling is
// not implemented, so Insert on a full table fails rather than
// recursing through an unresizable table.
func (t *Table[K, V]) Resize() error {
	return ErrResizeUnsupported
}
