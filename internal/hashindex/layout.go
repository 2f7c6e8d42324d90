package hashindex

import (
	"github.com/pagekit-db/pagekit/internal/alias/bx"
	"github.com/pagekit-db/pagekit/internal/storage"
)

// Header page layout:
//
//	[0:4)   page_id   int32
//	[4:12)  lsn       uint64
//	[12:16) size      uint32  (live pair count)
//	[16:20) blockCtr  uint32
//	[20:24) keySize   uint32  (for Open validation)
//	[24:28) valSize   uint32
//	[28: )  block_page_id[blockCtr]  int32 each
const headerFixedLen = 28

func headerBlockPageIDOffset(i int) int { return headerFixedLen + 4*i }

type headerFields struct {
	pageID       storage.PageID
	lsn          uint64
	size         uint32
	blockCounter uint32
	keySize      uint32
	valSize      uint32
}

func readHeader(data []byte) headerFields {
	return headerFields{
		pageID:       storage.PageID(bx.U32At(data, 0)),
		lsn:          bx.U64At(data, 4),
		size:         bx.U32At(data, 12),
		blockCounter: bx.U32At(data, 16),
		keySize:      bx.U32At(data, 20),
		valSize:      bx.U32At(data, 24),
	}
}

func writeHeaderFixed(data []byte, h headerFields) {
	bx.PutU32At(data, 0, uint32(h.pageID))
	bx.PutU64At(data, 4, h.lsn)
	bx.PutU32At(data, 12, h.size)
	bx.PutU32At(data, 16, h.blockCounter)
	bx.PutU32At(data, 20, h.keySize)
	bx.PutU32At(data, 24, h.valSize)
}

func headerBlockPageID(data []byte, i int) storage.PageID {
	return storage.PageID(bx.U32At(data, headerBlockPageIDOffset(i)))
}

func setHeaderBlockPageID(data []byte, i int, id storage.PageID) {
	bx.PutU32At(data, headerBlockPageIDOffset(i), uint32(id))
}

// Block page layout:
//
//	[0:4)                 page_id int32
//	[4:4+n)               occupied bitmap, n = ceil(blockArraySize/8)
//	[4+n:4+2n)             readable bitmap
//	[4+2n: )              blockArraySize slots of (keySize+valSize) bytes
const blockHeaderLen = 4

func bitmapBytes(blockArraySize int) int { return (blockArraySize + 7) / 8 }

func blockSlotsOffset(blockArraySize int) int {
	return blockHeaderLen + 2*bitmapBytes(blockArraySize)
}

// computeBlockArraySize returns the largest slot count n such that a
// block page holding n bitmapped (key, value) slots still fits in one
// PageSize buffer.
func computeBlockArraySize(slotSize int) int {
	n := 1
	for blockSlotsOffset(n+1)+(n+1)*slotSize <= storage.PageSize {
		n++
	}
	return n
}

func blockPageID(data []byte) storage.PageID {
	return storage.PageID(bx.U32At(data, 0))
}

func setBlockPageID(data []byte, id storage.PageID) {
	bx.PutU32At(data, 0, uint32(id))
}

func getBit(data []byte, bitmapOffset, i int) bool {
	b := data[bitmapOffset+i/8]
	return b&(1<<(uint(i)%8)) != 0
}

func setBit(data []byte, bitmapOffset, i int, v bool) {
	idx := bitmapOffset + i/8
	mask := byte(1 << (uint(i) % 8))
	if v {
		data[idx] |= mask
	} else {
		data[idx] &^= mask
	}
}

func isOccupied(data []byte, blockArraySize, i int) bool {
	return getBit(data, blockHeaderLen, i)
}

func isReadable(data []byte, blockArraySize, i int) bool {
	return getBit(data, blockHeaderLen+bitmapBytes(blockArraySize), i)
}

func setOccupied(data []byte, blockArraySize, i int, v bool) {
	setBit(data, blockHeaderLen, i, v)
}

func setReadable(data []byte, blockArraySize, i int, v bool) {
	setBit(data, blockHeaderLen+bitmapBytes(blockArraySize), i, v)
}

func slotBytes(data []byte, blockArraySize, slotSize, i int) []byte {
	off := blockSlotsOffset(blockArraySize) + i*slotSize
	return data[off : off+slotSize]
}
