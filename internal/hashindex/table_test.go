package hashindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagekit-db/pagekit/internal/alias/bx"
	"github.com/pagekit-db/pagekit/internal/bufferpool"
	"github.com/pagekit-db/pagekit/internal/storage"
)

func int64Codec() Codec[int64] {
	return Codec[int64]{
		Size:   8,
		Encode: func(v int64, b []byte) { bx.PutU64(b, uint64(v)) },
		Decode: func(b []byte) int64 { return int64(bx.U64(b)) },
	}
}

func intCmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func identityHash(key int64) uint64 { return uint64(key) }

func newTestTable(t *testing.T, numBuckets int) *Table[int64, int64] {
	t.Helper()
	dm, err := storage.NewFileManager(t.TempDir(), "hashdata")
	require.NoError(t, err)
	pool := bufferpool.NewPool(dm, 32)

	kc, vc := int64Codec(), int64Codec()
	tbl, err := New(pool, intCmp, identityHash, kc, vc, numBuckets)
	require.NoError(t, err)
	return tbl
}

func TestTable_InsertGetValue_RoundTrip(t *testing.T) {
	tbl := newTestTable(t, 16)

	ok, err := tbl.Insert(1, 10)
	require.NoError(t, err)
	require.True(t, ok)

	// The slot index is hash mod blockArraySize, so this key lands in the
	// same initial slot as key 1 and probes on to the next one.
	collider := 1 + int64(tbl.blockArraySize)
	ok, err = tbl.Insert(collider, 20)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tbl.Insert(1, 10)
	require.NoError(t, err)
	require.False(t, ok, "duplicate insert must be rejected")

	values, found := tbl.GetValue(1)
	require.True(t, found)
	require.ElementsMatch(t, []int64{10}, values)

	values, found = tbl.GetValue(collider)
	require.True(t, found)
	require.ElementsMatch(t, []int64{20}, values)
}

func TestTable_Remove_TombstoneDoesNotBreakProbing(t *testing.T) {
	tbl := newTestTable(t, 16)

	// Same initial slot as key 1, so its probe chain runs through the
	// tombstone Remove leaves behind.
	collider := 1 + int64(tbl.blockArraySize)

	_, err := tbl.Insert(1, 10)
	require.NoError(t, err)
	_, err = tbl.Insert(collider, 20)
	require.NoError(t, err)

	removed, err := tbl.Remove(1, 10)
	require.NoError(t, err)
	require.True(t, removed)

	values, found := tbl.GetValue(collider)
	require.True(t, found)
	require.ElementsMatch(t, []int64{20}, values)

	values, found = tbl.GetValue(1)
	require.False(t, found)
	require.Empty(t, values)
}

func TestTable_Remove_MissingPairReturnsFalse(t *testing.T) {
	tbl := newTestTable(t, 16)

	removed, err := tbl.Remove(5, 50)
	require.NoError(t, err)
	require.False(t, removed)
}

func TestTable_GetSize_TracksLivePairs(t *testing.T) {
	tbl := newTestTable(t, 16)
	require.Equal(t, 0, tbl.GetSize())

	_, err := tbl.Insert(1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, tbl.GetSize())

	_, err = tbl.Insert(2, 20)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.GetSize())

	_, err = tbl.Remove(1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, tbl.GetSize())
}

func TestTable_Resize_ReservedStub(t *testing.T) {
	tbl := newTestTable(t, 16)
	require.ErrorIs(t, tbl.Resize(), ErrResizeUnsupported)
}

func TestTable_Insert_FullTableReturnsResizeError(t *testing.T) {
	// A single-block table (numBuckets=1 collapses to one block page)
	// fills up after exactly blockArraySize distinct-key inserts.
	tbl := newTestTable(t, 1)

	var lastErr error
	inserted := 0
	for k := int64(0); k < 10000; k++ {
		ok, err := tbl.Insert(k, k)
		if err != nil {
			lastErr = err
			break
		}
		require.True(t, ok)
		inserted++
	}

	require.ErrorIs(t, lastErr, ErrResizeUnsupported)
	require.Equal(t, inserted, tbl.GetSize())
}

func TestTable_Open_ReattachesToExistingHeader(t *testing.T) {
	dm, err := storage.NewFileManager(t.TempDir(), "hashdata")
	require.NoError(t, err)
	pool := bufferpool.NewPool(dm, 32)

	kc, vc := int64Codec(), int64Codec()
	tbl, err := New(pool, intCmp, identityHash, kc, vc, 16)
	require.NoError(t, err)

	ok, err := tbl.Insert(3, 30)
	require.NoError(t, err)
	require.True(t, ok)

	reopened, err := Open(pool, tbl.headerPageID, intCmp, identityHash, kc, vc)
	require.NoError(t, err)

	values, found := reopened.GetValue(3)
	require.True(t, found)
	require.ElementsMatch(t, []int64{30}, values)
}
