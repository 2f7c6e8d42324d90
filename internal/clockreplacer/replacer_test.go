package clockreplacer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsSmallPoolSize(t *testing.T) {
	r := New(0)
	require.Equal(t, 1, r.Size())
	_, ok := r.Victim()
	require.False(t, ok)
}

func TestUnpin_UnknownFrameAddedWithoutPriorPin(t *testing.T) {
	r := New(3)

	// Unpinning a frame id the replacer has never heard about adds it
	// with pinnedEver=false, per the literal algorithm.
	r.Unpin(1)
	require.Equal(t, 1, r.Size())
}

func TestPinThenUnpin_MakesEvictable(t *testing.T) {
	r := New(3)

	r.Pin(0)
	require.Equal(t, 0, r.Size())

	r.Unpin(0)
	require.Equal(t, 1, r.Size())
}

func TestPin_RemovesFromCandidacy(t *testing.T) {
	r := New(3)
	r.Pin(0)
	r.Unpin(0)
	require.Equal(t, 1, r.Size())

	r.Pin(0)
	require.Equal(t, 0, r.Size())
}

func TestUnpin_Idempotent(t *testing.T) {
	r := New(3)
	r.Pin(0)
	r.Unpin(0)
	r.Unpin(0) // duplicate, no intervening Pin
	require.Equal(t, 1, r.Size())
}

func TestUnpin_NoOpWhenFull(t *testing.T) {
	r := New(2)
	r.Pin(0)
	r.Pin(1)
	r.Pin(2)
	r.Unpin(0)
	r.Unpin(1)
	require.Equal(t, 2, r.Size())

	r.Unpin(2) // ring already has 2 slots filled, ring size is 2
	require.Equal(t, 2, r.Size())
}

func TestVictim_AllReferenced_PicksLowestID(t *testing.T) {
	r := New(3)
	for i := int32(0); i < 3; i++ {
		r.Pin(i)
		r.Unpin(i)
	}
	require.Equal(t, 3, r.Size())

	fid, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, int32(0), fid)
	require.Equal(t, 2, r.Size())
}

func TestVictim_SecondSweep_FindsClearedRefBitImmediately(t *testing.T) {
	r := New(3)
	for i := int32(0); i < 3; i++ {
		r.Pin(i)
		r.Unpin(i)
	}

	// First sweep: every frame has ref_bit=1, so all get cleared and
	// the tie-break picks frame 0.
	first, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, int32(0), first)

	// Frames 1 and 2 now have ref_bit=0 (cleared, not evicted), so the
	// next sweep finds one on the first pass without another tie-break.
	second, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, int32(1), second)
}

func TestVictim_EmptyReplacer(t *testing.T) {
	r := New(4)
	_, ok := r.Victim()
	require.False(t, ok)
}

func TestVictim_AllRefBitSet_DeterministicLowestID(t *testing.T) {
	r := New(3)
	// Every frame just unpinned carries ref_bit=1, so the first sweep
	// clears all three and finds no immediate candidate; the victim is
	// then the lowest frame id among those seen this sweep.
	r.Pin(2)
	r.Unpin(2)
	r.Pin(1)
	r.Unpin(1)
	r.Pin(0)
	r.Unpin(0)

	fid, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, int32(0), fid)
}
