// Package clockreplacer implements the Clock (second-chance)
// approximation of LRU used to pick eviction victims among unpinned
// buffer-pool frames. It holds no page contents and performs no I/O.
package clockreplacer

import "log/slog"

const emptySlot = int32(-1)

// frameState is the bookkeeping kept per frame the replacer has ever
// heard about.
//
//   - pinnedEver is sticky: once a frame has been Pin'd at least once it
//     stays true for the life of the replacer, distinguishing "never
//     used" from "currently pinned, will be unpinned again later".
//   - refBit is the Clock second-chance bit.
//   - slot is the frame's position in the ring, or -1 if it currently
//     holds no slot (pinned, or never unpinned).
type frameState struct {
	pinnedEver bool
	refBit     bool
	slot       int
}

// Replacer is a bounded set of unpinned frame ids with Clock victim
// selection. frame ids range over [0, poolSize).
type Replacer struct {
	ring        []int32 // length poolSize; emptySlot or a frame id
	states      map[int32]*frameState
	clockHand   int
	poolSize    int
	totalFrames int
}

// New creates a Replacer over poolSize frame ids, all initially absent
// (neither pinned nor evictable).
func New(poolSize int) *Replacer {
	if poolSize <= 0 {
		poolSize = 1
	}
	ring := make([]int32, poolSize)
	for i := range ring {
		ring[i] = emptySlot
	}
	return &Replacer{
		ring:     ring,
		states:   make(map[int32]*frameState),
		poolSize: poolSize,
	}
}

// Size returns the number of frames currently eligible for eviction.
func (r *Replacer) Size() int {
	return r.totalFrames
}

// Victim removes and returns one evictable frame id, or false if the
// replacer holds none. Frames with ref_bit set are given a second
// chance (cleared, skipped) during one sweep; if every candidate in
// that sweep had ref_bit set, the lowest frame id among them is chosen
// deterministically so the degenerate "everything was recently used"
// case still terminates and picks a reproducible victim.
func (r *Replacer) Victim() (int32, bool) {
	if r.totalFrames == 0 {
		return 0, false
	}

	seen := make([]int32, 0, r.totalFrames)
	hand := r.clockHand
	visited := 0

	for visited < r.totalFrames {
		fid := r.ring[hand]
		if fid == emptySlot {
			hand = (hand + 1) % r.poolSize
			continue
		}
		visited++
		seen = append(seen, fid)

		st := r.states[fid]
		if !st.refBit {
			r.removeFromRing(fid, st)
			r.clockHand = (hand + 1) % r.poolSize
			slog.Debug("clockreplacer: victim", "frame", fid)
			return fid, true
		}
		st.refBit = false
		hand = (hand + 1) % r.poolSize
	}

	// Every candidate seen this sweep had ref_bit==1 (now cleared).
	// Deterministic tie-break: lowest frame id among those seen.
	victim := seen[0]
	for _, fid := range seen[1:] {
		if fid < victim {
			victim = fid
		}
	}
	st := r.states[victim]
	r.clockHand = (st.slot + 1) % r.poolSize
	r.removeFromRing(victim, st)
	slog.Debug("clockreplacer: victim via all-referenced sweep", "frame", victim)
	return victim, true
}

func (r *Replacer) removeFromRing(fid int32, st *frameState) {
	r.ring[st.slot] = emptySlot
	st.slot = -1
	st.refBit = false
	r.totalFrames--
}

// Pin removes frameID from eviction candidacy. Idempotent; marks the
// frame as having been pinned at least once.
func (r *Replacer) Pin(frameID int32) {
	st, ok := r.states[frameID]
	if !ok {
		r.states[frameID] = &frameState{pinnedEver: true, slot: -1}
		return
	}
	if st.slot != -1 {
		r.ring[st.slot] = emptySlot
		st.slot = -1
		r.totalFrames--
	}
	st.pinnedEver = true
}

// Unpin adds frameID to eviction candidacy. A frame that was pinned at
// least once is (re)added with ref_bit=1; a frame id the replacer has
// never heard about is added with ref_bit=0 and pinnedEver=false. No-op
// if the replacer's ring is already full, or if frameID is already
// tracked as unpinned (a duplicate Unpin with no intervening Pin).
func (r *Replacer) Unpin(frameID int32) {
	st, ok := r.states[frameID]
	if !ok {
		slot := r.allocateSlot()
		if slot == -1 {
			return
		}
		r.placeInRing(frameID, slot)
		r.states[frameID] = &frameState{pinnedEver: false, refBit: false, slot: slot}
		r.totalFrames++
		return
	}

	if !st.pinnedEver {
		// Already in the replacer (or never pinned) — no-op.
		return
	}
	if st.slot != -1 {
		// Already unpinned and tracked; nothing to do.
		return
	}

	slot := r.allocateSlot()
	if slot == -1 {
		return
	}
	r.placeInRing(frameID, slot)
	st.slot = slot
	st.refBit = true
	r.totalFrames++
}

func (r *Replacer) placeInRing(frameID int32, slot int) {
	r.ring[slot] = frameID
	if slot == r.clockHand {
		r.clockHand = (r.clockHand + 1) % r.poolSize
	}
}

// allocateSlot walks forward from clockHand to the first empty ring
// slot, returning -1 if the ring is full (replacer at capacity).
func (r *Replacer) allocateSlot() int {
	for i := 0; i < r.poolSize; i++ {
		idx := (r.clockHand + i) % r.poolSize
		if r.ring[idx] == emptySlot {
			return idx
		}
	}
	return -1
}
