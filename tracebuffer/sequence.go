package tracebuffer

// seqEntry is one live chunk belonging to a SequenceState's ordered list,
// referenced by ring offset rather than pointer (spec.md §9 "Shared
// offsets, not pointers" — the same reason TBChunk itself is offset-keyed).
type seqEntry struct {
	Offset  uint32
	ChunkID uint32
}

// SequenceState is the per-(producer_id, writer_id) bookkeeping spec.md §3
// describes. Entries is deliberately a plain slice, not the teacher's
// common.LinkedList[T]: spec.md §9 calls this out explicitly ("Implementers
// should use an integer-indexed deque per sequence, not a linked list of
// chunk pointers"), so LinkedList is instead repurposed for gc.go's
// age-ordered empty-sequence retention queue, where that shape is correct.
type SequenceState struct {
	Key            SequenceKey
	ClientIdentity string

	// Entries is ordered ascending by modular ChunkID; Entries[0] is always
	// the oldest chunk still owned by this sequence and the next one the
	// sequence reader will examine.
	Entries []seqEntry

	HasLastConsumed     bool
	LastChunkIDConsumed uint32

	// DataLoss is surfaced on the next packet yielded from this sequence,
	// then cleared (spec.md §4.4, §7 "Data-loss event").
	DataLoss bool

	// SkipGeneration holds the read generation at which this sequence was
	// last proved unreadable (NOT_ENOUGH_DATA); the outer walk does not
	// retry it again until BeginRead bumps the generation counter past it.
	SkipGeneration uint64
}

// chunkIDLess reports whether a logically precedes b under the wrap-aware
// modular comparison spec.md §9 describes: a signed 32-bit difference, so a
// distance of exactly 2^31 is the single undefined case (chunkIDAmbiguous).
func chunkIDLess(a, b uint32) bool {
	return int32(a-b) < 0
}

func chunkIDAmbiguous(a, b uint32) bool {
	return a-b == 1<<31
}

// findInsertionIndex locates where chunkID belongs in seq.Entries via a
// reverse linear scan (spec.md §4.1: "out-of-order commits are rare", so
// the common case — appending at the tail — terminates in one comparison).
// exists reports whether chunkID already has an entry (a re-commit).
func (seq *SequenceState) findInsertionIndex(chunkID uint32) (idx int, exists bool) {
	for i := len(seq.Entries) - 1; i >= 0; i-- {
		id := seq.Entries[i].ChunkID
		if id == chunkID {
			return i, true
		}
		if chunkIDLess(id, chunkID) {
			return i + 1, false
		}
	}
	return 0, false
}

func (seq *SequenceState) insertAt(idx int, e seqEntry) {
	seq.Entries = append(seq.Entries, seqEntry{})
	copy(seq.Entries[idx+1:], seq.Entries[idx:])
	seq.Entries[idx] = e
}

// sequenceFor returns the SequenceState for key, creating an empty one on
// first sight of the (producer, writer) pair (spec.md §3 "Lifecycle").
func (tb *TraceBuffer) sequenceFor(key SequenceKey) *SequenceState {
	if seq, ok := tb.sequences[key]; ok {
		return seq
	}
	seq := &SequenceState{Key: key}
	tb.sequences[key] = seq
	return seq
}

// noteSequenceEmpty enqueues key for gc.go's retention-count bookkeeping.
// Duplicate/stale entries are expected and handled lazily at GC time (see
// gc.go) rather than deduplicated here, so this never needs to search the
// queue.
func (tb *TraceBuffer) noteSequenceEmpty(key SequenceKey) {
	tb.emptyQueue.Insert(key)
}
