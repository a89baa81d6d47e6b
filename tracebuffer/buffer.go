package tracebuffer

// This file is the package's public contract (spec.md §4.1): the
// TraceBuffer struct, its Policy, Create, and CopyChunkUntrusted. It plays
// the role the teacher's ste/JobPartPlanInfo/chunkedFileWriter.go plays for
// azcopy — the one type every other file in the package hangs state off.

import (
	"reflect"
	"strconv"

	"github.com/pkg/errors"

	"github.com/perfetto-go/tracebuffer/common"
)

// Policy governs what CopyChunkUntrusted does when a write does not fit
// (spec.md §4.1 "Create(size, policy)"). It follows the teacher's
// value-receiver enum idiom (common.EnumHelper), the same pattern LogLevel
// uses, rather than a plain iota block with a hand-written String method.
type Policy uint8

const (
	policyOverwrite Policy = iota
	policyDiscard
)

var EPolicy = Policy(policyOverwrite)

func (Policy) Overwrite() Policy { return policyOverwrite }
func (Policy) Discard() Policy   { return policyDiscard }

func (p Policy) String() string {
	switch p {
	case policyOverwrite:
		return "OVERWRITE"
	case policyDiscard:
		return "DISCARD"
	default:
		return (common.EnumHelper{}).StringInteger(p, reflect.TypeOf(p))
	}
}

// TraceBuffer is a single producer-writable (or, for a clone, permanently
// read-only) ring buffer instance (spec.md §3, §4.1).
type TraceBuffer struct {
	common.NoCopy

	buf    []byte
	size   uint32
	policy Policy
	logger common.ILogger

	wr             uint32
	wrapped        bool
	highWatermark  uint32
	discardWrites  bool
	readOnly       bool
	cloneID        string

	chunks    map[uint32]*TBChunk
	sequences map[SequenceKey]*SequenceState
	emptyQueue common.LinkedList[SequenceKey]

	readCursor     uint32
	readGeneration uint64

	privatePool common.ByteSlicePooler

	// clientIdentities indexes producer_id -> client_identity for every
	// sequence this ring has ever seen, independent of SequenceState's own
	// per-sequence copy. Backed by common.SyncMap rather than a plain map
	// guarded by the same convention as the rest of TraceBuffer (single
	// writer only) because the session layer is explicitly allowed to poll
	// it from another goroutine for bug-report/metrics purposes while the
	// core keeps mutating everything else (spec.md §6 "statistics output to
	// the session layer").
	clientIdentities *common.SyncMap

	Stats *Stats
}

// processMemoryLimiter bounds the total bytes reserved across every ring
// created in this process (spec.md §5 "every allocation is inside the one
// PagedMemory region passed to Create" — generalized here to a process-wide
// ceiling rather than a single caller-supplied region, since a Go process
// has no single mmap'd arena to sub-allocate from). Unbounded by default;
// SetMemoryLimit lets an embedder impose one, mirroring the teacher's
// CacheLimiter being configured once at startup.
var processMemoryLimiter = common.NewPagedMemoryLimiter(0)

// SetMemoryLimit caps the total bytes Create may reserve across all rings
// in this process; limitBytes <= 0 removes the cap.
func SetMemoryLimit(limitBytes int64) {
	processMemoryLimiter = common.NewPagedMemoryLimiter(limitBytes)
}

// nopLogger is installed by Create when the caller passes nil, so every
// other file can call tb.logger.Log unconditionally (the same "always have
// a logger, even a silent one" convention the teacher follows for its
// JobPartMgr loggers).
type nopLogger struct{}

func (nopLogger) ShouldLog(common.LogLevel) bool { return false }
func (nopLogger) Log(common.LogLevel, string)    {}
func (nopLogger) Panic(err error)                { panic(err) }

// Create allocates a ring of size bytes, rounded up to a page boundary and
// capped so a 32-bit offset always suffices (spec.md §4.1). It returns
// (nil, false) — the "null buffer" the spec describes — if size cannot be
// satisfied; in this Go port that happens for a size of zero, one that
// would round past the uint32 range, or one the process-wide memory limit
// (SetMemoryLimit) has no room for, since the backing store is a plain Go
// slice rather than a reserved OS mapping.
func Create(size uint32, policy Policy, logger common.ILogger) (*TraceBuffer, bool) {
	const pageSize = 4096
	if size == 0 {
		return nil, false
	}
	rounded := alignUp(size, pageSize)
	if rounded < size { // overflow past the uint32 range
		return nil, false
	}
	if logger == nil {
		logger = nopLogger{}
	}

	if !processMemoryLimiter.TryAdd(int64(rounded)) {
		return nil, false
	}

	tb := &TraceBuffer{
		buf:        make([]byte, rounded),
		size:       rounded,
		policy:     policy,
		logger:     logger,
		chunks:     make(map[uint32]*TBChunk),
		sequences:  make(map[SequenceKey]*SequenceState),
		Stats:      newStats(rounded),
		privatePool: common.NewMultiSizeSlicePool(rounded),
		clientIdentities: common.NewSyncMap(),
	}
	tb.installPadding(0, rounded)
	return tb, true
}

// panicCorrupt is the §7 "Fatal programmer error" escape hatch: an
// internal invariant (an offset with no indexed chunk, a checksum
// mismatch) has been violated, which per spec.md means the core's own
// state — not untrusted input — is corrupt, and the process must halt.
// Mirrors the teacher's jobLogger.Panic: log first, then panic, so the
// failure is diagnosable from whatever log sink is wired up.
func (tb *TraceBuffer) panicCorrupt(format string, args ...interface{}) {
	err := errors.Errorf(format, args...)
	if tb.logger.ShouldLog(common.LogPanic) {
		tb.logger.Log(common.LogPanic, err.Error())
	}
	panic(err)
}

// CopyChunkUntrusted is the sole write entry point (spec.md §4.1). src has
// already been copied into tb's own private pool slice by the time any of
// its bytes are interpreted, so a producer racing its own shared-memory
// writes against this call cannot affect the outcome (spec.md §5).
func (tb *TraceBuffer) CopyChunkUntrusted(
	producerID uint32,
	clientIdentity string,
	writerID uint32,
	chunkID uint32,
	numFragments uint32,
	flags ChunkFlags,
	chunkComplete bool,
	src []byte,
) {
	if tb.readOnly {
		tb.panicCorrupt("write attempted against a read-only clone")
	}
	key := SequenceKey{ProducerID: producerID, WriterID: writerID}

	if tb.discardWrites {
		tb.Stats.ChunksDiscarded.Add(1)
		return
	}

	if uint64(len(src)) > uint64(tb.size) {
		tb.Stats.ABIViolations.Add(1)
		tb.logAbi(newABIViolation(key, chunkID, "chunk outer size exceeds buffer"))
		return
	}

	private := tb.privatePool.RentSlice(uint32(len(src)))
	copy(private, src)

	if !chunkComplete {
		flags &^= FlagLastPacketContinuesOnNext | FlagNeedsPatch
		flags |= FlagIncomplete
	}

	frags, consumed, aborted, corrupted := tokenizeFragments(private, uint32(len(private)), numFragments, flags)
	if aborted {
		tb.Stats.TraceWriterPacketLoss.Add(1)
	}
	if corrupted {
		tb.Stats.ABIViolations.Add(1)
		tb.logAbi(newABIViolation(key, chunkID, "corrupted fragment chain"))
		tb.privatePool.ReturnSlice(private)
		return
	}

	// The producer is still writing the last fragment in an incomplete
	// chunk, so it may still grow; only what precedes it is committed.
	if !chunkComplete && len(frags) > 0 {
		consumed -= frags[len(frags)-1].TotalSize()
	}

	payloadSize := consumed
	var capacity uint32
	if chunkComplete {
		capacity = payloadSize
	} else {
		capacity = uint32(len(private))
	}
	neededOuter := outerSize(capacity)
	if neededOuter > tb.size {
		tb.Stats.ABIViolations.Add(1)
		tb.logAbi(newABIViolation(key, chunkID, "chunk outer size exceeds buffer"))
		tb.privatePool.ReturnSlice(private)
		return
	}

	seq := tb.sequenceFor(key)
	seq.ClientIdentity = clientIdentity
	tb.clientIdentities.Set(producerIDKey(producerID), clientIdentity)

	if seq.HasLastConsumed && !chunkIDLess(seq.LastChunkIDConsumed, chunkID) {
		tb.Stats.ChunksDiscarded.Add(1)
		tb.privatePool.ReturnSlice(private)
		return
	}

	idx, exists := seq.findInsertionIndex(chunkID)
	if exists {
		tb.recommit(seq, idx, key, chunkID, payloadSize, capacity, flags, private)
		return
	}

	if idx < len(seq.Entries) {
		tb.Stats.ChunksCommittedOutOfOrder.Add(1)
	}

	offset, ok := tb.reserve(neededOuter)
	if !ok {
		tb.Stats.ChunksDiscarded.Add(1)
		tb.privatePool.ReturnSlice(private)
		return
	}

	chunk := &TBChunk{
		Offset:       offset,
		Size:         capacity,
		PayloadSize:  payloadSize,
		PayloadAvail: payloadSize,
		ChunkID:      chunkID,
		SequenceKey:  key,
		Flags:        flags,
	}
	chunk.IntegrityTag = computeIntegrityTag(offset, capacity)
	tb.chunks[offset] = chunk
	tb.writePayload(offset, private[:payloadSize])
	seq.insertAt(idx, seqEntry{Offset: offset, ChunkID: chunkID})

	tb.Stats.ChunksWritten.Add(1)
	tb.Stats.BytesWritten.Add(uint64(payloadSize))
	tb.Stats.WriteThroughput.Add(uint64(payloadSize))

	tb.privatePool.ReturnSlice(private)
	tb.gcEmptySequences()
}

// recommit implements the re-commit branch of spec.md §4.1: a later
// CopyChunkUntrusted for a chunk_id already present in the sequence's
// list, almost always completing a chunk first committed while still
// incomplete.
func (tb *TraceBuffer) recommit(seq *SequenceState, idx int, key SequenceKey, chunkID uint32, payloadSize, capacity uint32, flags ChunkFlags, private []byte) {
	e := seq.Entries[idx]
	chunk := tb.chunkAt(e.Offset)

	if payloadSize < chunk.PayloadSize || capacity > chunk.Size {
		tb.Stats.ABIViolations.Add(1)
		tb.logAbi(newABIViolation(key, chunkID, "shrinking or outgrown re-commit"))
		tb.privatePool.ReturnSlice(private)
		return
	}
	oldFlagsSansIncomplete := (chunk.Flags &^ FlagIncomplete)
	newFlagsSansIncomplete := (flags &^ FlagIncomplete)
	if newFlagsSansIncomplete&oldFlagsSansIncomplete != oldFlagsSansIncomplete {
		tb.Stats.ABIViolations.Add(1)
		tb.logAbi(newABIViolation(key, chunkID, "re-commit narrowed flags"))
		tb.privatePool.ReturnSlice(private)
		return
	}

	if payloadSize == chunk.PayloadSize {
		tb.privatePool.ReturnSlice(private)
		return
	}

	consumedAlready := chunk.PayloadSize - chunk.PayloadAvail
	dst := tb.payloadBytes(chunk)
	copy(dst[consumedAlready:payloadSize], private[consumedAlready:payloadSize])
	chunk.PayloadSize = payloadSize
	chunk.PayloadAvail = payloadSize - consumedAlready
	chunk.Flags = oldFlagsSansIncomplete | newFlagsSansIncomplete

	tb.Stats.ChunksRewritten.Add(1)
	tb.privatePool.ReturnSlice(private)
	tb.gcEmptySequences()
}

func producerIDKey(producerID uint32) string {
	return strconv.FormatUint(uint64(producerID), 10)
}

// ClientIdentityFor returns the most recently seen client_identity string
// for producerID, safe to call from a goroutine other than the one driving
// the buffer (spec.md §6).
func (tb *TraceBuffer) ClientIdentityFor(producerID uint32) (string, bool) {
	return tb.clientIdentities.Get(producerIDKey(producerID))
}

func (tb *TraceBuffer) logAbi(v *ABIViolation) {
	if tb.logger.ShouldLog(common.LogWarning) {
		tb.logger.Log(common.LogWarning, v.Error())
	}
}
