package tracebuffer

// CloneReadOnly implements spec.md §4.1's bug-report snapshot: a detached,
// same-size ring holding a flat copy of the live bytes up to the high
// watermark plus an independent copy of the chunk/sequence indexes. Chunks
// are addressed by byte offset rather than pointer everywhere in this
// package specifically so that this copy can be a flat map/slice copy with
// no pointer fixup (spec.md §9).

import (
	"github.com/google/uuid"

	"github.com/perfetto-go/tracebuffer/common"
)

// CloneReadOnly returns nil if the process-wide memory limit (see
// SetMemoryLimit) has no room left for a second ring of this size.
func (tb *TraceBuffer) CloneReadOnly() *TraceBuffer {
	if !processMemoryLimiter.TryAdd(int64(tb.size)) {
		return nil
	}

	clone := &TraceBuffer{
		buf:           make([]byte, tb.size),
		size:          tb.size,
		policy:        tb.policy,
		logger:        tb.logger,
		wr:            tb.wr,
		wrapped:       tb.wrapped,
		highWatermark: tb.highWatermark,
		discardWrites: true,
		readOnly:      true,
		cloneID:       uuid.NewString(),
		chunks:        make(map[uint32]*TBChunk, len(tb.chunks)),
		sequences:     make(map[SequenceKey]*SequenceState, len(tb.sequences)),
		privatePool:   common.NewMultiSizeSlicePool(tb.size),
		clientIdentities: common.NewSyncMap(),
	}

	tb.clientIdentities.Iterate(true, func(k, v string) {
		clone.clientIdentities.Set(k, v)
	})

	copy(clone.buf[:tb.highWatermark], tb.buf[:tb.highWatermark])

	for offset, chunk := range tb.chunks {
		cp := *chunk
		clone.chunks[offset] = &cp
	}
	for key, seq := range tb.sequences {
		cp := &SequenceState{
			Key:                 seq.Key,
			ClientIdentity:      seq.ClientIdentity,
			Entries:             append([]seqEntry(nil), seq.Entries...),
			HasLastConsumed:     seq.HasLastConsumed,
			LastChunkIDConsumed: seq.LastChunkIDConsumed,
			DataLoss:            seq.DataLoss,
		}
		clone.sequences[key] = cp
	}

	clone.Stats = newStats(tb.size)
	clone.Stats.BytesRead.Store(tb.Stats.BytesRead.Load())
	clone.Stats.ChunksRead.Store(tb.Stats.ChunksRead.Load())
	clone.Stats.restoreHistogram(tb.Stats.cloneHistogram())

	clone.BeginRead()
	return clone
}
