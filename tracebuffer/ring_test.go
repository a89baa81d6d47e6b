package tracebuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReserve_SimpleAllocationAdvancesCursor(t *testing.T) {
	a := assert.New(t)
	tb, ok := Create(4096, EPolicy.Overwrite(), nil)
	a.True(ok)

	off1, ok1 := tb.reserve(64)
	a.True(ok1)
	a.EqualValues(0, off1)

	off2, ok2 := tb.reserve(64)
	a.True(ok2)
	a.EqualValues(64, off2)
	a.EqualValues(128, tb.wr)
}

func TestReserve_WrapPadsTailAndResetsCursor(t *testing.T) {
	a := assert.New(t)
	tb, ok := Create(4096, EPolicy.Overwrite(), nil)
	a.True(ok)

	tb.wr = tb.size - 32 // leave less room than the next request needs
	before := tb.Stats.WriteWrapCount.Load()
	off, ok2 := tb.reserve(64)
	a.True(ok2)
	a.EqualValues(0, off)
	a.True(tb.wrapped)
	a.Equal(before+1, tb.Stats.WriteWrapCount.Load())
}

func TestReserve_DiscardPolicyLatchesPermanentlyOnWrap(t *testing.T) {
	a := assert.New(t)
	tb, ok := Create(4096, EPolicy.Discard(), nil)
	a.True(ok)

	tb.wr = tb.size - 32
	_, ok2 := tb.reserve(64)
	a.False(ok2)
	a.True(tb.discardWrites)

	// Every subsequent reservation attempt is now refused, even one that
	// would otherwise fit.
	_, ok3 := tb.reserve(16)
	a.False(ok3)
}

func TestEvictRange_TurnsLiveChunkIntoPaddingAndCountsLoss(t *testing.T) {
	a := assert.New(t)
	tb, ok := Create(4096, EPolicy.Overwrite(), nil)
	a.True(ok)

	key := SequenceKey{ProducerID: 1, WriterID: 1}
	payload := fragmentBytes([]byte("unread"))
	tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, 0, 1, 0, true, payload)

	chunk := tb.chunkAt(0)
	a.False(chunk.IsPadding())

	tb.evictRange(0, chunk.OuterSize())
	after := tb.chunkAt(0)
	a.True(after.IsPadding())
	a.EqualValues(1, tb.Stats.ChunksOverwritten.Load())
}

// TestRecommit_RestoresStrippedContinuation documents the Open Question
// resolution recorded in DESIGN.md: the §4.1 re-commit rule (flags may only
// accumulate) is applied literally, so a continuation flag stripped by an
// earlier incomplete-chunk commit can reappear if the final recommit sets
// it again — no special-cased suppression is implemented.
func TestRecommit_RestoresStrippedContinuation(t *testing.T) {
	a := assert.New(t)
	tb, ok := Create(4096, EPolicy.Overwrite(), nil)
	a.True(ok)

	key := SequenceKey{ProducerID: 1, WriterID: 1}
	firstPart := fragmentBytes([]byte("partial-begin-of-a-fragmented-pkt"))
	// Committed incomplete: FlagLastPacketContinuesOnNext is stripped and
	// FlagIncomplete is synthesized regardless of what's requested.
	tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, 0, 1, FlagLastPacketContinuesOnNext, false, firstPart)

	chunk := tb.chunkAt(0)
	a.True(chunk.Flags.Has(FlagIncomplete))
	a.False(chunk.Flags.Has(FlagLastPacketContinuesOnNext))

	// Re-commit, now complete, asking for the continuation flag again.
	tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, 0, 1, FlagLastPacketContinuesOnNext, true, firstPart)

	chunk = tb.chunkAt(0)
	a.False(chunk.Flags.Has(FlagIncomplete))
	a.True(chunk.Flags.Has(FlagLastPacketContinuesOnNext))
}
