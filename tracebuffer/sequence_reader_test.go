package tracebuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceReader_WholeFragmentYieldsImmediately(t *testing.T) {
	a := assert.New(t)
	tb, ok := Create(4096, EPolicy.Overwrite(), nil)
	a.True(ok)

	key := SequenceKey{ProducerID: 1, WriterID: 1}
	tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, 0, 1, 0, true, fragmentBytes([]byte("hello")))

	tb.BeginRead()
	pkt, ok2 := tb.ReadNextTracePacket()
	a.True(ok2)
	a.Equal("hello", string(pkt.Data))
	a.False(pkt.PreviousDropped)

	_, ok3 := tb.ReadNextTracePacket()
	a.False(ok3)
}

func TestSequenceReader_BeginContinueEndAcrossChunks(t *testing.T) {
	a := assert.New(t)
	tb, ok := Create(4096, EPolicy.Overwrite(), nil)
	a.True(ok)

	key := SequenceKey{ProducerID: 1, WriterID: 1}
	begin := fragmentBytes([]byte("AAA"))
	end := fragmentBytes([]byte("BBB"))

	tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, 0, 1, FlagLastPacketContinuesOnNext, true, begin)
	tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, 1, 1, FlagFirstPacketContinuesFromPrev, true, end)

	tb.BeginRead()
	pkt, ok2 := tb.ReadNextTracePacket()
	a.True(ok2)
	a.Equal("AAABBB", string(pkt.Data))
}

func TestSequenceReader_NotEnoughDataStallsUntilContinuationArrives(t *testing.T) {
	a := assert.New(t)
	tb, ok := Create(4096, EPolicy.Overwrite(), nil)
	a.True(ok)

	key := SequenceKey{ProducerID: 1, WriterID: 1}
	begin := fragmentBytes([]byte("AAA"))
	tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, 0, 1, FlagLastPacketContinuesOnNext, true, begin)

	tb.BeginRead()
	_, ok2 := tb.ReadNextTracePacket()
	a.False(ok2, "BEGIN with no END yet must not yield a packet")

	end := fragmentBytes([]byte("BBB"))
	tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, 1, 1, FlagFirstPacketContinuesFromPrev, true, end)

	tb.BeginRead()
	pkt, ok3 := tb.ReadNextTracePacket()
	a.True(ok3)
	a.Equal("AAABBB", string(pkt.Data))
}

func TestSequenceReader_LostBeginMarksDataLossOnNextPacket(t *testing.T) {
	a := assert.New(t)
	tb, ok := Create(4096, EPolicy.Overwrite(), nil)
	a.True(ok)

	key := SequenceKey{ProducerID: 1, WriterID: 1}
	// A CONTINUE fragment with no preceding BEGIN: its BEGIN was evicted.
	mid := fragmentBytes([]byte("mid"))
	tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, 0, 1,
		FlagFirstPacketContinuesFromPrev|FlagLastPacketContinuesOnNext, true, mid)
	whole := fragmentBytes([]byte("next"))
	tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, 1, 1, 0, true, whole)

	tb.BeginRead()
	pkt, ok2 := tb.ReadNextTracePacket()
	a.True(ok2)
	a.Equal("next", string(pkt.Data))
	a.True(pkt.PreviousDropped)
}

func TestSequenceReader_IncompleteChunkNeverYieldsUntilComplete(t *testing.T) {
	a := assert.New(t)
	tb, ok := Create(4096, EPolicy.Overwrite(), nil)
	a.True(ok)

	key := SequenceKey{ProducerID: 1, WriterID: 1}
	partial := fragmentBytes([]byte("growing"))
	tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, 0, 1, 0, false, partial)

	tb.BeginRead()
	_, ok2 := tb.ReadNextTracePacket()
	a.False(ok2)

	tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, 0, 1, 0, true, partial)
	tb.BeginRead()
	pkt, ok3 := tb.ReadNextTracePacket()
	a.True(ok3)
	a.Equal("growing", string(pkt.Data))
}

func TestEraseChunkForEviction_CascadesOlderUnreadChunksAsLoss(t *testing.T) {
	a := assert.New(t)
	tb, ok := Create(4096, EPolicy.Overwrite(), nil)
	a.True(ok)

	key := SequenceKey{ProducerID: 1, WriterID: 1}
	tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, 0, 1, 0, true, fragmentBytes([]byte("one")))
	tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, 1, 1, 0, true, fragmentBytes([]byte("two")))

	secondOffset := tb.sequences[key].Entries[1].Offset
	secondChunk := tb.chunkAt(secondOffset)

	before := tb.Stats.ChunksOverwritten.Load()
	tb.eraseChunkForEviction(secondChunk)
	after := tb.Stats.ChunksOverwritten.Load()

	a.GreaterOrEqual(after-before, uint64(2), "both unread chunks must be folded into the eviction")
	a.Empty(tb.sequences[key].Entries)
}

func TestTurnIntoPadding_ClearsOwnershipAndRefreshesTag(t *testing.T) {
	a := assert.New(t)
	tb, ok := Create(4096, EPolicy.Overwrite(), nil)
	a.True(ok)

	key := SequenceKey{ProducerID: 1, WriterID: 1}
	tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, 0, 1, 0, true, fragmentBytes([]byte("x")))
	chunk := tb.chunkAt(0)

	tb.turnIntoPadding(chunk)
	a.True(chunk.IsPadding())
	a.True(chunk.verifyIntegrity())
}
