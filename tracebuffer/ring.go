package tracebuffer

// This file owns the ring's byte-level mechanics: the write cursor, padding,
// wraparound, and the overwrite-eviction sweep of spec.md §4.3. Chunks tile
// the ring without gaps (invariant 1), so a chunk's own Offset plus its
// OuterSize() is always the next chunk's Offset — the ring never needs a
// separate ordered index of chunk positions, just the offset-keyed map.

// payloadBytes returns the live window of chunk's declared capacity. It is
// always chunk.Size bytes regardless of PayloadSize, so callers slice it
// down to [0:PayloadSize] or [ConsumedTail():PayloadSize] themselves.
func (tb *TraceBuffer) payloadBytes(chunk *TBChunk) []byte {
	start := chunk.Offset + chunkHeaderSize
	return tb.buf[start : start+chunk.Size]
}

func (tb *TraceBuffer) writePayload(offset uint32, data []byte) {
	start := offset + chunkHeaderSize
	copy(tb.buf[start:start+uint32(len(data))], data)
}

// chunkAt fetches the chunk whose header starts at offset, panicking (via
// the fatal-programmer-error path) if the ring's own bookkeeping doesn't
// have one there — spec.md §3 invariant 1 guarantees every offset in
// [0, buffer_size) belongs to exactly one chunk, so a miss here means the
// core's internal state, not untrusted input, is broken.
func (tb *TraceBuffer) chunkAt(offset uint32) *TBChunk {
	c, ok := tb.chunks[offset]
	if !ok {
		tb.panicCorrupt("no chunk indexed at ring offset %d", offset)
	}
	return c
}

// installPadding places a fresh padding chunk at offset covering size bytes
// (header included), overwriting whatever map entry (if any) was there.
func (tb *TraceBuffer) installPadding(offset, size uint32) {
	tb.chunks[offset] = newPaddingChunk(offset, size)
}

// reserve finds room for a chunk of outer size n, wrapping and evicting as
// needed (spec.md §4.3), and returns the offset the new chunk should be
// installed at. ok is false if the DISCARD policy has latched discardWrites
// permanently, either already or as a result of this call's wrap attempt.
func (tb *TraceBuffer) reserve(n uint32) (offset uint32, ok bool) {
	if tb.discardWrites {
		return 0, false
	}

	if tb.wr+n > tb.size {
		if padSize := tb.size - tb.wr; padSize > 0 {
			if _, indexed := tb.chunks[tb.wr]; indexed {
				tb.evictRange(tb.wr, padSize)
			}
			tb.installPadding(tb.wr, padSize)
			tb.Stats.PaddingBytesWritten.Add(uint64(padSize))
		}
		if tb.policy == policyDiscard {
			tb.discardWrites = true
			return 0, false
		}
		tb.wr = 0
		tb.wrapped = true
		tb.highWatermark = tb.size
		tb.Stats.WriteWrapCount.Add(1)
	}

	offset = tb.wr
	tb.evictRange(offset, n)
	tb.wr += n
	if !tb.wrapped && tb.wr > tb.highWatermark {
		tb.highWatermark = tb.wr
	}
	return offset, true
}

// evictRange clears room for an incoming chunk of n bytes starting at
// start, per spec.md §4.3: live chunks in the range are run through the
// sequence reader in erase mode (accounting for any unread fragments as
// data loss) before being reclaimed; already-padding chunks are skipped;
// and if the range ends inside a chunk, the remainder becomes a new,
// smaller padding chunk.
func (tb *TraceBuffer) evictRange(start, n uint32) {
	pos := start
	remaining := n
	for remaining > 0 {
		chunk := tb.chunkAt(pos)
		outer := chunk.OuterSize()

		if !chunk.IsPadding() {
			tb.eraseChunkForEviction(chunk)
			// eraseChunkForEviction may have turned chunk into padding
			// in place; re-fetch to act on current state.
			chunk = tb.chunkAt(pos)
		}

		if outer <= remaining {
			delete(tb.chunks, pos)
			pos += outer
			remaining -= outer
		} else {
			tailOffset := pos + remaining
			tailSize := outer - remaining
			delete(tb.chunks, pos)
			tb.installPadding(tailOffset, tailSize)
			remaining = 0
		}
	}
	tb.installPadding(start, n)
}
