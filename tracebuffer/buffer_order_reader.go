package tracebuffer

// This file is the outer walk of spec.md §4.5: BeginRead resets the cursor
// to the oldest chunk in buffer order (the write cursor, since the ring is
// a FIFO), and ReadNextTracePacket alternates between advancing that cursor
// and driving whichever sequence reader is active at the chunk it's on.

// BeginRead resets the read cursor to the oldest chunk in the ring and
// bumps the read generation, so sequences that proved unreadable
// (NOT_ENOUGH_DATA) in a previous cycle get one more chance this cycle.
func (tb *TraceBuffer) BeginRead() {
	tb.readCursor = tb.wr
	tb.readGeneration++
}

// ReadNextTracePacket returns the next reassembled packet in buffer order,
// or false once the whole ring has been scanned without finding one
// (spec.md §4.1, §4.5). Each call does at most the work needed to produce
// one packet or prove none is currently available.
func (tb *TraceBuffer) ReadNextTracePacket() (Packet, bool) {
	scanned := uint32(0)

	for scanned < tb.size {
		chunk := tb.chunkAt(tb.readCursor)

		if chunk.IsPadding() {
			advance := chunk.OuterSize()
			tb.advanceReadCursor(advance)
			scanned += advance
			continue
		}

		seq := tb.sequenceFor(chunk.SequenceKey)
		if seq.SkipGeneration == tb.readGeneration {
			advance := chunk.OuterSize()
			tb.advanceReadCursor(advance)
			scanned += advance
			continue
		}

		pkt, yielded, _ := tb.sequenceReadStep(seq, chunk.Offset, false)
		if yielded {
			return pkt, true
		}
		// Not yielded: either the sequence reader reached this chunk and
		// found nothing more to give (exhausted), or it stalled
		// (NOT_ENOUGH_DATA) on an earlier chunk of the same sequence
		// without ever reaching this one — either way there is nothing
		// more to extract from this ring position this generation, so
		// move on; BeginRead's generation bump lets a later cycle retry.
		advance := chunk.OuterSize()
		tb.advanceReadCursor(advance)
		scanned += advance
	}

	return Packet{}, false
}

func (tb *TraceBuffer) advanceReadCursor(n uint32) {
	tb.readCursor += n
	if tb.readCursor >= tb.size {
		tb.readCursor -= tb.size
	}
}
