package tracebuffer

import "github.com/perfetto-go/tracebuffer/common"

// This file is the inner walk of spec.md §4.4: per-sequence FIFO
// reassembly, run in one of two modes against a sequence's oldest-to-newest
// chunk list (seq.Entries). "read" mode is driven one packet at a time by
// buffer_order_reader.go; "erase" mode is driven to completion in one call
// by ring.go's evictRange, since it never has to pause to hand a packet
// back to a caller.

// Packet is one reassembled trace packet handed back by ReadNextTracePacket.
type Packet struct {
	Data []byte
	Sequence SequenceKey
	// PreviousDropped mirrors spec.md §4.1's out_previous_dropped: set when
	// this sequence lost data since the last packet it yielded.
	PreviousDropped bool
}

const (
	reassembleResultSuccess = iota
	reassembleResultNotEnoughData
	reassembleResultDataLoss
)

// eraseChunkForEviction runs the sequence reader, in erase mode, targeting
// chunk — cascading back through any older not-yet-consumed chunks of the
// same sequence first (spec.md §4.4: "Rewind to the first chunk in the
// target's SequenceState chunk list"). It always completes in one call:
// erase mode never stalls, it only ever accepts data loss and moves on.
func (tb *TraceBuffer) eraseChunkForEviction(chunk *TBChunk) {
	seq := tb.sequenceFor(chunk.SequenceKey)
	if len(seq.Entries) == 0 {
		// Nothing indexed for this sequence (shouldn't happen for a live,
		// non-padding chunk, but tolerate it defensively): just fold this
		// one chunk's unread bytes into loss and move on.
		tb.Stats.ChunksOverwritten.Add(1)
		tb.Stats.BytesOverwritten.Add(uint64(chunk.PayloadAvail))
		tb.turnIntoPadding(chunk)
		return
	}
	for {
		_, _, reachedTarget := tb.sequenceReadStep(seq, chunk.Offset, true)
		if reachedTarget {
			return
		}
		if len(seq.Entries) == 0 {
			return
		}
	}
}

// sequenceReadStep advances at most as far as needed to either yield one
// packet (read mode) or determine the sequence is stalled/exhausted, then
// returns. It always operates on seq.Entries[0], relying on the chunk's own
// PayloadAvail to remember how far a previous call got.
func (tb *TraceBuffer) sequenceReadStep(seq *SequenceState, targetOffset uint32, erase bool) (pkt Packet, yielded bool, reachedTarget bool) {
	for {
		if len(seq.Entries) == 0 {
			return Packet{}, false, true
		}
		if erase {
			if c, ok := tb.chunks[targetOffset]; !ok || c.IsPadding() {
				return Packet{}, false, true
			}
		}

		front := seq.Entries[0]
		chunk := tb.chunkAt(front.Offset)
		if !chunk.verifyIntegrity() {
			tb.panicCorrupt("integrity tag mismatch at ring offset %d", front.Offset)
		}

		if chunk.Flags.Has(FlagNeedsPatch) && !erase {
			common.LogSequenceStall(chunk.SequenceKey, common.EStallReason.NeedsPatch())
			return Packet{}, false, chunk.Offset == targetOffset
		}

		tail := chunk.ConsumedTail()
		frags, _, aborted, corrupted := tokenizeFragments(
			tb.payloadBytes(chunk)[tail:chunk.PayloadSize],
			chunk.PayloadSize-tail,
			^uint32(0),
			chunk.Flags,
		)
		chunk.Corrupted = corrupted
		if aborted {
			tb.Stats.TraceWriterPacketLoss.Add(1)
		}

		if len(frags) == 0 {
			isTarget := chunk.Offset == targetOffset
			if chunk.Flags.Has(FlagIncomplete) && !erase {
				common.LogSequenceStall(chunk.SequenceKey, common.EStallReason.Incomplete())
				return Packet{}, false, isTarget
			}
			tb.retireChunk(seq, chunk, erase)
			if isTarget {
				return Packet{}, false, true
			}
			continue
		}

		f := frags[0]

		switch f.Type {
		case FragmentWhole:
			tb.recordFragmentStats(chunk.SequenceKey, f)
			data := tb.copyFragmentBytes(chunk, tail, f)
			tb.consumeFragmentBytes(chunk, f)
			isTarget := chunk.Offset == targetOffset
			tb.maybeRetireAfterConsume(seq, erase)
			if erase || f.Length == 0 {
				if erase && f.Length > 0 {
					seq.DataLoss = true
				}
				continue
			}
			return tb.buildPacket(seq, data), true, isTarget

		case FragmentBegin:
			result, data, spannedTarget := tb.reassembleBegin(seq, targetOffset, erase)
			switch result {
			case reassembleResultSuccess:
				if erase {
					tb.Stats.ReadaheadsSucceeded.Add(1)
					seq.DataLoss = true
					continue
				}
				tb.Stats.ReadaheadsSucceeded.Add(1)
				return tb.buildPacket(seq, data), true, spannedTarget
			case reassembleResultNotEnoughData:
				if erase {
					// Shouldn't normally occur (erase always resolves via
					// success or data loss), but guard it the same way.
					seq.DataLoss = true
					tb.consumeFragmentBytes(chunk, f)
					tb.maybeRetireAfterConsume(seq, erase)
					continue
				}
				tb.Stats.ReadaheadsFailed.Add(1)
				common.LogSequenceStall(chunk.SequenceKey, common.EStallReason.NotEnoughData())
				seq.SkipGeneration = tb.readGeneration
				return Packet{}, false, true
			case reassembleResultDataLoss:
				seq.DataLoss = true
				tb.consumeFragmentBytes(chunk, f)
				tb.maybeRetireAfterConsume(seq, erase)
				continue
			}

		case FragmentContinue, FragmentEnd:
			// The BEGIN fragment for this packet was already lost.
			seq.DataLoss = true
			tb.consumeFragmentBytes(chunk, f)
			tb.maybeRetireAfterConsume(seq, erase)
			continue
		}
	}
}

// reassembleBegin walks forward from the current BEGIN fragment collecting
// CONTINUE fragments and a terminating END, without mutating any chunk
// until SUCCESS is certain — so a NOT_ENOUGH_DATA outcome leaves every
// chunk exactly as it was, ready to be retried after the next BeginRead.
func (tb *TraceBuffer) reassembleBegin(seq *SequenceState, targetOffset uint32, erase bool) (result int, data []byte, reachedTarget bool) {
	type touched struct {
		chunk *TBChunk
		frag  Fragment
	}

	leadChunk := tb.chunkAt(seq.Entries[0].Offset)
	leadTail := leadChunk.ConsumedTail()
	leadFrags, _, _, leadCorrupted := tokenizeFragments(
		tb.payloadBytes(leadChunk)[leadTail:leadChunk.PayloadSize],
		leadChunk.PayloadSize-leadTail,
		^uint32(0),
		leadChunk.Flags,
	)
	if leadCorrupted || len(leadFrags) == 0 {
		return reassembleResultDataLoss, nil, false
	}
	begin := leadFrags[0]

	var parts [][]byte
	var touches []touched
	parts = append(parts, tb.copyFragmentBytes(leadChunk, leadTail, begin))
	touches = append(touches, touched{leadChunk, begin})
	reachedTarget = leadChunk.Offset == targetOffset

	for idx := 1; ; idx++ {
		if idx >= len(seq.Entries) {
			if erase {
				return reassembleResultDataLoss, nil, reachedTarget
			}
			return reassembleResultNotEnoughData, nil, reachedTarget
		}
		e := seq.Entries[idx]
		chunk := tb.chunkAt(e.Offset)
		if chunk.Flags.Has(FlagIncomplete) || chunk.Flags.Has(FlagNeedsPatch) {
			if erase {
				return reassembleResultDataLoss, nil, reachedTarget
			}
			return reassembleResultNotEnoughData, nil, reachedTarget
		}
		if !chunk.verifyIntegrity() {
			tb.panicCorrupt("integrity tag mismatch at ring offset %d", chunk.Offset)
		}

		frags, _, _, corrupted := tokenizeFragments(tb.payloadBytes(chunk)[:chunk.PayloadSize], chunk.PayloadSize, ^uint32(0), chunk.Flags)
		if corrupted || len(frags) == 0 {
			return reassembleResultDataLoss, nil, reachedTarget
		}
		reachedTarget = reachedTarget || chunk.Offset == targetOffset

		for _, f := range frags {
			switch f.Type {
			case FragmentContinue:
				parts = append(parts, tb.copyFragmentBytes(chunk, 0, f))
				touches = append(touches, touched{chunk, f})
			case FragmentEnd:
				parts = append(parts, tb.copyFragmentBytes(chunk, 0, f))
				touches = append(touches, touched{chunk, f})
				for _, t := range touches {
					tb.recordFragmentStats(t.chunk.SequenceKey, t.frag)
					tb.consumeFragmentBytes(t.chunk, t.frag)
				}
				tb.maybeRetireAfterConsume(seq, erase)
				total := 0
				for _, p := range parts {
					total += len(p)
				}
				buf := make([]byte, 0, total)
				for _, p := range parts {
					buf = append(buf, p...)
				}
				return reassembleResultSuccess, buf, reachedTarget
			default:
				// A WHOLE or BEGIN arrived where a CONTINUE/END was
				// expected: the chain is broken.
				return reassembleResultDataLoss, nil, reachedTarget
			}
		}
	}
}

func (tb *TraceBuffer) consumeFragmentBytes(chunk *TBChunk, f Fragment) {
	chunk.PayloadAvail -= f.TotalSize()
}

// maybeRetireAfterConsume retires the sequence's current front chunk if
// consumption has drained it and it isn't incomplete.
func (tb *TraceBuffer) maybeRetireAfterConsume(seq *SequenceState, erase bool) {
	if len(seq.Entries) == 0 {
		return
	}
	chunk := tb.chunkAt(seq.Entries[0].Offset)
	if chunk.PayloadAvail == 0 && !chunk.Flags.Has(FlagIncomplete) {
		tb.retireChunk(seq, chunk, erase)
	}
}

// retireChunk turns a fully-consumed live chunk into padding, pops it from
// its sequence's Entries (it must be the current front), and updates the
// sequence's last-consumed bookkeeping.
func (tb *TraceBuffer) retireChunk(seq *SequenceState, chunk *TBChunk, erase bool) {
	if erase {
		tb.Stats.ChunksOverwritten.Add(1)
		tb.Stats.BytesOverwritten.Add(uint64(chunk.PayloadAvail))
	} else {
		tb.Stats.ChunksRead.Add(1)
		tb.Stats.BytesRead.Add(uint64(chunk.PayloadSize))
	}

	seq.HasLastConsumed = true
	seq.LastChunkIDConsumed = chunk.ChunkID

	if len(seq.Entries) > 0 && seq.Entries[0].Offset == chunk.Offset {
		seq.Entries = seq.Entries[1:]
		if len(seq.Entries) == 0 {
			seq.Entries = nil
			tb.noteSequenceEmpty(seq.Key)
		}
	}

	tb.turnIntoPadding(chunk)
}

// turnIntoPadding clears a chunk's sequence ownership in place, leaving it
// at the same ring offset and covering the same byte range; Size is
// rewritten to the full header-included outer span, as for every padding
// chunk (spec.md §3 "finally overwritten by a new chunk on wraparound" —
// the byte range itself isn't reclaimed here, only relabeled; the next
// writer to reach this offset overwrites it).
func (tb *TraceBuffer) turnIntoPadding(chunk *TBChunk) {
	chunk.Size = chunk.OuterSize()
	chunk.SequenceKey = SequenceKey{}
	chunk.Flags = 0
	chunk.PayloadSize = 0
	chunk.PayloadAvail = 0
	chunk.ChunkID = 0
	chunk.Corrupted = false
	chunk.IntegrityTag = computeIntegrityTag(chunk.Offset, chunk.Size)
}

// copyFragmentBytes copies one fragment's data bytes out of chunk's payload.
// f.Offset is relative to whatever slice tokenizeFragments was handed, which
// for a sequence's front chunk is tail-relative (sequenceReadStep/
// reassembleBegin tokenize payload[tail:PayloadSize] to skip already-consumed
// fragments), so tail must be added back in here to land on the right bytes.
// Continuation chunks are tokenized from the full payload (tail 0).
func (tb *TraceBuffer) copyFragmentBytes(chunk *TBChunk, tail uint32, f Fragment) []byte {
	start := tail + f.Offset
	src := tb.payloadBytes(chunk)[start : start+f.Length]
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

func (tb *TraceBuffer) recordFragmentStats(key SequenceKey, f Fragment) {
	tb.Stats.recordFragmentSize(key, f.Length)
}

// buildPacket finalizes a reassembled (or single-WHOLE) packet, surfacing
// and then clearing the sequence's pending data-loss flag (spec.md §4.1
// "reset after reporting").
func (tb *TraceBuffer) buildPacket(seq *SequenceState, data []byte) Packet {
	pkt := Packet{
		Data:            data,
		Sequence:        seq.Key,
		PreviousDropped: seq.DataLoss,
	}
	seq.DataLoss = false
	return pkt
}
