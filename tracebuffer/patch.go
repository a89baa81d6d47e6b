package tracebuffer

// TryPatchChunkContents implements spec.md §4.1's deferred size back-patch:
// the producer commits a chunk with needs_patch set, then later overwrites
// one 4-byte size header once the packet's true length is known. Patches
// almost always target the most-recent chunk, so the chunk list is walked
// backwards (newest first) rather than forwards.
func (tb *TraceBuffer) TryPatchChunkContents(
	producerID uint32,
	writerID uint32,
	chunkID uint32,
	patches []Patch,
	otherPatchesPending bool,
) bool {
	if tb.readOnly {
		tb.panicCorrupt("patch attempted against a read-only clone")
	}
	key := SequenceKey{ProducerID: producerID, WriterID: writerID}
	seq, ok := tb.sequences[key]
	if !ok {
		tb.Stats.PatchesFailed.Add(1)
		return false
	}

	var chunk *TBChunk
	for i := len(seq.Entries) - 1; i >= 0; i-- {
		if seq.Entries[i].ChunkID == chunkID {
			chunk = tb.chunkAt(seq.Entries[i].Offset)
			break
		}
	}
	if chunk == nil {
		tb.Stats.PatchesFailed.Add(1)
		return false
	}

	tail := chunk.ConsumedTail()
	for _, p := range patches {
		if p.Offset+4 > chunk.PayloadSize || p.Offset < tail {
			tb.Stats.PatchesFailed.Add(1)
			return false
		}
	}

	for _, p := range patches {
		tb.writePayload(chunk.Offset+p.Offset, p.Data[:])
	}

	if !otherPatchesPending {
		chunk.Flags &^= FlagNeedsPatch
	}

	tb.Stats.PatchesSucceeded.Add(1)
	return true
}

// Patch is one `{offset_untrusted, data}` entry of a patch batch (spec.md
// §6): the offset is always treated as untrusted, data is the fixed 4-byte
// packet-size header the external shared-memory ABI back-patches.
type Patch struct {
	Offset uint32
	Data   [4]byte
}
