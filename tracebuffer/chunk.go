package tracebuffer

import "hash/crc32"

// ChunkFlags mirrors the external shared-memory ABI's framing bits
// (spec.md §6) plus one flag synthesized internally by the core itself.
// Bit values 0x01/0x02/0x04 are fixed by that ABI and must never change;
// FlagIncomplete has no wire representation at all.
type ChunkFlags uint8

const (
	// FlagFirstPacketContinuesFromPrev: this chunk's first fragment is the
	// tail of a packet whose BEGIN fragment lives in an earlier chunk.
	FlagFirstPacketContinuesFromPrev ChunkFlags = 0x01
	// FlagLastPacketContinuesOnNext: this chunk's last fragment is the head
	// of a packet that continues into a later chunk.
	FlagLastPacketContinuesOnNext ChunkFlags = 0x02
	// FlagNeedsPatch: the chunk carries at least one outstanding patch
	// batch and must not be read until TryPatchChunkContents clears it.
	FlagNeedsPatch ChunkFlags = 0x04
	// FlagIncomplete is synthesized when a chunk is committed by scraping
	// while its producer is still mid-write (spec.md §3, §4.1). It has no
	// wire-level bit; it is purely a core-side bookkeeping flag.
	FlagIncomplete ChunkFlags = 0x08
)

func (f ChunkFlags) Has(bit ChunkFlags) bool { return f&bit != 0 }

func (f ChunkFlags) String() string {
	if f == 0 {
		return "none"
	}
	s := ""
	add := func(bit ChunkFlags, name string) {
		if f.Has(bit) {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	add(FlagFirstPacketContinuesFromPrev, "first_continues")
	add(FlagLastPacketContinuesOnNext, "last_continues")
	add(FlagNeedsPatch, "needs_patch")
	add(FlagIncomplete, "incomplete")
	return s
}

// chunkHeaderSize is the size, in bytes, that every TBChunk reserves inline
// in the ring ahead of its payload. spec.md §9 picks the header's own size
// as the chunk alignment ("16 bytes in the reference implementation") so
// that neighbouring headers always land on an aligned offset; our header
// widens that slightly to carry Go-native 32-bit fields, so it is rounded
// up to the next multiple of chunkAlignment instead of being exactly one
// alignment unit.
const (
	chunkAlignment  = 16
	chunkHeaderSize = 32 // multiple of chunkAlignment, see alignUp
)

func alignUp(n, alignment uint32) uint32 {
	if r := n % alignment; r != 0 {
		n += alignment - r
	}
	return n
}

// outerSize is the total ring footprint (header + aligned payload capacity)
// of a chunk whose declared payload capacity is capacity bytes.
func outerSize(capacity uint32) uint32 {
	return chunkHeaderSize + alignUp(capacity, chunkAlignment)
}

// TBChunk is the in-ring descriptor for one producer-written chunk, or for
// a padding placeholder (spec.md §3). It is addressed by byte offset, never
// by pointer, so that CloneReadOnly can copy the whole index with a flat
// copy and no pointer fixup (spec.md §9 "Shared offsets, not pointers").
type TBChunk struct {
	Offset uint32 // byte offset of this chunk's header in the ring
	Size   uint32 // declared payload capacity, fixed at creation

	PayloadSize  uint32 // bytes of valid tokenized fragment data, <= Size
	PayloadAvail uint32 // bytes not yet consumed, <= PayloadSize

	ChunkID uint32 // writer-assigned, compared with modular arithmetic
	SequenceKey        // ProducerID/WriterID; zero value marks padding

	Flags        ChunkFlags
	IntegrityTag uint32

	// Corrupted is set by the tokenizer (never by untrusted input
	// directly) when a fragment chain fails to parse; it is a core-side
	// bookkeeping bit, not part of Flags, because it is recomputed every
	// tokenization pass rather than persisted across recommits.
	Corrupted bool
}

// IsPadding reports whether this chunk is a placeholder: spec.md §3 "value
// zero marks the chunk as padding (no sequence, skipped on read, safe to
// clobber)".
func (c *TBChunk) IsPadding() bool {
	return c.ProducerID == 0 && c.WriterID == 0
}

// ConsumedTail is the byte offset, within the payload, of the next
// not-yet-read fragment header (spec.md §3).
func (c *TBChunk) ConsumedTail() uint32 {
	return c.PayloadSize - c.PayloadAvail
}

// OuterSize is this chunk's total footprint in the ring. Padding chunks are
// special: installPadding stores the full outer span (header included) in
// Size directly, since padding has no header/payload split worth aligning,
// so OuterSize must return it unmodified rather than re-deriving a header
// plus an aligned-up payload from it (spec.md §3 invariant 1, sum(outer_size)
// == buffer_size).
func (c *TBChunk) OuterSize() uint32 {
	if c.IsPadding() {
		return c.Size
	}
	return outerSize(c.Size)
}

// computeIntegrityTag derives the cheap checksum spec.md §9 describes as
// "computed from (offset, size)" — a programmer-error detector, never a
// function of untrusted payload bytes, so a producer can never forge one
// by controlling chunk contents.
func computeIntegrityTag(offset, size uint32) uint32 {
	var buf [8]byte
	buf[0] = byte(offset)
	buf[1] = byte(offset >> 8)
	buf[2] = byte(offset >> 16)
	buf[3] = byte(offset >> 24)
	buf[4] = byte(size)
	buf[5] = byte(size >> 8)
	buf[6] = byte(size >> 16)
	buf[7] = byte(size >> 24)
	return crc32.ChecksumIEEE(buf[:])
}

// checkIntegrityTags gates the recheck described in spec.md §9's last
// bullet ("leave it enabled in production until the implementation is
// mature, then demote to debug builds"). This implementation has not made
// that call yet, so it stays on unconditionally (see SPEC_FULL.md §2.1).
var checkIntegrityTags = true

// verifyIntegrity reports whether the chunk's tag still matches its own
// offset/size; callers panic via panicCorrupt (buffer.go) when it does not,
// since per spec.md §7 a mismatch always indicates the core's own state is
// corrupt, never untrusted input.
func (c *TBChunk) verifyIntegrity() bool {
	if !checkIntegrityTags {
		return true
	}
	return c.IntegrityTag == computeIntegrityTag(c.Offset, c.Size)
}

func newPaddingChunk(offset, size uint32) *TBChunk {
	c := &TBChunk{
		Offset: offset,
		Size:   size,
	}
	c.IntegrityTag = computeIntegrityTag(offset, size)
	return c
}
