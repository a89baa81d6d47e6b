package tracebuffer

import "encoding/binary"

// FragmentType classifies a tokenized fragment's role in packet reassembly
// (spec.md §3 "Fragment").
type FragmentType uint8

const (
	FragmentWhole FragmentType = iota
	FragmentBegin
	FragmentContinue
	FragmentEnd
)

func (t FragmentType) String() string {
	switch t {
	case FragmentWhole:
		return "WHOLE"
	case FragmentBegin:
		return "BEGIN"
	case FragmentContinue:
		return "CONTINUE"
	case FragmentEnd:
		return "END"
	default:
		return "UNKNOWN"
	}
}

// fragmentAbortLength is the writer-signalled "packet dropped" sentinel
// (spec.md §6): a legitimate producer-side abort, never an ABI violation.
const fragmentAbortLength = 0xFFFFFFFF

// Fragment is one length-prefixed slice inside a chunk's payload.
// Offset/HeaderLen/Length are all relative to the start of that payload.
type Fragment struct {
	Type      FragmentType
	Offset    uint32 // where the fragment's data bytes begin
	HeaderLen uint32 // width, in bytes, of its varint length prefix
	Length    uint32 // data byte count
}

// TotalSize is the fragment's full footprint, header included.
func (f Fragment) TotalSize() uint32 { return f.HeaderLen + f.Length }

// tokenizeFragments walks up to numFragments varint-prefixed fragments out
// of payload[:limit] (spec.md §4.2). It never reads past limit and never
// mutates the chunk; the caller folds the outcome into chunk state and
// statistics.
//
// Returns the tokenized fragments, the number of bytes actually consumed
// (the "effective payload size" of spec.md §4.1), whether a writer-signalled
// abort was hit, and whether the chain was corrupted (truncated varint,
// overflow, or a fragment that would overrun limit).
func tokenizeFragments(payload []byte, limit uint32, numFragments uint32, flags ChunkFlags) (fragments []Fragment, consumed uint32, aborted bool, corrupted bool) {
	if uint32(len(payload)) < limit {
		limit = uint32(len(payload))
	}

	var offset uint32
	type raw struct {
		headerLen uint32
		length    uint32
	}
	raws := make([]raw, 0, numFragments)

	for i := uint32(0); i < numFragments; i++ {
		if offset >= limit {
			break
		}
		val, n := binary.Uvarint(payload[offset:limit])
		if n <= 0 {
			// n == 0: need more bytes than are available (truncated).
			// n < 0:  value overflowed 64 bits (more than 10 bytes).
			corrupted = true
			break
		}
		if val == fragmentAbortLength {
			aborted = true
			break
		}
		if val > fragmentAbortLength-1 {
			// Doesn't fit a 32-bit length and isn't the magic sentinel.
			corrupted = true
			break
		}
		headerLen := uint32(n)
		length := uint32(val)
		if offset+headerLen+length > limit || offset+headerLen+length < offset {
			corrupted = true
			break
		}
		raws = append(raws, raw{headerLen: headerLen, length: length})
		offset += headerLen + length
	}

	n := len(raws)
	fragments = make([]Fragment, n)
	runningOffset := uint32(0)
	for i, r := range raws {
		isFirst := i == 0
		isLast := i == n-1
		var ft FragmentType
		switch {
		case isFirst && isLast && flags.Has(FlagFirstPacketContinuesFromPrev) && flags.Has(FlagLastPacketContinuesOnNext):
			ft = FragmentContinue
		case isFirst && flags.Has(FlagFirstPacketContinuesFromPrev):
			ft = FragmentEnd
		case isLast && flags.Has(FlagLastPacketContinuesOnNext):
			ft = FragmentBegin
		default:
			ft = FragmentWhole
		}
		fragments[i] = Fragment{
			Type:      ft,
			Offset:    runningOffset + r.headerLen,
			HeaderLen: r.headerLen,
			Length:    r.length,
		}
		runningOffset += r.headerLen + r.length
	}

	return fragments, offset, aborted, corrupted
}
