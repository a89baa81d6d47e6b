package tracebuffer

import "encoding/binary"

// fragmentBytes encodes one varint-length-prefixed fragment, the wire shape
// spec.md §6 describes for a chunk's payload.
func fragmentBytes(data []byte) []byte {
	var header [binary.MaxVarintLen32]byte
	n := binary.PutUvarint(header[:], uint64(len(data)))
	out := make([]byte, 0, n+len(data))
	out = append(out, header[:n]...)
	out = append(out, data...)
	return out
}

// multiFragmentBytes concatenates several already-length-prefixed fragments
// into one chunk payload.
func multiFragmentBytes(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, fragmentBytes(p)...)
	}
	return out
}

// abortFragmentBytes encodes the writer-signalled packet-dropped sentinel
// (spec.md §6): the magic length 0xFFFFFFFF with no trailing data.
func abortFragmentBytes() []byte {
	var header [binary.MaxVarintLen32]byte
	n := binary.PutUvarint(header[:], fragmentAbortLength)
	return append([]byte{}, header[:n]...)
}

func repeatByte(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
