package tracebuffer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

// randomWholeChunkRun commits n single-WHOLE-fragment chunks of random size
// to tb from a fixed-seed PRNG, then reads everything back and asserts the
// invariants that must hold regardless of how much wraparound eviction
// occurred: packets come back in ascending chunk_id order, and every
// surviving packet's bytes exactly match what was sent under that chunk_id.
func randomWholeChunkRun(t *testing.T, tb *TraceBuffer, key SequenceKey, seed int64, n int) {
	a := assert.New(t)
	rng := rand.New(rand.NewSource(seed))

	sent := make(map[uint32][]byte, n)
	for id := uint32(0); id < uint32(n); id++ {
		size := rng.Intn(256) + 1
		data := make([]byte, size)
		for j := range data {
			data[j] = byte(rng.Intn(256))
		}
		sent[id] = data
		tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, id, 1, 0, true, fragmentBytes(data))
	}

	tb.BeginRead()
	var lastID int64 = -1
	count := 0
	for {
		pkt, ok := tb.ReadNextTracePacket()
		if !ok {
			break
		}
		count++
		// Find which chunk_id produced this payload by matching bytes back
		// against the sent map; ring offsets don't carry chunk_id to the
		// caller, so exact-match is the only way to identify it here.
		matched := false
		for id, want := range sent {
			if string(want) == string(pkt.Data) {
				a.GreaterOrEqual(int64(id), lastID, "packets must come back in non-decreasing chunk_id order")
				lastID = int64(id)
				matched = true
				break
			}
		}
		a.True(matched, "every surviving packet's bytes must match some chunk this run sent")
	}
	a.Greater(count, 0, "at least the most recently written chunks must survive")
	a.LessOrEqual(count, n)
}

// TestFuzz_RandomWholeChunksSurviveWraparoundIntact hammers a small ring
// with more data than it can hold, forcing repeated wraparound eviction,
// and checks every surviving packet is byte-for-byte what was sent.
func TestFuzz_RandomWholeChunksSurviveWraparoundIntact(t *testing.T) {
	tb, ok := Create(4096, EPolicy.Overwrite(), nil)
	assert.True(t, ok)
	randomWholeChunkRun(t, tb, SequenceKey{ProducerID: 1, WriterID: 1}, 42, 500)
}

// TestFuzz_ConcurrentProducerAndClonerAcrossIndependentBuffers runs two
// independent TraceBuffer instances concurrently: one goroutine commits a
// long random run of chunks to bufferA, while a second goroutine repeatedly
// writes a handful of chunks to its own bufferB and clones it mid-stream,
// verifying the clone's snapshot is self-consistent. Neither goroutine ever
// touches the other's buffer — the live core stays single-threaded per
// sequence (spec.md §5); what's under test is that two instances sharing
// only the package-level memory limiter behave correctly under real
// concurrency.
func TestFuzz_ConcurrentProducerAndClonerAcrossIndependentBuffers(t *testing.T) {
	defer SetMemoryLimit(0)

	var g errgroup.Group

	g.Go(func() error {
		tb, ok := Create(8192, EPolicy.Overwrite(), nil)
		if !ok {
			return assert.AnError
		}
		randomWholeChunkRun(t, tb, SequenceKey{ProducerID: 1, WriterID: 1}, 7, 800)
		return nil
	})

	g.Go(func() error {
		key := SequenceKey{ProducerID: 2, WriterID: 1}
		for round := 0; round < 50; round++ {
			tb, ok := Create(4096, EPolicy.Overwrite(), nil)
			if !ok {
				return assert.AnError
			}
			for id := uint32(0); id < 3; id++ {
				tb.CopyChunkUntrusted(key.ProducerID, "c", key.WriterID, id, 1, 0, true, fragmentBytes([]byte("abc")))
			}
			clone := tb.CloneReadOnly()
			if clone == nil {
				return assert.AnError
			}
			clone.BeginRead()
			got := 0
			for {
				_, ok2 := clone.ReadNextTracePacket()
				if !ok2 {
					break
				}
				got++
			}
			if got != 3 {
				return assert.AnError
			}
		}
		return nil
	})

	assert.NoError(t, g.Wait())
}
