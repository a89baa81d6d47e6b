package tracebuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlignUp(t *testing.T) {
	a := assert.New(t)
	a.EqualValues(0, alignUp(0, 16))
	a.EqualValues(16, alignUp(1, 16))
	a.EqualValues(16, alignUp(16, 16))
	a.EqualValues(32, alignUp(17, 16))
}

func TestOuterSize(t *testing.T) {
	a := assert.New(t)
	a.EqualValues(chunkHeaderSize, outerSize(0))
	a.EqualValues(chunkHeaderSize+16, outerSize(1))
	a.EqualValues(chunkHeaderSize+1024, outerSize(1024))
}

func TestChunkFlags(t *testing.T) {
	a := assert.New(t)
	f := FlagFirstPacketContinuesFromPrev | FlagNeedsPatch
	a.True(f.Has(FlagFirstPacketContinuesFromPrev))
	a.True(f.Has(FlagNeedsPatch))
	a.False(f.Has(FlagLastPacketContinuesOnNext))
	a.Contains(f.String(), "first_continues")
	a.Contains(f.String(), "needs_patch")
}

func TestIsPadding(t *testing.T) {
	a := assert.New(t)
	pad := newPaddingChunk(0, 128)
	a.True(pad.IsPadding())

	live := &TBChunk{SequenceKey: SequenceKey{ProducerID: 1, WriterID: 2}}
	a.False(live.IsPadding())
}

func TestConsumedTail(t *testing.T) {
	a := assert.New(t)
	c := &TBChunk{PayloadSize: 100, PayloadAvail: 40}
	a.EqualValues(60, c.ConsumedTail())
}

func TestVerifyIntegrity(t *testing.T) {
	a := assert.New(t)
	c := newPaddingChunk(64, 32)
	a.True(c.verifyIntegrity())

	c.Offset = 128 // simulate a corrupted/relocated descriptor
	a.False(c.verifyIntegrity())
}
