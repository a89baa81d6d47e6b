// Copyright © 2017 Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SequenceKey identifies the (producer_id, writer_id) pair a stall was
// observed on, for correlation with the CSV dump below.
type SequenceKey struct {
	ProducerID uint32
	WriterID   uint32
}

var EStallReason = StallReason("")

// StallReason is why a sequence reader could not yield a packet this
// read generation. Adapted from the teacher's WaitReason (which tracked
// why a chunk's upload/download was stalled); the symbol set is specific
// to the TraceBuffer's own stall causes (spec.md §4.4).
type StallReason string

func (StallReason) NotEnoughData() StallReason { return StallReason("NotEnoughData") }
func (StallReason) NeedsPatch() StallReason     { return StallReason("NeedsPatch") }
func (StallReason) Incomplete() StallReason     { return StallReason("Incomplete") }

func (wr StallReason) String() string {
	return string(wr) // avoiding reflection here, for speed, since will be called a lot
}

// TODO: stop this using globals
var sw chan sequenceStall
const sequenceStallLogEnabled = true // TODO make this controllable by the embedding service

type sequenceStall struct {
	SequenceKey
	reason    StallReason
	stallStart time.Time
}

// LogSequenceStall records that a sequence reader gave up this read
// generation (§4.4's NOT_ENOUGH_DATA / needs_patch cases), for later CSV
// analysis of which writers are chronically slow to complete a chunk.
func LogSequenceStall(key SequenceKey, reason StallReason) {
	if !sequenceStallLogEnabled || sw == nil {
		// No StartSequenceStallLogger call for this process: stall logging
		// is opt-in, so silently drop rather than block on a nil channel.
		return
	}
	defer func() {
		if r := recover(); r != nil {
			// recover panic from writing to closed channel
			// May happen in early exit, when StopSequenceStallLogger is called before the last call to this routine
		}
	}()

	sw <- sequenceStall{SequenceKey: key, reason: reason, stallStart: time.Now()}
}

func StartSequenceStallLogger(logFolder string) {
	if !sequenceStallLogEnabled {
		return
	}
	sw = make(chan sequenceStall, 100000)
	go sequenceStallLogger(logFolder)
}

func StopSequenceStallLogger() {
	if !sequenceStallLogEnabled {
		return
	}
	close(sw)
	for len(sw) > 0 {
		time.Sleep(time.Second)
	}
}

func sequenceStallLogger(logFolder string) {
	f, err := os.Create(filepath.Join(logFolder, "sequencestalllog.csv")) // only saves the latest run, at present...
	if err != nil {
		panic(err.Error())
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	defer func() { _ = w.Flush() }()

	_, _ = w.WriteString("ProducerID,WriterID,Reason,StallStartTime\n")

	for x := range sw {
		_, _ = w.WriteString(fmt.Sprintf("%d,%d,%s,%s\n", x.ProducerID, x.WriterID, x.reason, x.stallStart))
	}
}
