package tracebuffer

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/perfetto-go/tracebuffer/common"
)

// SequenceKey is the teacher's common.SequenceKey (producer_id, writer_id),
// reused as-is: it was already shaped exactly like spec.md §3's
// producer_writer_id composite key.
type SequenceKey = common.SequenceKey

// ErrAllocationFailed names the case where the requested ring size cannot
// be reserved (spec.md §7 "Resource exhaustion"). Create reports that case
// by returning (nil, false); it does not return this value.
var ErrAllocationFailed = errors.New("tracebuffer: allocation failed")

// ErrReadOnly is the §7 "Fatal programmer error" raised when a write is
// attempted against a clone. Per spec.md §5 ("their is_read_only flag makes
// further writes a fatal check") this is never returned to a caller that
// could recover from it. The read-only checks in CopyChunkUntrusted and
// TryPatchChunkContents panic via panicCorrupt with a message of their own
// rather than with this value, the same way the teacher's jobLogger.Panic
// treats a broken internal invariant.
var ErrReadOnly = errors.New("tracebuffer: write attempted against a read-only clone")

// ABIViolation is a recoverable error describing exactly which untrusted
// input was rejected, so tests can assert on the cause (spec.md §7
// "Recoverable ABI violation"). It is never returned across the public
// TraceBuffer boundary (CopyChunkUntrusted and TryPatchChunkContents have no
// error return, per spec.md §4.1 — "No return value; statistics reflect
// every outcome"); it exists purely so the internal call graph between
// ring.go/sequence.go/patch.go stays idiomatic Go, with the outcome folded
// into a stats counter at the point it's caught.
type ABIViolation struct {
	Reason     string
	ProducerID uint32
	WriterID   uint32
	ChunkID    uint32
	cause      error
}

func (e *ABIViolation) Error() string {
	return fmt.Sprintf("tracebuffer: abi violation (producer=%d writer=%d chunk=%d): %s",
		e.ProducerID, e.WriterID, e.ChunkID, e.Reason)
}

func (e *ABIViolation) Cause() error { return e.cause }
func (e *ABIViolation) Unwrap() error { return e.cause }

func newABIViolation(key SequenceKey, chunkID uint32, reason string) *ABIViolation {
	return &ABIViolation{
		Reason:     reason,
		ProducerID: key.ProducerID,
		WriterID:   key.WriterID,
		ChunkID:    chunkID,
		cause:      errors.Errorf("abi violation: %s", reason),
	}
}

// wrapf wraps err via github.com/pkg/errors' Wrapf (the package also calls
// errors.New/Errorf directly), mirroring the teacher's pervasive use of it
// across ste/ to attach context
// without losing the ability to errors.Cause() back to the sentinel.
func wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// errCorrupted and errTruncatedVarint name the tokenizer's failure cases;
// tokenizeFragments does not return them — it reports every such case
// through its corrupted result, which callers fold into the chunk's
// corrupted bit (spec.md §4.2).
var errCorrupted = errors.New("tracebuffer: corrupted fragment chain")
var errTruncatedVarint = errors.New("tracebuffer: truncated varint")
