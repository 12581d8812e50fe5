package cram

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// ErrHeaderAlreadyWritten is returned by WriteHeader when called more than
// once. spec.md's source material leaves this unguarded (a TODO in the
// original); this implementation requires exactly one call.
var ErrHeaderAlreadyWritten = errors.New("cram: WriteHeader called more than once")

// ErrHeaderNotYetWritten is returned by WriteAlignment and Finish when
// WriteHeader has not yet been called.
var ErrHeaderNotYetWritten = errors.New("cram: WriteAlignment called before WriteHeader")

// ErrLossyMultiRefNotSupported is returned when a track-requiring quality
// preservation policy is active on a batch that has become MULTI_REFERENCE.
var ErrLossyMultiRefNotSupported = errors.New("cram: quality preservation policy requires reference tracks, but the batch spans multiple references")

// ErrRoundTripMismatch is returned by the paranoid round-trip check
// (Writer.ParanoidMode) when a CompressionRecord fails to reproduce its
// source AlignmentRecord's core fields.
type ErrRoundTripMismatch struct {
	ReadName string
	Field    string
}

func (e *ErrRoundTripMismatch) Error() string {
	return fmt.Sprintf("cram: round-trip mismatch on read %q, field %q", e.ReadName, e.Field)
}

// ErrCaptureIgnoreTagsConflict is returned by WriteHeader when WriterOpts
// sets both CaptureTags and IgnoreTags: the two are mutually exclusive
// selection modes, not composable filters.
var ErrCaptureIgnoreTagsConflict = errors.New("cram: WriterOpts.CaptureTags and IgnoreTags are mutually exclusive")

// wrapSinkError wraps a sink I/O failure with the context of what was being
// written, in the errors.E(err, context...) style this tree uses for
// file/stream failures.
func wrapSinkError(err error, op string) error {
	return errors.E(err, "cram: sink", op)
}

// wrapReferenceFetchError wraps a ReferenceProvider failure.
func wrapReferenceFetchError(err error, seqID int) error {
	return errors.E(err, fmt.Sprintf("cram: fetch reference bases for sequence %d", seqID))
}
