package cram

import (
	"github.com/biogo/hts/sam"
)

// ReferenceProvider fetches reference bases for a sequence id. Implementations
// may cache the returned bytes; the driver never mutates them.
//
// This mirrors encoding/fasta.Fasta's Get/Len shape, specialized to
// sequence-id addressing instead of name addressing; FastaReferenceProvider
// (reference.go) bridges the two.
type ReferenceProvider interface {
	// GetReferenceBases returns the entire sequence for seqID.
	GetReferenceBases(seqID int) ([]byte, error)
}

// Sam2CramFactory converts one AlignmentRecord (*sam.Record) into a
// CompressionRecord. SeedReference must be called whenever the record's
// reference sequence differs from the one the factory was last seeded with
// (spec.md §4.5 step 4, for multi-reference slices).
type Sam2CramFactory interface {
	// SeedReference primes the factory with the bases of the reference the
	// next Convert call's record aligns to.
	SeedReference(seqID int, bases []byte)

	// Convert fills in a CompressionRecord's reference-relative fields from
	// rec. index is the 1-based position of rec within the batch.
	Convert(rec *sam.Record, index int) (*CompressionRecord, error)

	// Counters returns the running base_count/feature_count totals
	// accumulated across all Convert calls since the factory was created,
	// used for the HighMismatchWarning of spec.md §4.5 step 6.
	Counters() (baseCount, featureCount int)
}

// RoundTripChecker is the inverse of Sam2CramFactory, used by the paranoid
// round-trip check of spec.md §4.5 step 8 / §9. A Sam2CramFactory that also
// implements this interface supports Writer.ParanoidMode.
type RoundTripChecker interface {
	// Invert reconstructs the fields a round-trip check compares: alignment
	// start, reference name, read bases, and base qualities.
	Invert(cr *CompressionRecord) (alignmentStart int, refName string, bases string, quals string, err error)
}

// Slice is one slice of a Container; a slice groups compression records that
// share a reference-MD5 checksum.
type Slice struct {
	Records []*CompressionRecord
	RefMD5  [16]byte
}

// SetRefMD5 stamps the slice's reference-MD5 checksum from the bases the
// slice covers (spec.md §8 P6).
func (s *Slice) SetRefMD5(batchBases []byte) {
	s.RefMD5 = md5Sum(batchBases)
}

// Container groups one or more slices (slices_per_container defaults to 1,
// see BoundaryPolicy) and carries the byte offset it was written at.
type Container struct {
	Slices []*Slice
	Offset uint64
	// RefSeqID is the batch's ref_seq_index at the time it was sealed:
	// a real sequence id, RefSeqIDMultiple if the batch absorbed more than
	// one reference, or RefSeqIDNone if it held no aligned records at all.
	// The tri-state's internal sentinels (spec.md §9) are not reused here;
	// these are the index's own wire-facing constants.
	RefSeqID int
}

// RefSeqIDMultiple and RefSeqIDNone are Container.RefSeqID's sentinel values.
const (
	RefSeqIDNone     = -1
	RefSeqIDMultiple = -2
)

// ContainerBuilder packs a batch of CompressionRecords into a Container.
// ("build_container(records) -> Container" in spec.md §6.)
type ContainerBuilder interface {
	BuildContainer(records []*CompressionRecord) (*Container, error)
}

// ContainerIO serializes a Container to a sink and reports the number of
// bytes written, per spec.md §6.
type ContainerIO interface {
	WriteContainer(version string, c *Container, sink Sink) (bytesWritten uint64, err error)
}

// Sink is the minimal output-stream interface the driver writes the header
// prelude, containers, and EOF marker to.
type Sink interface {
	Write(p []byte) (n int, err error)
	Close() error
}

// IndexSink consumes sealed containers for the companion index. Finish is
// called once, from Writer.Finish.
type IndexSink interface {
	ProcessContainer(c *Container) error
	Finish() error
}

// noopIndexSink is used when the writer is not configured with an IndexSink.
type noopIndexSink struct{}

func (noopIndexSink) ProcessContainer(*Container) error { return nil }
func (noopIndexSink) Finish() error                     { return nil }
