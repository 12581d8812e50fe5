package cram

import "github.com/biogo/hts/sam"

// CompressionRecord is the reference-relative intermediate form of one
// AlignmentRecord (a *sam.Record) inside a single batch. It is produced by a
// Sam2CramFactory and consumed by a ContainerBuilder.
//
// previous/next form an acyclic forest scoped to the current batch: if
// r.next == s then s.previous == r, and both share ReadName/Secondary. The
// forest records which records can be reconstructed implicitly from their
// mate at decode time; Detached records carry every field explicitly instead.
type CompressionRecord struct {
	// Index is this record's 1-based position within the batch.
	Index int

	AlignmentStart int
	// AlignmentDelta is AlignmentStart minus the previous record's
	// AlignmentStart within the batch; the first record's delta is 0.
	AlignmentDelta int
	TemplateSize   int

	ReadName    string
	Secondary   bool
	MultiSegment bool
	FirstSegment bool
	LastSegment  bool

	// RecordsToNextFragment is the count of records strictly between this
	// one and Next within the batch, or -1 if there is no linked Next.
	RecordsToNextFragment int

	Detached             bool
	HasMateDownstream    bool
	ForcePreserveQualityScores bool

	// Next/Previous link mate records within the batch. They are nil
	// outside of it; a systems implementation would store these as
	// optional indices into a flat batch arena rather than pointers, see
	// DESIGN.md.
	Next     *CompressionRecord
	Previous *CompressionRecord

	// QualityScores is the (possibly masked) per-base quality array handed
	// to the ContainerBuilder. A masked position holds MaskedQualitySentinel.
	QualityScores []byte

	// BaseCount and FeatureCount are running per-record counters a
	// Sam2CramFactory maintains so the driver can issue the
	// HighMismatchWarning of spec.md's step 6.
	BaseCount    int
	FeatureCount int

	// Tags is the subset of the source record's auxiliary fields selected by
	// WriterOpts.CaptureAllTags/CaptureTags/IgnoreTags.
	Tags []sam.Aux
}

// MaskedQualitySentinel is written in place of a quality score that
// QualityPreservation chose not to keep. It is the same byte BAM stores at
// every position of a wholly-absent quality array.
const MaskedQualitySentinel = 0xff
