package cram

import (
	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/unsafe"
	"github.com/grailbio/cram/biosimd"
	gbam "github.com/grailbio/cram/encoding/bam"
)

// ReferenceTracks holds per-position coverage and mismatch counters over a
// reference window [minStart, maxEnd], built fresh for each flush that needs
// them (spec.md §3, §4.2). Unlike pileup/snp/pileup.go's circular buffer
// (which streams an entire genome and must wrap), a ReferenceTracks window
// is bounded by one already-buffered batch, so a flat slice is enough.
type ReferenceTracks struct {
	minStart int
	bases    []byte // reference bases for [minStart, minStart+len(bases))
	coverage []int
	mismatches []int
}

// NewReferenceTracks allocates a window covering [minStart, maxEnd]
// (inclusive) of refBases. minStart/maxEnd are 1-based alignment
// coordinates, matching alignment_start elsewhere in this package, while
// refBases is the provider's plain 0-based byte array (refBases[0] is the
// first base of the sequence); the base at 1-based position p is
// refBases[p-1].
func NewReferenceTracks(refBases []byte, minStart, maxEnd int) *ReferenceTracks {
	n := maxEnd - minStart + 1
	return &ReferenceTracks{
		minStart:   minStart,
		bases:      refBases[minStart-1 : minStart-1+n],
		coverage:   make([]int, n),
		mismatches: make([]int, n),
	}
}

// baseAt returns the reference base at the given absolute position.
func (t *ReferenceTracks) baseAt(pos int) byte {
	return t.bases[pos-t.minStart]
}

// AddCoverage increments the coverage counter at pos by delta.
func (t *ReferenceTracks) AddCoverage(pos, delta int) {
	t.coverage[pos-t.minStart] += delta
}

// AddMismatches increments the mismatch counter at pos by delta.
func (t *ReferenceTracks) AddMismatches(pos, delta int) {
	t.mismatches[pos-t.minStart] += delta
}

// CoverageAt returns the coverage counter at pos.
func (t *ReferenceTracks) CoverageAt(pos int) int { return t.coverage[pos-t.minStart] }

// MismatchesAt returns the mismatch counter at pos.
func (t *ReferenceTracks) MismatchesAt(pos int) int { return t.mismatches[pos-t.minStart] }

// populate implements spec.md §4.2's population algorithm for one aligned
// record. alignmentStart is 1-based, matching spec.md's convention (callers
// pass rec.Pos+1).
func (t *ReferenceTracks) populate(rec *sam.Record, alignmentStart int) {
	refPos := alignmentStart
	readPos := 0
	var bases []byte
	unsafe.ExtendBytes(&bases, rec.Seq.Length)
	if rec.Seq.Length != 0 {
		biosimd.UnpackSeq(bases, gbam.UnsafeDoubletsToBytes(rec.Seq.Seq))
		// UnpackSeq yields BAM 4-bit base codes; map them to ASCII letters.
		for i, b := range bases {
			bases[i] = "=ACMGRSVTWYHKDBN"[b]
		}
	}
	for _, co := range rec.Cigar {
		l := co.Len()
		consumes := co.Type().Consumes()
		if consumes.Reference == 1 {
			for i := 0; i < l; i++ {
				t.AddCoverage(refPos+i, 1)
			}
		}
		if consumes.Reference == 1 && consumes.Query == 1 {
			// "Aligned" operators (match/mismatch/equal) consume both
			// reference and query; spec.md §9 flags the source's read-base
			// index as possibly double-counting readPos. We use readPos+i,
			// not readPos+(readPos+i), per spec.md's explicit instruction.
			for i := 0; i < l; i++ {
				if bases[readPos+i] != t.baseAt(refPos+i) {
					t.AddMismatches(refPos+i, 1)
				}
			}
		}
		if consumes.Query == 1 {
			readPos += l
		}
		if consumes.Reference == 1 {
			refPos += l
		}
	}
}
