package cram

import (
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
)

func TestReferenceTracksPopulateMatch(t *testing.T) {
	ref := []byte("ACGTACGTAC")
	tracks := NewReferenceTracks(ref, 1, 10)

	rec := newTestRecordSeq("r1", testChr1, 0, sam.Paired,
		sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 5)},
		"ACGTA", "IIIII")
	tracks.populate(rec, 1)

	for pos := 1; pos <= 5; pos++ {
		assert.Equal(t, 1, tracks.CoverageAt(pos))
		assert.Equal(t, 0, tracks.MismatchesAt(pos))
	}
	assert.Equal(t, 0, tracks.CoverageAt(6))
}

func TestReferenceTracksPopulateMismatch(t *testing.T) {
	ref := []byte("ACGTACGTAC")
	tracks := NewReferenceTracks(ref, 1, 10)

	rec := newTestRecordSeq("r1", testChr1, 0, sam.Paired,
		sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 5)},
		"ACGAC", "IIIII")
	tracks.populate(rec, 1)

	assert.Equal(t, 0, tracks.MismatchesAt(1))
	assert.Equal(t, 0, tracks.MismatchesAt(2))
	assert.Equal(t, 0, tracks.MismatchesAt(3))
	assert.Equal(t, 1, tracks.MismatchesAt(4))
	assert.Equal(t, 1, tracks.MismatchesAt(5))
}

func TestReferenceTracksPopulateIndels(t *testing.T) {
	ref := []byte("ACGTACGTAC")
	tracks := NewReferenceTracks(ref, 1, 10)

	// 2M1I2M: inserted base does not consume reference, so coverage only
	// advances across the matched positions.
	rec := newTestRecordSeq("r1", testChr1, 0, sam.Paired,
		sam.Cigar{
			sam.NewCigarOp(sam.CigarMatch, 2),
			sam.NewCigarOp(sam.CigarInsertion, 1),
			sam.NewCigarOp(sam.CigarMatch, 2),
		},
		"ACGGT", "IIIII")
	tracks.populate(rec, 1)

	assert.Equal(t, 1, tracks.CoverageAt(1))
	assert.Equal(t, 1, tracks.CoverageAt(2))
	assert.Equal(t, 1, tracks.CoverageAt(3))
	assert.Equal(t, 1, tracks.CoverageAt(4))
}
