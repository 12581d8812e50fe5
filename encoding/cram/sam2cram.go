package cram

import (
	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/unsafe"
	"github.com/grailbio/cram/biosimd"
	gbam "github.com/grailbio/cram/encoding/bam"
)

// invertEntry is what DefaultFactory.Invert reports back for one
// CompressionRecord; stashed at Convert time since apply (step 5) mutates
// CompressionRecord.QualityScores in place afterward.
type invertEntry struct {
	alignmentStart int
	refName        string
	bases          string
	quals          string
}

// DefaultFactory is the Sam2CramFactory/RoundTripChecker this package ships
// with: it converts *sam.Record fields into CompressionRecord fields
// directly, tracking substitution/indel counts against whichever reference
// it was last seeded with, the way pileup/snp/firstread.go's convertSamr
// unpacks a record's bases for comparison against a reference window.
type DefaultFactory struct {
	opts WriterOpts

	seqID    int
	refBases []byte

	baseCount    int
	featureCount int

	// scratch is reused across Convert calls to unpack packed-doublet bases,
	// avoiding a per-record allocation (unsafe.ExtendBytes reallocates it
	// only when a longer read arrives).
	scratch []byte

	// invert holds one entry per record converted since the last flush,
	// keyed by CompressionRecord.Index, consumed by Invert during the
	// paranoid round-trip check (spec.md §4.5 step 8) and cleared by
	// resetInvertCache at the end of each flush.
	invert map[int]invertEntry
}

// NewDefaultFactory returns the built-in Sam2CramFactory.
func NewDefaultFactory(opts WriterOpts) *DefaultFactory {
	return &DefaultFactory{opts: opts, seqID: -1, invert: make(map[int]invertEntry)}
}

// SeedReference implements Sam2CramFactory.
func (f *DefaultFactory) SeedReference(seqID int, bases []byte) {
	f.seqID = seqID
	f.refBases = bases
}

// Counters implements Sam2CramFactory.
func (f *DefaultFactory) Counters() (baseCount, featureCount int) {
	return f.baseCount, f.featureCount
}

// Convert implements Sam2CramFactory.
func (f *DefaultFactory) Convert(rec *sam.Record, index int) (*CompressionRecord, error) {
	cr := &CompressionRecord{
		Index:        index,
		TemplateSize: rec.TempLen,
		ReadName:     rec.Name,
		Secondary:    rec.Flags&sam.Secondary != 0,
		MultiSegment: rec.Flags&sam.Paired != 0,
		FirstSegment: rec.Flags&sam.Read1 != 0,
		LastSegment:  rec.Flags&sam.Read2 != 0,
	}
	refName := ""
	if rec.Ref != nil && rec.Ref.ID() >= 0 {
		cr.AlignmentStart = rec.Pos + 1
		refName = rec.Ref.Name()
	}
	if rec.Qual != nil {
		cr.QualityScores = append([]byte(nil), rec.Qual...)
	}
	cr.Tags = f.captureTags(rec)

	bases := f.unpackBases(rec)
	cr.BaseCount = len(bases)
	f.baseCount += cr.BaseCount

	if len(bases) > 0 && rec.Ref != nil && rec.Ref.ID() == f.seqID && f.refBases != nil {
		cr.FeatureCount = f.countFeatures(rec, bases)
		f.featureCount += cr.FeatureCount
	}

	f.invert[index] = invertEntry{
		alignmentStart: cr.AlignmentStart,
		refName:        refName,
		bases:          string(bases),
		quals:          string(rec.Qual),
	}
	return cr, nil
}

// captureTags selects rec's auxiliary fields per WriterOpts.CaptureAllTags/
// CaptureTags/IgnoreTags (spec.md §6). WriteHeader already rejects a
// WriterOpts that sets both CaptureTags and IgnoreTags.
func (f *DefaultFactory) captureTags(rec *sam.Record) []sam.Aux {
	if len(rec.AuxFields) == 0 {
		return nil
	}
	if f.opts.CaptureAllTags && len(f.opts.IgnoreTags) == 0 {
		return append([]sam.Aux(nil), rec.AuxFields...)
	}
	var kept []sam.Aux
	for _, aux := range rec.AuxFields {
		tag := aux.Tag().String()
		switch {
		case len(f.opts.IgnoreTags) > 0:
			if f.opts.IgnoreTags[tag] {
				continue
			}
		case len(f.opts.CaptureTags) > 0:
			if !f.opts.CaptureTags[tag] {
				continue
			}
		case !f.opts.CaptureAllTags:
			continue
		}
		kept = append(kept, aux)
	}
	return kept
}

// unpackBases expands rec's packed-doublet sequence into ASCII bases,
// grounded on pileup/snp/firstread.go's convertSamr.
func (f *DefaultFactory) unpackBases(rec *sam.Record) []byte {
	if rec.Seq.Length == 0 {
		return nil
	}
	unsafe.ExtendBytes(&f.scratch, rec.Seq.Length)
	biosimd.UnpackSeq(f.scratch, gbam.UnsafeDoubletsToBytes(rec.Seq.Seq))
	// UnpackSeq yields BAM 4-bit base codes; map them to ASCII letters.
	for i, b := range f.scratch {
		f.scratch[i] = "=ACMGRSVTWYHKDBN"[b]
	}
	return f.scratch
}

// countFeatures walks rec's cigar the way ReferenceTracks.populate does,
// counting substitutions against the seeded reference plus every indel/clip
// base, for the HighMismatchWarning counters of spec.md §4.5 step 6.
func (f *DefaultFactory) countFeatures(rec *sam.Record, bases []byte) int {
	refPos := rec.Pos
	readPos := 0
	features := 0
	for _, co := range rec.Cigar {
		l := co.Len()
		consumes := co.Type().Consumes()
		if consumes.Reference == 1 && consumes.Query == 1 {
			for i := 0; i < l; i++ {
				rp := refPos + i
				if rp < 0 || rp >= len(f.refBases) {
					continue
				}
				if bases[readPos+i] != f.refBases[rp] {
					features++
				}
			}
		} else if consumes.Query == 1 || consumes.Reference == 1 {
			features += l
		}
		if consumes.Query == 1 {
			readPos += l
		}
		if consumes.Reference == 1 {
			refPos += l
		}
	}
	return features
}

// Invert implements RoundTripChecker for DefaultFactory: since Convert
// stashes every field it read, inversion is a cache lookup rather than
// decoding a compressed representation.
func (f *DefaultFactory) Invert(cr *CompressionRecord) (alignmentStart int, refName string, bases string, quals string, err error) {
	e := f.invert[cr.Index]
	return e.alignmentStart, e.refName, e.bases, e.quals, nil
}

// resetInvertCache drops the per-flush invert cache; called by the Writer
// once a flush's round-trip check (if any) has run.
func (f *DefaultFactory) resetInvertCache() {
	for k := range f.invert {
		delete(f.invert, k)
	}
}
