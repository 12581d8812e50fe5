package cram

import (
	"strings"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/log"
)

// WriterOpts configures a Writer before the first WriteAlignment call
// (spec.md §6's producer-API configuration knobs).
type WriterOpts struct {
	// PreserveReadNames, when false, lets the ContainerBuilder reconstruct
	// read names instead of storing them verbatim. Default true.
	PreserveReadNames bool
	// CaptureAllTags captures every SAM auxiliary tag. Default true.
	CaptureAllTags bool
	// CaptureTags is an optional allow set, consulted only when
	// CaptureAllTags is false. IgnoreTags is an optional deny set: when
	// non-empty, every tag not in it is kept, whatever CaptureAllTags says.
	CaptureTags map[string]bool
	IgnoreTags  map[string]bool
	// QualityPreservationPolicy is the compact policy string of spec.md
	// §4.3; empty means lossless.
	QualityPreservationPolicy string
	// ParanoidMode runs the round-trip check of spec.md §4.5 step 8 on
	// every flush. Requires Factory to also implement RoundTripChecker.
	ParanoidMode bool

	// ReferenceProvider, ContainerBuilder, ContainerIO, Factory, and
	// IndexSink are the injected collaborators of spec.md §6.
	ReferenceProvider ReferenceProvider
	ContainerBuilder  ContainerBuilder
	ContainerIO       ContainerIO
	Factory           Sam2CramFactory
	IndexSink         IndexSink
}

// DefaultWriterOpts returns a WriterOpts with spec.md §6's defaults
// (preserve_read_names = true, capture_all_tags = true, no quality
// preservation policy, paranoid mode off). The caller must still set
// ReferenceProvider, ContainerBuilder, ContainerIO, and Factory.
func DefaultWriterOpts() WriterOpts {
	return WriterOpts{
		PreserveReadNames: true,
		CaptureAllTags:    true,
	}
}

// Writer is the EncoderDriver of spec.md §4.5-§4.6: a single-threaded,
// non-reentrant producer of a CRAM byte stream. Callers must serialise
// WriteHeader/WriteAlignment/Finish calls themselves (spec.md §5).
type Writer struct {
	opts   WriterOpts
	policy *QualityPreservationPolicy

	sink      Sink
	indexSink IndexSink

	boundary *BoundaryPolicy
	batch    BatchState

	headerWritten bool
	coordSorted   bool

	counter            int
	prevAlignmentStart int
}

// NewWriter constructs a Writer that streams containers to sink. Call
// WriteHeader before any WriteAlignment.
func NewWriter(sink Sink, opts WriterOpts) (*Writer, error) {
	policy, err := parsePreservationPolicy(opts.QualityPreservationPolicy)
	if err != nil {
		return nil, err
	}
	indexSink := opts.IndexSink
	if indexSink == nil {
		indexSink = noopIndexSink{}
	}
	return &Writer{
		opts:      opts,
		policy:    policy,
		sink:      sink,
		indexSink: indexSink,
	}, nil
}

// WriteHeader implements spec.md §4.6's write_header: parses the textual
// SAM header, (re)initialises buffering state, and writes the CRAM file
// header prelude. Must be called exactly once before any WriteAlignment.
func (w *Writer) WriteHeader(textHeader string) error {
	if w.headerWritten {
		return ErrHeaderAlreadyWritten
	}
	if len(w.opts.CaptureTags) > 0 && len(w.opts.IgnoreTags) > 0 {
		return ErrCaptureIgnoreTagsConflict
	}
	r, err := sam.NewReader(strings.NewReader(textHeader))
	if err != nil {
		return wrapSinkError(err, "parse header")
	}
	hdr := r.Header()
	w.coordSorted = hdr.SortOrder == sam.Coordinate
	w.boundary = NewBoundaryPolicy(w.coordSorted)
	w.batch.reset()

	n, err := w.sink.Write([]byte(textHeader))
	if err != nil {
		return wrapSinkError(err, "write header prelude")
	}
	w.batch.FileOffset = uint64(n)
	w.headerWritten = true
	return nil
}

// WriteAlignment implements spec.md §4.6's write_alignment: flush the
// current batch first if should_seal(rec) says so, then buffer rec.
func (w *Writer) WriteAlignment(rec *sam.Record) error {
	if !w.headerWritten {
		return ErrHeaderNotYetWritten
	}
	if w.boundary.shouldSeal(&w.batch, rec) {
		if err := w.flush(); err != nil {
			return err
		}
	}
	w.boundary.afterAppend(&w.batch, rec)
	w.batch.Buffer = append(w.batch.Buffer, rec)
	return nil
}

// Finish implements spec.md §4.6's finish: flush any buffered records,
// write the CRAM EOF marker, and close the sink and index sink.
func (w *Writer) Finish() error {
	if !w.headerWritten {
		return ErrHeaderNotYetWritten
	}
	if len(w.batch.Buffer) > 0 {
		if err := w.flush(); err != nil {
			return err
		}
	}
	if _, err := w.sink.Write(cramEOFMarker); err != nil {
		return wrapSinkError(err, "write eof marker")
	}
	if err := w.sink.Close(); err != nil {
		return wrapSinkError(err, "close sink")
	}
	return w.indexSink.Finish()
}

// cramEOFMarker is the fixed CRAM v2.1 end-of-file marker (spec.md §6:
// "Version is fixed at CRAM v2.1 for this core").
var cramEOFMarker = []byte{
	0x0b, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xe0, 0x45, 0x4f, 0x46, 0x00, 0x00, 0x00,
	0x00, 0x01, 0x00, 0x00, 0x01, 0x00, 0x06, 0x06,
	0x01, 0x00, 0x01, 0x00, 0x01, 0x00,
}

// flush implements the eleven-step pipeline of spec.md §4.5.
func (w *Writer) flush() error {
	batch := w.batch.Buffer

	// Step 1: resolve reference bases based on ref_seq_index.
	var refBases []byte
	requiresTracks := w.policy.requiresTracks()
	switch w.batch.RefSeqIndex.kind {
	case refSeqMultiReference:
		if requiresTracks {
			return ErrLossyMultiRefNotSupported
		}
	case refSeqID:
		if w.batch.RefSeqIndex.id >= 0 {
			bases, err := w.opts.ReferenceProvider.GetReferenceBases(w.batch.RefSeqIndex.id)
			if err != nil {
				return wrapReferenceFetchError(err, w.batch.RefSeqIndex.id)
			}
			refBases = bases
		}
	}

	// Step 2: compute batch [start, stop] over aligned records.
	start, stop, anyAligned := alignedBounds(batch)

	// Step 3: construct and populate ReferenceTracks if required.
	var tracks *ReferenceTracks
	if requiresTracks && anyAligned && w.batch.RefSeqIndex.kind == refSeqID {
		tracks = NewReferenceTracks(refBases, start, stop)
		for _, rec := range batch {
			if rec.Ref != nil && rec.Ref.ID() >= 0 {
				tracks.populate(rec, rec.Pos+1)
			}
		}
	}

	// Step 4: convert each AlignmentRecord to a CompressionRecord.
	seededRef := w.batch.RefSeqIndex
	if seededRef.kind == refSeqID {
		w.opts.Factory.SeedReference(seededRef.id, refBases)
	}
	crecords := make([]*CompressionRecord, 0, len(batch))
	for _, rec := range batch {
		if rec.Ref != nil && rec.Ref.ID() >= 0 &&
			(seededRef.kind != refSeqID || rec.Ref.ID() != seededRef.id) {
			bases, err := w.opts.ReferenceProvider.GetReferenceBases(rec.Ref.ID())
			if err != nil {
				return wrapReferenceFetchError(err, rec.Ref.ID())
			}
			w.opts.Factory.SeedReference(rec.Ref.ID(), bases)
			seededRef = singleRefSeq(rec.Ref.ID())
		}
		w.counter++
		cr, err := w.opts.Factory.Convert(rec, w.counter)
		if err != nil {
			return err
		}
		cr.AlignmentDelta = cr.AlignmentStart - w.prevAlignmentStart
		w.prevAlignmentStart = cr.AlignmentStart
		crecords = append(crecords, cr)
	}

	// Step 5: apply quality preservation.
	for i, cr := range crecords {
		w.policy.apply(batch[i], cr, cr.AlignmentStart, tracks)
	}

	// Step 6: advisory high-mismatch warning.
	if baseCount, featureCount := w.opts.Factory.Counters(); baseCount < 3*featureCount {
		log.Error.Printf("cram: abnormally high mismatches (base_count=%d, feature_count=%d) — possibly wrong reference", baseCount, featureCount)
	}

	// Step 7: mate resolution.
	NewMateResolver(w.coordSorted).Resolve(crecords)

	// Step 7.5: read-name suppression (spec.md §6's preserve_read_names).
	// A record reconstructable from its predecessor's read_name (linked,
	// not detached) doesn't need its own copy stored.
	if !w.opts.PreserveReadNames {
		for _, cr := range crecords {
			if cr.Previous != nil && !cr.Detached {
				cr.ReadName = ""
			}
		}
	}

	// Step 8: optional paranoid round-trip check.
	if w.opts.ParanoidMode {
		if checker, ok := w.opts.Factory.(RoundTripChecker); ok {
			if err := w.roundTripCheck(checker, batch, crecords); err != nil {
				return err
			}
		}
	}

	// Step 9: build the container, stamp MD5, write to sink.
	container, err := w.opts.ContainerBuilder.BuildContainer(crecords)
	if err != nil {
		return err
	}
	for _, slice := range container.Slices {
		slice.SetRefMD5(refBases)
	}
	container.Offset = w.batch.FileOffset
	container.RefSeqID = w.batch.RefSeqIndex.wireID()
	n, err := w.opts.ContainerIO.WriteContainer("2.1", container, w.sink)
	if err != nil {
		return wrapSinkError(err, "write container")
	}
	w.batch.FileOffset += n

	// Step 10: notify the index sink.
	if err := w.indexSink.ProcessContainer(container); err != nil {
		return err
	}

	// Step 11: clear the buffer and reset ref_seq_index.
	w.batch.reset()
	if resetter, ok := w.opts.Factory.(interface{ resetInvertCache() }); ok {
		resetter.resetInvertCache()
	}
	return nil
}

// roundTripCheck implements spec.md §4.5 step 8.
func (w *Writer) roundTripCheck(checker RoundTripChecker, source []*sam.Record, crecords []*CompressionRecord) error {
	for i, cr := range crecords {
		alignmentStart, refName, bases, quals, err := checker.Invert(cr)
		if err != nil {
			return err
		}
		rec := source[i]
		if rec.Ref != nil && rec.Ref.ID() >= 0 {
			if alignmentStart != rec.Pos+1 {
				return &ErrRoundTripMismatch{ReadName: rec.Name, Field: "alignment_start"}
			}
			if refName != rec.Ref.Name() {
				return &ErrRoundTripMismatch{ReadName: rec.Name, Field: "ref_name"}
			}
		}
		if bases != recordBasesString(rec) {
			return &ErrRoundTripMismatch{ReadName: rec.Name, Field: "bases"}
		}
		if quals != string(rec.Qual) {
			return &ErrRoundTripMismatch{ReadName: rec.Name, Field: "quality_scores"}
		}
	}
	return nil
}

// alignedBounds computes min/max alignment start/end over the aligned
// records of batch (spec.md §4.5 step 2), ignoring unaligned records.
func alignedBounds(batch []*sam.Record) (start, stop int, any bool) {
	for _, rec := range batch {
		if rec.Ref == nil || rec.Ref.ID() < 0 {
			continue
		}
		alignmentStart := rec.Pos + 1
		end := rec.End()
		if !any {
			start, stop, any = alignmentStart, end, true
			continue
		}
		if alignmentStart < start {
			start = alignmentStart
		}
		if end > stop {
			stop = end
		}
	}
	return start, stop, any
}
