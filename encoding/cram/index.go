package cram

// IndexEntry records one sealed container's position in the stream, enough
// to seek directly to it without reading the containers before it.
type IndexEntry struct {
	Offset      uint64
	SliceCount  int
	RecordCount int
	// RefSeqID is the container's Container.RefSeqID: a real sequence id,
	// RefSeqIDMultiple, or RefSeqIDNone.
	RefSeqID int
}

// OffsetIndexSink is the default IndexSink: an in-memory list of
// IndexEntry, one per container, in write order (spec.md §5: "the index
// sink observes containers in the same order they are written").
type OffsetIndexSink struct {
	entries []IndexEntry
}

// NewOffsetIndexSink returns an IndexSink that simply accumulates container
// offsets and sizes; callers read Entries() after Finish to persist or
// inspect the index.
func NewOffsetIndexSink() *OffsetIndexSink {
	return &OffsetIndexSink{}
}

// ProcessContainer implements IndexSink.
func (s *OffsetIndexSink) ProcessContainer(c *Container) error {
	recordCount := 0
	for _, slice := range c.Slices {
		recordCount += len(slice.Records)
	}
	s.entries = append(s.entries, IndexEntry{
		Offset:      c.Offset,
		SliceCount:  len(c.Slices),
		RecordCount: recordCount,
		RefSeqID:    c.RefSeqID,
	})
	return nil
}

// Finish implements IndexSink; the in-memory sink has nothing to flush.
func (s *OffsetIndexSink) Finish() error { return nil }

// Entries returns the accumulated index, in container write order.
func (s *OffsetIndexSink) Entries() []IndexEntry {
	return s.entries
}
