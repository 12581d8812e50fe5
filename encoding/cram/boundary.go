package cram

import (
	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/log"
)

// refSeqState is the tri-state tag BatchState.RefSeqIndex carries: a batch is
// either uninitialised, pinned to one reference sequence, or has absorbed
// records from more than one reference (MULTI_REFERENCE). Modeled as a
// tagged variant per spec.md §9 rather than raw sentinel ints; Id's zero
// value is a valid reference id, so the state is always checked via Kind.
type refSeqState struct {
	kind refSeqKind
	id   int
}

type refSeqKind int8

const (
	refSeqUninitialised refSeqKind = iota
	refSeqMultiReference
	refSeqID
)

var uninitialisedRefSeq = refSeqState{kind: refSeqUninitialised}
var multiReferenceRefSeq = refSeqState{kind: refSeqMultiReference}

func singleRefSeq(id int) refSeqState { return refSeqState{kind: refSeqID, id: id} }

// wireID reports s as one of Container.RefSeqID's values: a real sequence
// id, RefSeqIDMultiple, or RefSeqIDNone for a batch that never saw an
// aligned record (spec.md §9: these internal sentinels need not match the
// tri-state's own kind values on the wire).
func (s refSeqState) wireID() int {
	switch s.kind {
	case refSeqID:
		return s.id
	case refSeqMultiReference:
		return RefSeqIDMultiple
	default:
		return RefSeqIDNone
	}
}

// adopt updates the batch's tri-state reference tag with an incoming
// record's reference id, following the transition rules of spec.md §3's
// BatchState.ref_seq_index: uninitialised -> id on the first record; id ->
// MULTI_REFERENCE the moment a foreign id is absorbed; MULTI_REFERENCE is
// sticky until the batch is flushed.
func (s refSeqState) adopt(incomingID int) refSeqState {
	switch s.kind {
	case refSeqUninitialised:
		return singleRefSeq(incomingID)
	case refSeqMultiReference:
		return s
	default: // refSeqID
		if s.id == incomingID {
			return s
		}
		return multiReferenceRefSeq
	}
}

// BatchState is the EncoderDriver's mutable buffering state between flushes.
type BatchState struct {
	Buffer     []*sam.Record
	RefSeqIndex refSeqState
	FileOffset uint64
}

// reset clears the buffer and tri-state tag after a flush; FileOffset is
// cumulative and is never reset.
func (b *BatchState) reset() {
	b.Buffer = b.Buffer[:0]
	b.RefSeqIndex = uninitialisedRefSeq
}

// BoundaryPolicy decides when a batch must be sealed into a container.
// Defaults mirror spec.md §4.1: records_per_slice * slices_per_container =
// 10000, SWITCH_TO_MULTIREF_THRESHOLD = 1000.
type BoundaryPolicy struct {
	ContainerSize              int
	SwitchToMultiRefThreshold  int
	CoordinateSorted           bool
}

// DefaultRecordsPerSlice and DefaultSlicesPerContainer give the default
// ContainerSize of 10000 (spec.md §4.1).
const (
	DefaultRecordsPerSlice   = 10000
	DefaultSlicesPerContainer = 1
	DefaultSwitchToMultiRefThreshold = 1000
)

// NewBoundaryPolicy returns a BoundaryPolicy configured with spec.md's
// defaults.
func NewBoundaryPolicy(coordinateSorted bool) *BoundaryPolicy {
	return &BoundaryPolicy{
		ContainerSize:             DefaultRecordsPerSlice * DefaultSlicesPerContainer,
		SwitchToMultiRefThreshold: DefaultSwitchToMultiRefThreshold,
		CoordinateSorted:          coordinateSorted,
	}
}

// shouldSeal implements spec.md §4.1's should_seal, consulted before
// incoming is appended to batch.
func (p *BoundaryPolicy) shouldSeal(batch *BatchState, incoming *sam.Record) bool {
	if len(batch.Buffer) == 0 {
		batch.RefSeqIndex = batch.RefSeqIndex.adopt(incoming.Ref.ID())
		return false
	}
	if len(batch.Buffer) >= p.ContainerSize {
		return true
	}
	if !p.CoordinateSorted || batch.RefSeqIndex.kind == refSeqMultiReference {
		return false
	}
	incomingID := incoming.Ref.ID()
	if batch.RefSeqIndex.kind == refSeqID && batch.RefSeqIndex.id == incomingID {
		return false
	}
	// Foreign reference on a coordinate-sorted stream.
	if len(batch.Buffer) > p.SwitchToMultiRefThreshold {
		log.Debug.Printf("cram: absorbing foreign reference %d into multi-reference batch of size %d", incomingID, len(batch.Buffer))
		batch.RefSeqIndex = multiReferenceRefSeq
		return false
	}
	return true
}

// afterAppend updates the tri-state tag after incoming has been appended to
// batch, per spec.md §4.1's "After appending incoming, the driver updates
// ref_seq_index using the same rules."
func (p *BoundaryPolicy) afterAppend(batch *BatchState, incoming *sam.Record) {
	batch.RefSeqIndex = batch.RefSeqIndex.adopt(incoming.Ref.ID())
}
