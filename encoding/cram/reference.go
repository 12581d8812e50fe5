package cram

import (
	"github.com/biogo/hts/sam"
	"github.com/grailbio/cram/encoding/fasta"
)

// FastaReferenceProvider bridges encoding/fasta.Fasta's name-addressed
// sequences to the id-addressed ReferenceProvider the driver consumes,
// using a SAM header's Refs() list for the id->name lookup.
type FastaReferenceProvider struct {
	fa     fasta.Fasta
	header *sam.Header
	cache  map[int][]byte
}

// NewFastaReferenceProvider returns a ReferenceProvider serving fa's
// sequences, addressed by header's reference ids.
func NewFastaReferenceProvider(fa fasta.Fasta, header *sam.Header) *FastaReferenceProvider {
	return &FastaReferenceProvider{
		fa:     fa,
		header: header,
		cache:  make(map[int][]byte),
	}
}

// GetReferenceBases implements ReferenceProvider. Fetched sequences are
// cached per id for the lifetime of the provider, since a batch may re-seed
// the same reference across multiple flushes.
func (p *FastaReferenceProvider) GetReferenceBases(seqID int) ([]byte, error) {
	if bases, ok := p.cache[seqID]; ok {
		return bases, nil
	}
	refs := p.header.Refs()
	if seqID < 0 || seqID >= len(refs) {
		return nil, wrapReferenceFetchError(errOutOfRangeRef, seqID)
	}
	name := refs[seqID].Name()
	n, err := p.fa.Len(name)
	if err != nil {
		return nil, wrapReferenceFetchError(err, seqID)
	}
	s, err := p.fa.Get(name, 0, n)
	if err != nil {
		return nil, wrapReferenceFetchError(err, seqID)
	}
	bases := []byte(s)
	p.cache[seqID] = bases
	return bases, nil
}

var errOutOfRangeRef = errOutOfRange{}

type errOutOfRange struct{}

func (errOutOfRange) Error() string { return "cram: reference sequence id out of range" }
