package cram

import (
	"github.com/biogo/hts/sam"
)

var (
	testChr1, _   = sam.NewReference("chr1", "", "", 100000, nil, nil)
	testChr2, _   = sam.NewReference("chr2", "", "", 100000, nil, nil)
	testHeader, _ = sam.NewHeader(nil, []*sam.Reference{testChr1, testChr2})
)

func init() {
	testHeader.SortOrder = sam.Coordinate
}

func newTestRecord(name string, ref *sam.Reference, pos int, flags sam.Flags, cigar sam.Cigar) *sam.Record {
	r := sam.GetFromFreePool()
	r.Name = name
	r.Ref = ref
	r.Pos = pos
	r.Flags = flags
	r.Cigar = cigar
	r.MapQ = 60
	return r
}

func newTestRecordSeq(name string, ref *sam.Reference, pos int, flags sam.Flags, cigar sam.Cigar, seq, qual string) *sam.Record {
	r := newTestRecord(name, ref, pos, flags, cigar)
	r.Seq = sam.NewSeq([]byte(seq))
	r.Qual = []byte(qual)
	return r
}

func newTestAux(tag string, val interface{}) sam.Aux {
	aux, err := sam.NewAux(sam.NewTag(tag), val)
	if err != nil {
		panic(err)
	}
	return aux
}
