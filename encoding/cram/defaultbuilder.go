package cram

import (
	"bytes"
	"compress/flate"
	"encoding/binary"

	"github.com/grailbio/cram/encoding/bgzf"
)

// BgzfContainerBuilder groups CompressionRecords into slices of at most
// RecordsPerSlice records, the ContainerBuilder half of the default
// ContainerIO/ContainerBuilder pair this package ships. Splitting into
// several slices only matters when a caller raises slices_per_container
// above the default of 1 (BoundaryPolicy.ContainerSize already bounds how
// many records a single build_container call ever receives).
type BgzfContainerBuilder struct {
	RecordsPerSlice int
}

// NewDefaultContainerBuilder returns a ContainerBuilder that packs records
// into ceil(len(records)/recordsPerSlice) slices.
func NewDefaultContainerBuilder(recordsPerSlice int) *BgzfContainerBuilder {
	if recordsPerSlice <= 0 {
		recordsPerSlice = DefaultRecordsPerSlice
	}
	return &BgzfContainerBuilder{RecordsPerSlice: recordsPerSlice}
}

// BuildContainer implements ContainerBuilder.
func (b *BgzfContainerBuilder) BuildContainer(records []*CompressionRecord) (*Container, error) {
	c := &Container{}
	for i := 0; i < len(records); i += b.RecordsPerSlice {
		end := i + b.RecordsPerSlice
		if end > len(records) {
			end = len(records)
		}
		c.Slices = append(c.Slices, &Slice{Records: records[i:end]})
	}
	return c, nil
}

// BgzfContainerIO serializes a Container's slices as bgzf-compressed
// blocks, each framed by a little-endian length prefix so a reader can skip
// slices without decompressing them, mirroring the block-oriented framing
// encoding/bam relies on for .bam/.bgzf files.
type BgzfContainerIO struct {
	level int
}

// NewDefaultContainerIO returns a ContainerIO using flate.DefaultCompression.
func NewDefaultContainerIO() *BgzfContainerIO {
	return &BgzfContainerIO{level: flate.DefaultCompression}
}

// WriteContainer implements ContainerIO.
func (io *BgzfContainerIO) WriteContainer(version string, c *Container, sink Sink) (uint64, error) {
	var total uint64
	lenBuf := make([]byte, 4)
	for _, slice := range c.Slices {
		raw := marshalSlice(version, slice)

		var compressed bytes.Buffer
		w, err := bgzf.NewWriter(&compressed, io.level)
		if err != nil {
			return total, err
		}
		if _, err := w.Write(raw); err != nil {
			return total, err
		}
		if err := w.Close(); err != nil {
			return total, err
		}

		binary.LittleEndian.PutUint32(lenBuf, uint32(compressed.Len()))
		n1, err := sink.Write(lenBuf)
		if err != nil {
			return total, err
		}
		n2, err := sink.Write(compressed.Bytes())
		if err != nil {
			return total, err
		}
		total += uint64(n1 + n2)
	}
	return total, nil
}

// marshalSlice encodes one slice's records into a flat byte buffer: a
// header (magic version string, ref MD5, record count) followed by each
// record's fields, little-endian, in the style of encoding/bam/marshal.go's
// binaryWriter.
func marshalSlice(version string, slice *Slice) []byte {
	bw := &sliceWriter{buf: &bytes.Buffer{}}
	bw.writeString(version)
	bw.buf.Write(slice.RefMD5[:])
	bw.writeUint32(uint32(len(slice.Records)))
	for _, r := range slice.Records {
		bw.writeInt32(int32(r.Index))
		bw.writeInt32(int32(r.AlignmentStart))
		bw.writeInt32(int32(r.AlignmentDelta))
		bw.writeInt32(int32(r.TemplateSize))
		bw.writeString(r.ReadName)
		bw.writeBool(r.Secondary)
		bw.writeBool(r.MultiSegment)
		bw.writeBool(r.FirstSegment)
		bw.writeBool(r.LastSegment)
		bw.writeInt32(int32(r.RecordsToNextFragment))
		bw.writeBool(r.Detached)
		bw.writeBool(r.HasMateDownstream)
		bw.writeBool(r.ForcePreserveQualityScores)
		bw.writeUint32(uint32(len(r.QualityScores)))
		bw.buf.Write(r.QualityScores)
		bw.writeUint32(uint32(len(r.Tags)))
		for _, aux := range r.Tags {
			bw.writeUint32(uint32(len(aux)))
			bw.buf.Write(aux)
		}
	}
	return bw.buf.Bytes()
}

type sliceWriter struct {
	buf *bytes.Buffer
	tmp [4]byte
}

func (w *sliceWriter) writeUint32(v uint32) {
	binary.LittleEndian.PutUint32(w.tmp[:], v)
	w.buf.Write(w.tmp[:])
}

func (w *sliceWriter) writeInt32(v int32) { w.writeUint32(uint32(v)) }

func (w *sliceWriter) writeBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *sliceWriter) writeString(s string) {
	w.writeUint32(uint32(len(s)))
	w.buf.WriteString(s)
}
