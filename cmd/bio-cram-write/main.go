package main

// bio-cram-write reads a SAM or BAM file and streams it out as a CRAM file.
//
// Usage: bio-cram-write [-reference fasta] [-quality-policy policy] input.bam output.cram

import (
	"flag"
	"io"
	"os"
	"runtime"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cram/encoding/cram"
	"github.com/grailbio/cram/encoding/fasta"
)

var (
	samInputFlag    = flag.Bool("sam", false, "Specify that the input is in SAM format; else BAM.")
	referenceFlag   = flag.String("reference", "", "Path to the reference FASTA file used for ReferenceTracks and lossy quality preservation.")
	qualityPolicyFlag = flag.String("quality-policy", "", "Quality preservation policy string (e.g. \"N5\"); empty means lossless.")
	paranoidFlag    = flag.Bool("paranoid", false, "Enable the round-trip check on every flushed container.")
)

// recordReader is implemented by both biogo sam.Reader and biogo bam.Reader.
type recordReader interface {
	Header() *sam.Header
	Read() (*sam.Record, error)
}

func openInput(inPath string) recordReader {
	var in io.Reader
	if inPath == "-" {
		in = os.Stdin
	} else {
		ctx := vcontext.Background()
		f, err := file.Open(ctx, inPath) // Note: f is leaked.
		if err != nil {
			log.Panicf("open %v: %v", inPath, err)
		}
		in = f.Reader(ctx)
	}

	var err error
	var reader recordReader
	if *samInputFlag {
		reader, err = sam.NewReader(in)
		if err != nil {
			log.Panicf("open %v: failed to open SAM: %v", inPath, err)
		}
	} else {
		reader, err = bam.NewReader(in, runtime.NumCPU())
		if err != nil {
			log.Panicf("open %v: failed to open BAM: %v", inPath, err)
		}
	}
	return reader
}

func write(inPath, outPath string) {
	in := openInput(inPath)
	header := in.Header()

	ctx := vcontext.Background()
	out, err := file.Create(ctx, outPath)
	if err != nil {
		log.Panicf("create %v: %v", outPath, err)
	}
	sink := out.Writer(ctx)

	opts := cram.DefaultWriterOpts()
	opts.QualityPreservationPolicy = *qualityPolicyFlag
	opts.ParanoidMode = *paranoidFlag
	opts.ContainerBuilder = cram.NewDefaultContainerBuilder(cram.DefaultRecordsPerSlice)
	opts.ContainerIO = cram.NewDefaultContainerIO()
	indexSink := cram.NewOffsetIndexSink()
	opts.IndexSink = indexSink

	factory := cram.NewDefaultFactory(opts)
	opts.Factory = factory

	if *referenceFlag != "" {
		refFile, err := file.Open(ctx, *referenceFlag) // Note: refFile is leaked.
		if err != nil {
			log.Panicf("open reference %v: %v", *referenceFlag, err)
		}
		fa, err := fasta.New(refFile.Reader(ctx))
		if err != nil {
			log.Panicf("parse reference %v: %v", *referenceFlag, err)
		}
		opts.ReferenceProvider = cram.NewFastaReferenceProvider(fa, header)
	}

	w, err := cram.NewWriter(sink, opts)
	if err != nil {
		log.Panicf("new writer: %v", err)
	}
	if err := w.WriteHeader(header.String()); err != nil {
		log.Panicf("write header: %v", err)
	}

	for nRecs := 0; ; nRecs++ {
		rec, err := in.Read()
		if rec == nil {
			if err != io.EOF {
				log.Panicf("%v: failed to read %dth record: %v", inPath, nRecs, err)
			}
			break
		}
		if err := w.WriteAlignment(rec); err != nil {
			log.Panicf("%v: failed to write %dth record: %v", inPath, nRecs, err)
		}
	}
	if err := w.Finish(); err != nil {
		log.Panicf("finish: %v", err)
	}
	log.Printf("wrote %d containers", len(indexSink.Entries()))
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	flag.Usage = func() {
		os.Stderr.WriteString(`Usage:
bio-cram-write [-sam] [-reference fasta] [-quality-policy policy] <input> <output.cram>
`)
		flag.PrintDefaults()
	}
	shutdown := grail.Init()
	defer shutdown()

	args := flag.Args()
	if len(args) != 2 {
		flag.Usage()
		os.Exit(1)
	}
	write(args[0], args[1])
}
