package fasta

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// ReferenceSource reads bases from a Fasta by contig and 0-based offset.  It
// implements consensus.ReferenceSource.
type ReferenceSource struct {
	fa Fasta
}

// NewReferenceSource returns a ReferenceSource reading from fa.
func NewReferenceSource(fa Fasta) *ReferenceSource {
	return &ReferenceSource{fa: fa}
}

// Read returns up to length bases of contig starting at start.  Fewer bases
// are returned at the end of the contig.
func (r *ReferenceSource) Read(contig string, start, length int) ([]byte, error) {
	n, err := r.fa.Len(contig)
	if err != nil {
		return nil, err
	}
	if start < 0 || length < 0 {
		return nil, errors.E(errors.Invalid, "fasta: negative read range", contig)
	}
	begin, end := uint64(start), uint64(start+length)
	if end > n {
		end = n
	}
	if begin >= end {
		return nil, nil
	}
	s, err := r.fa.Get(contig, begin, end)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// Len returns the length of contig.
func (r *ReferenceSource) Len(contig string) (int, error) {
	n, err := r.fa.Len(contig)
	return int(n), err
}

// Open opens the FASTA file at path.  Uncompressed files are read on demand
// through "<path>.fai", or through an index generated in memory when that
// file is absent.  Compressed files, and files whose line layout cannot be
// indexed, are loaded whole.  The returned function releases the file.
func Open(ctx context.Context, path string) (Fasta, func() error, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	closer := func() error { return in.Close(ctx) }
	if !strings.HasSuffix(path, ".gz") && !strings.HasSuffix(path, ".bz2") {
		index, err := loadIndex(ctx, path, in)
		if err == nil {
			fa, err := NewIndexed(in.Reader(ctx), bytes.NewReader(index))
			if err != nil {
				_ = closer()
				return nil, nil, errors.E(err, path+".fai")
			}
			log.Printf("%s: using index with %d sequence(s)", path, len(fa.SeqNames()))
			return fa, closer, nil
		}
		log.Printf("%s: cannot index, loading whole file: %v", path, err)
		if _, err := in.Reader(ctx).Seek(0, io.SeekStart); err != nil {
			_ = closer()
			return nil, nil, errors.E(err, path)
		}
	}
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, path); u != nil {
		r = u
	}
	fa, err := New(r)
	if cerr := closer(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, nil, errors.E(err, path)
	}
	log.Printf("%s: loaded %d sequence(s)", path, len(fa.SeqNames()))
	return fa, func() error { return nil }, nil
}

// loadIndex reads "<path>.fai", or generates the index from in.
func loadIndex(ctx context.Context, path string, in file.File) ([]byte, error) {
	if idx, err := file.Open(ctx, path+".fai"); err == nil {
		data, err := ioutil.ReadAll(idx.Reader(ctx))
		if cerr := idx.Close(ctx); err == nil {
			err = cerr
		}
		return data, err
	}
	var buf bytes.Buffer
	if err := GenerateIndex(&buf, in.Reader(ctx)); err != nil {
		return nil, err
	}
	log.Debug.Printf("%s: generated index", path)
	return buf.Bytes(), nil
}
