package fasta

import (
	"bufio"
	"bytes"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// faiRecord accumulates the index line of one sequence.
type faiRecord struct {
	name      string
	length    int64
	offset    int64
	lineBases int64
	lineWidth int64
}

func (r *faiRecord) write(w *tsv.Writer) error {
	w.WriteString(r.name)
	w.WriteInt64(r.length)
	w.WriteInt64(r.offset)
	w.WriteInt64(r.lineBases)
	w.WriteInt64(r.lineWidth)
	return w.EndLine()
}

// GenerateIndex generates an index (*.fai) from FASTA.  The index can be later
// passed to NewIndexed() to random-access the FASTA file quickly.
//
// The index format is defined by "samtool faidx"
// (http://www.htslib.org/doc/faidx.html).  Every line of a sequence except
// the last must have the same length.
func GenerateIndex(out io.Writer, in io.Reader) error {
	var (
		tsvOut  = tsv.NewWriter(out)
		r       = bufio.NewReader(in)
		cur     *faiRecord
		cumByte int64
		// Set once a sequence line shorter than lineBases has been seen.
		short bool
	)
	for {
		fullLine, err := r.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return errors.E(err, "fasta.GenerateIndex")
		}
		eof := err == io.EOF
		cumByte += int64(len(fullLine))
		line := bytes.TrimRight(fullLine, "\r\n")
		switch {
		case len(line) == 0:
		case line[0] == '>':
			if cur != nil {
				if err := cur.write(tsvOut); err != nil {
					return err
				}
			}
			cur = &faiRecord{name: seqName(string(line)), offset: cumByte}
			if cur.name == "" {
				return errors.E(errors.Invalid, "malformed FASTA file: empty sequence name")
			}
			short = false
		case cur == nil:
			return errors.E(errors.Invalid, "malformed FASTA file: sequence before header")
		default:
			n := int64(len(line))
			if cur.lineWidth == 0 {
				cur.lineWidth, cur.lineBases = int64(len(fullLine)), n
			} else if short || n > cur.lineBases {
				return errors.E(errors.Invalid, "fasta.GenerateIndex: inconsistent line length in sequence", cur.name)
			}
			short = n < cur.lineBases
			cur.length += n
		}
		if eof {
			break
		}
	}
	if cumByte == 0 {
		return errors.E(errors.Invalid, "empty FASTA file")
	}
	if cur != nil {
		if err := cur.write(tsvOut); err != nil {
			return err
		}
	}
	return tsvOut.Flush()
}
