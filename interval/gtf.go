package interval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
)

// gtfRecord is one line of a GTF file.
type gtfRecord struct {
	Chrom   string
	Source  string
	Feature string
	Start   int
	Stop    int
	Score   string // unused floating point value, but may be "."
	Strand  string
	Frame   string
	Fields  string
}

// parseAttributes parses `gene_id "X"; gene_name "Y";` into attrs.
func parseAttributes(attrs map[string]string, s string) {
	for k := range attrs {
		delete(attrs, k)
	}
	for _, field := range strings.Split(strings.TrimSpace(s), ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		sp := strings.IndexByte(field, ' ')
		if sp < 0 {
			attrs[field] = ""
			continue
		}
		attrs[field[:sp]] = strings.Trim(strings.TrimSpace(field[sp+1:]), "\"")
	}
}

// ParseGTF reads the lines of a GTF annotation whose feature column equals
// feature ("" selects every line).  GTF coordinates are 1-based inclusive;
// the returned entries are 0-based half-open.  Entry.Name is the gene_name
// attribute, falling back to gene_id, and Entry.Type is the feature.
func ParseGTF(r io.Reader, feature string) ([]Entry, error) {
	scanner := tsv.NewReader(bufio.NewReaderSize(r, 64<<10))
	scanner.Comment = '#'
	scanner.LazyQuotes = true
	var (
		line    gtfRecord
		entries []Entry
		attrs   = map[string]string{}
	)
	for {
		if err := scanner.Read(&line); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if feature != "" && line.Feature != feature {
			continue
		}
		if line.Start < 1 || line.Stop < line.Start {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("interval.ParseGTF: invalid coordinates %s:%d-%d", line.Chrom, line.Start, line.Stop))
		}
		parseAttributes(attrs, line.Fields)
		name := attrs["gene_name"]
		if name == "" {
			name = attrs["gene_id"]
		}
		e := Entry{
			ChrName: line.Chrom,
			Start0:  PosType(line.Start - 1),
			End:     PosType(line.Stop),
			Name:    name,
			Type:    line.Feature,
			Strand:  StrandNone,
		}
		if line.Strand == "+" || line.Strand == "-" {
			e.Strand = line.Strand[0]
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ReadGTFEntries reads the entries of a (possibly compressed) GTF file.
func ReadGTFEntries(ctx context.Context, path, feature string) (entries []Entry, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	var inr io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(inr, in.Name()); u != nil {
		inr = u
	}
	if entries, err = ParseGTF(inr, feature); err != nil {
		return nil, errors.E(err, path)
	}
	log.Printf("GTF: %s: read %d %q feature(s)", path, len(entries), feature)
	return entries, nil
}
