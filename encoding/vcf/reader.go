// Package vcf adapts the gonomics VCF decoder to the records needed to build
// consensus sequences: the header's contig lengths and sample names, and the
// fixed and per-sample columns of each record.
package vcf

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/vertgenlab/gonomics/fileio"
	gvcf "github.com/vertgenlab/gonomics/vcf"
)

// Missing is the VCF placeholder for an absent value.
const Missing = "."

// Contig is a ##contig header line.
type Contig struct {
	ID string
	// Length is -1 when the header line has no length attribute.
	Length int
}

// Header holds the meta-information lines of a VCF file.
type Header struct {
	// Meta holds every "##" line, without the leading "##".
	Meta []string
	// Contigs lists the ##contig lines in file order.
	Contigs []Contig
	// Samples lists the sample column names of the #CHROM line.
	Samples []string
}

// ContigLength returns the declared length of contig.
func (h *Header) ContigLength(contig string) (int, bool) {
	for _, c := range h.Contigs {
		if c.ID == contig && c.Length >= 0 {
			return c.Length, true
		}
	}
	return 0, false
}

// SampleIndex returns the index of the named sample, or -1.
func (h *Header) SampleIndex(name string) int {
	for i, s := range h.Samples {
		if s == name {
			return i
		}
	}
	return -1
}

func newHeader(h gvcf.Header) (Header, error) {
	var out Header
	for _, line := range h.Text {
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "##"):
			meta := line[2:]
			out.Meta = append(out.Meta, meta)
			if strings.HasPrefix(meta, "contig=<") {
				c, err := parseContig(meta)
				if err != nil {
					return out, err
				}
				out.Contigs = append(out.Contigs, c)
			}
		case strings.HasPrefix(line, "#CHROM"):
			cols := strings.Split(line, "\t")
			if len(cols) < 8 {
				return out, fmt.Errorf("malformed column header %q", line)
			}
			if len(cols) > 9 {
				out.Samples = cols[9:]
			}
			return out, nil
		}
	}
	return out, fmt.Errorf("missing #CHROM header line")
}

// parseContig parses `contig=<ID=chr1,length=1000,...>`.
func parseContig(meta string) (Contig, error) {
	c := Contig{Length: -1}
	body := strings.TrimSuffix(strings.TrimPrefix(meta, "contig=<"), ">")
	for _, kv := range strings.Split(body, ",") {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		switch key, value := kv[:eq], kv[eq+1:]; key {
		case "ID":
			c.ID = value
		case "length":
			n, err := strconv.Atoi(value)
			if err != nil {
				return c, fmt.Errorf("bad contig length %q", value)
			}
			c.Length = n
		}
	}
	if c.ID == "" {
		return c, fmt.Errorf("contig line without ID: %q", meta)
	}
	return c, nil
}

// Record is one VCF data line.
type Record struct {
	Chrom string
	// Pos is 0-based.
	Pos  int
	ID   string
	Ref  string
	Alts []string
	// Qual is the decoded QUAL.  A missing QUAL holds the decoder's
	// placeholder, which is above any practical threshold.
	Qual   float64
	Filter string
	Info   map[string]string
	Format []string
	// Samples[i] holds the decoded genotype and FORMAT values of sample i.
	Samples []gvcf.Sample
}

// NewRecord converts a decoded gonomics record.  Positions become 0-based
// and bases upper case.
func NewRecord(v gvcf.Vcf) (Record, error) {
	r := Record{
		Chrom:   v.Chr,
		Pos:     v.Pos - 1,
		ID:      v.Id,
		Ref:     strings.ToUpper(v.Ref),
		Qual:    v.Qual,
		Filter:  v.Filter,
		Info:    parseInfo(v.Info),
		Format:  v.Format,
		Samples: v.Samples,
	}
	if v.Pos < 1 {
		return r, fmt.Errorf("bad POS %d", v.Pos)
	}
	if r.Ref == "" || r.Ref == Missing {
		return r, fmt.Errorf("missing REF")
	}
	if len(v.Alt) > 0 && !(len(v.Alt) == 1 && (v.Alt[0] == Missing || v.Alt[0] == "")) {
		r.Alts = make([]string, len(v.Alt))
		for i, a := range v.Alt {
			r.Alts[i] = strings.ToUpper(a)
		}
	}
	return r, nil
}

// End returns the 0-based exclusive end of the reference span.
func (r *Record) End() int {
	return r.Pos + len(r.Ref)
}

// Passed reports whether FILTER is PASS or missing.
func (r *Record) Passed() bool {
	return r.Filter == "PASS" || r.Filter == Missing || r.Filter == ""
}

func (r *Record) formatIndex(key string) int {
	for i, k := range r.Format {
		if k == key {
			return i
		}
	}
	return -1
}

// FormatValue returns the value of key for the given sample.  GT is not
// available here; use Genotype.
func (r *Record) FormatValue(sample int, key string) (string, bool) {
	if sample < 0 || sample >= len(r.Samples) {
		return "", false
	}
	i := r.formatIndex(key)
	values := r.Samples[sample].FormatData
	if i < 0 || i >= len(values) {
		return "", false
	}
	return values[i], true
}

// Depth returns the read depth of sample, from FORMAT DP if present and
// INFO DP otherwise.
func (r *Record) Depth(sample int) (int, bool) {
	v, ok := r.FormatValue(sample, "DP")
	if !ok || v == Missing || v == "" {
		if v, ok = r.Info["DP"]; !ok {
			return 0, false
		}
	}
	d, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

func parseInfo(s string) map[string]string {
	info := map[string]string{}
	if s == Missing || s == "" {
		return info
	}
	for _, kv := range strings.Split(s, ";") {
		if eq := strings.IndexByte(kv, '='); eq >= 0 {
			info[kv[:eq]] = kv[eq+1:]
		} else {
			info[kv] = ""
		}
	}
	return info
}

// Reader reads VCF records from a local, optionally gzipped, file.  The
// header is parsed by Open.  Readers are not threadsafe.
type Reader struct {
	path   string
	er     *fileio.EasyReader
	header Header
	n      int
	rec    Record
	err    error
}

// recoverInto turns a decoder panic into an error stored in *err.
func recoverInto(err *error, what string) {
	if r := recover(); r != nil {
		*err = errors.E(errors.Invalid, fmt.Sprintf("vcf: %s: %v", what, r))
	}
}

// Open opens the VCF file at path and reads its header.
func Open(path string) (vr *Reader, err error) {
	vr = &Reader{path: path}
	defer func() {
		if err != nil {
			vr.Close() // nolint: errcheck
			vr = nil
		}
	}()
	defer recoverInto(&err, path)
	vr.er = fileio.EasyOpen(path)
	h, err := newHeader(gvcf.ReadHeader(vr.er))
	if err != nil {
		return vr, errors.E(errors.Invalid, "vcf: "+path, err)
	}
	vr.header = h
	return vr, nil
}

// Header returns the parsed header.
func (vr *Reader) Header() *Header {
	return &vr.header
}

// Scan reads the next record.  It returns false at end of input or on
// error; check Err afterwards.
func (vr *Reader) Scan() bool {
	if vr.err != nil || vr.er == nil {
		return false
	}
	v, done, err := vr.next()
	if err != nil {
		vr.err = err
		return false
	}
	if done {
		return false
	}
	vr.n++
	if vr.rec, err = NewRecord(v); err != nil {
		vr.err = errors.E(errors.Invalid, fmt.Sprintf("vcf: %s: record %d", vr.path, vr.n), err)
		return false
	}
	return true
}

func (vr *Reader) next() (v gvcf.Vcf, done bool, err error) {
	defer recoverInto(&err, fmt.Sprintf("%s: record %d", vr.path, vr.n+1))
	v, done = gvcf.NextVcf(vr.er)
	return
}

// Record returns the most recently scanned record.  The record is
// overwritten by the next call to Scan.
func (vr *Reader) Record() *Record {
	return &vr.rec
}

// Err returns the error that stopped Scan, if any.
func (vr *Reader) Err() error {
	return vr.err
}

// Close releases the file.
func (vr *Reader) Close() error {
	if vr.er == nil {
		return nil
	}
	err := vr.er.Close()
	vr.er = nil
	return err
}
