package variant

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/consensus/consensus"
	"github.com/grailbio/consensus/encoding/vcf"
	"v.io/x/lib/vlog"
)

// SourceStats counts the records read by a Source since it was created.
type SourceStats struct {
	Records      int64
	Filtered     int64
	Observations int64
}

// Source reads the observations sampled from a sorted, possibly gzipped,
// local VCF file.  It implements consensus.ObservationSource.  A Source is not
// safe for concurrent use; give each Writer its own.
type Source struct {
	ctx    context.Context
	path   string
	policy Policy
	filter Filter

	vr     *vcf.Reader
	header *vcf.Header
	// rank maps the ##contig IDs to their header order.
	rank map[string]int
	done bool
	err  error

	// Observations of the current record; idx is the current one.
	buf []consensus.Observation
	idx int

	contig string
	pos    int
	seen   map[string]bool
	// last is the largest header rank seen so far, or -1.
	last int

	Stats SourceStats
}

var _ consensus.ObservationSource = (*Source)(nil)

// NewSource opens the VCF file at path.  Records passing filter are sampled
// with policy.
func NewSource(ctx context.Context, path string, policy Policy, filter Filter) (*Source, error) {
	s := &Source{
		ctx:    ctx,
		path:   path,
		policy: policy,
		filter: filter,
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	s.header = s.vr.Header()
	s.rank = make(map[string]int, len(s.header.Contigs))
	for i, c := range s.header.Contigs {
		s.rank[c.ID] = i
	}
	return s, nil
}

func (s *Source) open() error {
	vr, err := vcf.Open(s.path)
	if err != nil {
		return err
	}
	s.vr = vr
	s.done, s.err = false, nil
	s.buf, s.idx = s.buf[:0], 0
	s.contig, s.pos, s.last = "", 0, -1
	s.seen = map[string]bool{}
	return nil
}

// Header returns the VCF header.
func (s *Source) Header() *vcf.Header { return s.header }

// Scan implements consensus.ObservationSource.
func (s *Source) Scan() bool {
	s.idx++
	for s.idx >= len(s.buf) {
		if s.done || s.err != nil {
			return false
		}
		if err := s.ctx.Err(); err != nil {
			s.err = err
			return false
		}
		if !s.vr.Scan() {
			s.done = true
			if err := s.vr.Err(); err != nil {
				s.err = errors.E(err, s.path)
			}
			return false
		}
		rec := s.vr.Record()
		if err := s.checkOrder(rec); err != nil {
			s.err = err
			return false
		}
		s.Stats.Records++
		if !s.filter.Accept(rec) {
			s.Stats.Filtered++
			continue
		}
		var err error
		if s.buf, err = s.policy.Observations(s.buf[:0], rec); err != nil {
			s.err = errors.E(err, fmt.Sprintf("%s: %s:%d", s.path, rec.Chrom, rec.Pos+1))
			return false
		}
		s.idx = 0
		s.Stats.Observations += int64(len(s.buf))
	}
	return true
}

// checkOrder rejects records out of contig or position order.
func (s *Source) checkOrder(rec *vcf.Record) error {
	if rec.Chrom != s.contig {
		if s.seen[rec.Chrom] {
			return errors.E(errors.Invalid, fmt.Sprintf("%s: contig %s is not contiguous", s.path, rec.Chrom))
		}
		if r, ok := s.rank[rec.Chrom]; ok {
			if r < s.last {
				return errors.E(errors.Invalid, fmt.Sprintf("%s: contig %s is out of ##contig header order", s.path, rec.Chrom))
			}
			s.last = r
		}
		s.seen[rec.Chrom] = true
		s.contig, s.pos = rec.Chrom, rec.Pos
		return nil
	}
	if rec.Pos < s.pos {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: %s:%d follows %s:%d", s.path, rec.Chrom, rec.Pos+1, rec.Chrom, s.pos+1))
	}
	s.pos = rec.Pos
	return nil
}

// Observation implements consensus.ObservationSource.
func (s *Source) Observation() consensus.Observation {
	return s.buf[s.idx]
}

// Err implements consensus.ObservationSource.
func (s *Source) Err() error { return s.err }

// Reset implements consensus.ObservationSource by reopening the file.
func (s *Source) Reset() error {
	vlog.VI(1).Infof("%s: rewinding", s.path)
	if err := s.Close(); err != nil {
		return err
	}
	return s.open()
}

// ContigLength implements consensus.ObservationSource using the ##contig
// header lines.
func (s *Source) ContigLength(contig string) (int, bool) {
	return s.header.ContigLength(contig)
}

// ContigIndex implements consensus.ObservationSource using the order of the
// ##contig header lines, which Scan enforces.
func (s *Source) ContigIndex(contig string) (int, bool) {
	r, ok := s.rank[contig]
	return r, ok
}

// Contigs returns the contigs declared in the header, in header order.
func (s *Source) Contigs() []string {
	names := make([]string, len(s.header.Contigs))
	for i, c := range s.header.Contigs {
		names[i] = c.ID
	}
	return names
}

// Close releases the underlying file.
func (s *Source) Close() error {
	if s.vr == nil {
		return nil
	}
	err := s.vr.Close()
	s.vr = nil
	s.done = true
	return err
}
