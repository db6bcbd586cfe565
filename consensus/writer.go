// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package consensus

import (
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Strand is the orientation of a Region.
type Strand uint8

const (
	// StrandNone means the strand is unknown; it is written as forward.
	StrandNone Strand = iota
	// StrandFwd is the forward strand.
	StrandFwd
	// StrandRev is the reverse strand.  Reverse regions are written
	// reverse-complemented.
	StrandRev
)

// StrandASCIITable maps a Strand to its BED column character.
var StrandASCIITable = [...]byte{'.', '+', '-'}

// ParseStrand converts a BED/GTF strand character to a Strand.
func ParseStrand(c byte) Strand {
	switch c {
	case '+':
		return StrandFwd
	case '-':
		return StrandRev
	}
	return StrandNone
}

func (s Strand) String() string {
	if int(s) < len(StrandASCIITable) {
		return string(StrandASCIITable[s])
	}
	return fmt.Sprintf("Strand(%d)", uint8(s))
}

// Region is one interval to write.  Start and End are 0-based, half-open;
// End < 0 means "to the end of the contig".  Type and Name are carried for
// record headers only.
type Region struct {
	Contig     string
	Start, End int
	Strand     Strand
	Type, Name string
}

func (r Region) String() string {
	if r.End < 0 {
		return fmt.Sprintf("%s:%d-", r.Contig, r.Start+1)
	}
	return fmt.Sprintf("%s:%d-%d", r.Contig, r.Start+1, r.End)
}

// ObservationSource is a forward-only, resettable stream of Observations
// sorted by contig (in any fixed contig order) and then by start position.
type ObservationSource interface {
	// Scan advances to the next Observation.  It returns false at the end of
	// the stream or on error.
	Scan() bool
	// Observation returns the current Observation.  It is valid until the
	// next call to Scan.
	Observation() Observation
	// Err returns the error that stopped Scan, if any.
	Err() error
	// Reset rewinds the stream to its first Observation.
	Reset() error
	// ContigLength returns the length of the named contig, if known.
	ContigLength(contig string) (int, bool)
	// ContigIndex returns the rank of contig in the stream's contig order, if
	// known.  A source that reports ranks must emit contigs in rank order.
	ContigIndex(contig string) (int, bool)
}

// ReferenceSource reads reference bytes.
type ReferenceSource interface {
	// Read returns up to length bytes of contig starting at the 0-based
	// position start.  Fewer bytes are returned at the end of the contig.
	Read(contig string, start, length int) ([]byte, error)
	// Len returns the length of contig.
	Len(contig string) (int, error)
}

// Opts controls a Writer.
type Opts struct {
	// Unknown is written where neither a reference base nor an observation
	// is available.
	Unknown byte
	// BlockSize is the in-memory block size of the reverse-strand buffer.
	// Longer reverse regions spill to disk.
	BlockSize int
	// TempDir holds reverse-strand spill segments.  "" means os.TempDir().
	TempDir string
	// RefChunk is the maximum number of reference bytes read at once while
	// filling gaps between merge windows.
	RefChunk int
}

// DefaultOpts is the default Writer configuration.
var DefaultOpts = Opts{
	Unknown:   DefaultUnknown,
	BlockSize: 1 << 20,
	RefChunk:  1 << 16,
}

// Writer writes consensus sequence for successive Regions from one
// ObservationSource.
//
// Regions may be written in any order.  The source is only read forward, so
// a Region that starts at or before the last consumed position, or on a
// contig the source has already moved past, triggers a Reset.
type Writer struct {
	src  ObservationSource
	ref  ReferenceSource
	opts Opts
	enc  *IUPACEncoder

	// Observation read from src but not yet consumed.
	lookahead    Observation
	hasLookahead bool
	// Source position: the contig of the last consumed observation, and the
	// largest End consumed on it.
	contig   string
	consumed int
	// Contigs whose observations have been consumed and left behind.
	passed map[string]bool
	eof    bool

	// Per-region state.
	region  Region
	end     int // resolved region end (exclusive)
	pos     int // next coordinate to write
	out     io.Writer
	encoder Encoder
	stats   *Stats
	batch   []Observation
	maxEnd  int
	fill    []byte
}

// NewWriter returns a Writer reading observations from src.  ref may be nil,
// in which case gaps are written as opts.Unknown.
func NewWriter(src ObservationSource, ref ReferenceSource, opts Opts) *Writer {
	if opts.Unknown == 0 {
		opts.Unknown = DefaultOpts.Unknown
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultOpts.BlockSize
	}
	if opts.RefChunk <= 0 {
		opts.RefChunk = DefaultOpts.RefChunk
	}
	return &Writer{
		src:      src,
		ref:      ref,
		opts:     opts,
		enc:      NewIUPACEncoder(opts.Unknown),
		consumed: -1,
		passed:   map[string]bool{},
	}
}

// contigLength resolves the length of contig from the reference if there is
// one, and from the observation source otherwise.  A contig missing from the
// reference is an error since its bases cannot be read.
func (w *Writer) contigLength(contig string) (int, error) {
	if w.ref != nil {
		n, err := w.ref.Len(contig)
		if err != nil {
			return 0, errors.E(err, "consensus: reference contig", contig)
		}
		return n, nil
	}
	if n, ok := w.src.ContigLength(contig); ok {
		return n, nil
	}
	return 0, errors.E(errors.NotExist, "consensus: unknown length for contig", contig)
}

func (w *Writer) reset() error {
	log.Debug.Printf("consensus: resetting observation source for %v", w.region)
	w.hasLookahead = false
	w.contig = ""
	w.consumed = -1
	w.passed = map[string]bool{}
	w.eof = false
	return w.src.Reset()
}

// Write writes the consensus sequence of region to sink and adds the
// region's counters to stats.
func (w *Writer) Write(region Region, sink io.Writer, stats *Stats) (err error) {
	// INIT
	length, err := w.contigLength(region.Contig)
	if err != nil {
		return err
	}
	end := region.End
	if end < 0 || end > length {
		end = length
	}
	if region.Start < 0 || region.Start > end {
		return errors.E(errors.Invalid, fmt.Sprintf("consensus: invalid region %v (contig length %d)", region, length))
	}
	if w.passed[region.Contig] || (w.contig == region.Contig && region.Start <= w.consumed) {
		if err = w.reset(); err != nil {
			return errors.E(err, "consensus: resetting observation source")
		}
	}
	w.region, w.end, w.pos, w.stats = region, end, region.Start, stats
	w.batch = w.batch[:0]
	w.encoder, w.out = w.enc, sink
	var rev *CachedReversingWriter
	if region.Strand == StrandRev {
		blockSize := end - region.Start
		if blockSize > w.opts.BlockSize {
			blockSize = w.opts.BlockSize
		}
		rev = NewCachedReversingWriter(sink, blockSize, w.opts.TempDir)
		w.encoder, w.out = NewInvertingEncoder(w.enc), rev
		defer func() {
			if e := rev.Close(); e != nil && err == nil {
				err = e
			}
		}()
	}
	stats.Regions++

	// CLUSTERING
	for {
		o, ok := w.next()
		if !ok {
			break
		}
		if len(w.batch) > 0 && o.first() > w.maxEnd {
			if err = w.dispatch(); err != nil {
				return err
			}
		}
		if len(w.batch) == 0 || o.End > w.maxEnd {
			w.maxEnd = o.End
		}
		w.batch = append(w.batch, o)
	}
	if err = w.src.Err(); err != nil {
		return errors.E(err, "consensus: reading observations")
	}

	// DRAINING
	if len(w.batch) > 0 {
		if err = w.dispatch(); err != nil {
			return err
		}
	}
	return w.gap(w.end)
}

// next returns the next observation that belongs to the current region.
// Observations past the region are kept as the lookahead.
func (w *Writer) next() (Observation, bool) {
	for {
		if !w.hasLookahead {
			if w.eof || !w.src.Scan() {
				w.eof = true
				return Observation{}, false
			}
			w.lookahead, w.hasLookahead = w.src.Observation(), true
		}
		o := &w.lookahead
		if o.Contig != w.region.Contig {
			if w.contig == w.region.Contig || w.ordersAfter(o.Contig, w.region.Contig) {
				// The source has moved past this region's contig.
				return Observation{}, false
			}
			w.consume(o)
			continue
		}
		if o.first() >= w.end {
			return Observation{}, false
		}
		w.consume(o)
		if o.End < w.region.Start {
			continue
		}
		return *o, true
	}
}

// ordersAfter reports whether the source emits contig a after contig b.
func (w *Writer) ordersAfter(a, b string) bool {
	i, ok := w.src.ContigIndex(a)
	if !ok {
		return false
	}
	j, ok := w.src.ContigIndex(b)
	return ok && i > j
}

// consume marks the lookahead as read.
func (w *Writer) consume(o *Observation) {
	if o.Contig != w.contig {
		if w.contig != "" {
			w.passed[w.contig] = true
		}
		w.contig, w.consumed = o.Contig, -1
	}
	if o.End > w.consumed {
		w.consumed = o.End
	}
	w.hasLookahead = false
}

// dispatch merges and serializes the pending batch.
func (w *Writer) dispatch() error {
	batch := w.batch
	w.batch = w.batch[:0]
	start := batch[0].first()
	for i := range batch {
		if f := batch[i].first(); f < start {
			start = f
		}
	}
	if start < w.pos {
		start = w.pos
	}
	end := w.maxEnd
	if end >= w.end {
		end = w.end - 1
	}
	if end < start {
		log.Debug.Printf("consensus: %v: dropping %d observation(s) before position %d", w.region, len(batch), w.pos)
		return nil
	}
	if err := w.gap(start); err != nil {
		return err
	}
	var ref []byte
	if w.ref != nil {
		var err error
		if ref, err = w.ref.Read(w.region.Contig, start, end-start+1); err != nil {
			return errors.E(err, fmt.Sprintf("consensus: reading reference %s:%d-%d", w.region.Contig, start+1, end+1))
		}
	}
	chain := Merge(batch, start, end, ref, w.stats)
	if log.At(log.Debug) {
		log.Debug.Printf("consensus: %v: window [%d, %d] %d observation(s) %d node(s)", w.region, start, end, len(batch), chain.NumNodes())
	}
	w.stats.Windows++
	if _, err := Serialize(w.out, chain, w.encoder, w.stats); err != nil {
		return errors.E(err, "consensus: writing", w.region.String())
	}
	w.pos = end + 1
	return nil
}

// gap fills [w.pos, limit) from the reference, or with the unknown
// placeholder where no reference is available.
func (w *Writer) gap(limit int) error {
	for w.pos < limit {
		n := limit - w.pos
		if n > w.opts.RefChunk {
			n = w.opts.RefChunk
		}
		var ref []byte
		if w.ref != nil {
			var err error
			if ref, err = w.ref.Read(w.region.Contig, w.pos, n); err != nil {
				return errors.E(err, fmt.Sprintf("consensus: reading reference %s:%d-%d", w.region.Contig, w.pos+1, w.pos+n))
			}
			if len(ref) > n {
				ref = ref[:n]
			}
		}
		w.fill = w.encoder.EncodeReference(w.fill[:0], ref)
		w.stats.countReference(w.fill)
		for k := len(ref); k < n; k++ {
			w.fill = append(w.fill, w.opts.Unknown)
		}
		w.stats.Unknown += int64(n - len(ref))
		if _, err := w.out.Write(w.fill); err != nil {
			return errors.E(err, "consensus: writing", w.region.String())
		}
		w.pos += n
	}
	return nil
}

// WriteRegion writes the consensus sequence of one region from src and ref
// to sink.  If statsSink is non-nil, a statistics report for the region is
// written to it.
func WriteRegion(region Region, src ObservationSource, ref ReferenceSource, sink, statsSink io.Writer, opts Opts) error {
	var stats Stats
	if err := NewWriter(src, ref, opts).Write(region, sink, &stats); err != nil {
		return err
	}
	if statsSink == nil {
		return nil
	}
	return stats.Report(statsSink)
}
