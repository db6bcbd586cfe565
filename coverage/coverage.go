// Package coverage computes aligned-read depth statistics over regions of a
// BAM file.
package coverage

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/consensus/interval"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"gonum.org/v1/gonum/stat"
)

// Opts controls Compute.
type Opts struct {
	// MinMapQ drops reads with a lower mapping quality.
	MinMapQ int
	// FlagExclude drops reads with any of these SAM flags set.
	FlagExclude int
	// MinDepth is the depth threshold of Result.BreadthMin.
	MinDepth int
	// Parallelism bounds the number of contigs scanned concurrently.
	Parallelism int
}

// DefaultOpts excludes unmapped, secondary, QC-failed, duplicate and
// supplementary reads.
var DefaultOpts = Opts{
	MinMapQ:     0,
	FlagExclude: int(sam.Unmapped | sam.Secondary | sam.QCFail | sam.Duplicate | sam.Supplementary),
	MinDepth:    10,
	Parallelism: 4,
}

// Result holds the depth statistics of one region.
type Result struct {
	Region interval.Entry
	Mean   float64
	StdDev float64
	Min    int
	Max    int
	// Breadth is the fraction of positions with depth >= 1, and BreadthMin
	// the fraction with depth >= Opts.MinDepth.
	Breadth    float64
	BreadthMin float64
	// Reads is the number of reads that touched the region.
	Reads int64
}

// region is the depth accumulator of one entry.
type region struct {
	idx   int
	start int
	depth []int32
	reads int64
}

// Compute returns depth statistics for each entry, in entry order.  Entries
// with End < 0 extend to the end of the contig.  The BAM file does not need
// an index; each contig is scanned by its own job.
func Compute(ctx context.Context, bamPath string, entries []interval.Entry, opts Opts) ([]Result, error) {
	entries = append([]interval.Entry(nil), entries...)
	var lengths map[string]int
	byContig := map[string][]*region{}
	var contigs []string
	for i, e := range entries {
		if e.End < 0 {
			if lengths == nil {
				var err error
				if lengths, err = contigLengths(ctx, bamPath); err != nil {
					return nil, err
				}
			}
			n, ok := lengths[e.ChrName]
			if !ok {
				return nil, errors.E(errors.NotExist, "coverage: contig not in BAM header", e.ChrName)
			}
			e.End = interval.PosType(n)
			entries[i] = e
		}
		if e.End < e.Start0 || e.Start0 < 0 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("coverage: bad region %v", e))
		}
		if _, ok := byContig[e.ChrName]; !ok {
			contigs = append(contigs, e.ChrName)
		}
		byContig[e.ChrName] = append(byContig[e.ChrName], &region{
			idx:   i,
			start: int(e.Start0),
			depth: make([]int32, e.End-e.Start0),
		})
	}
	for _, regions := range byContig {
		sort.SliceStable(regions, func(i, j int) bool { return regions[i].start < regions[j].start })
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	err := traverse.Limit(parallelism).Each(len(contigs), func(i int) error {
		return scanContig(ctx, bamPath, contigs[i], byContig[contigs[i]], &opts)
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(entries))
	for _, regions := range byContig {
		for _, r := range regions {
			results[r.idx] = summarize(entries[r.idx], r, opts.MinDepth)
		}
	}
	return results, nil
}

// contigLengths reads the reference lengths from the BAM header.
func contigLengths(ctx context.Context, path string) (lengths map[string]int, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	reader, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return nil, errors.E(err, path)
	}
	lengths = map[string]int{}
	for _, ref := range reader.Header().Refs() {
		lengths[ref.Name()] = ref.Len()
	}
	return lengths, reader.Close()
}

// scanContig adds the reads of contig to regions, which are sorted by
// start.
func scanContig(ctx context.Context, path, contig string, regions []*region, opts *Opts) (err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, in, &err)
	reader, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return errors.E(err, path)
	}
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	found := false
	for _, ref := range reader.Header().Refs() {
		found = found || ref.Name() == contig
	}
	if !found {
		log.Printf("coverage: %s: contig %s not in header", path, contig)
		return nil
	}

	var (
		seen  bool
		nRead int64
	)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.E(err, path)
		}
		if rec.Ref == nil || rec.Ref.Name() != contig {
			sam.PutInFreePool(rec)
			if seen {
				// Coordinate-sorted input: the contig is done.
				break
			}
			continue
		}
		seen = true
		if (opts.FlagExclude&int(rec.Flags) != 0) || (opts.MinMapQ > int(rec.MapQ)) || (len(rec.Cigar) == 0) {
			sam.PutInFreePool(rec)
			continue
		}
		addRead(regions, rec)
		nRead++
		sam.PutInFreePool(rec)
	}
	log.Debug.Printf("coverage: %s: %d read(s) on %s", path, nRead, contig)
	return nil
}

// addRead increments the depth of every reference position rec covers with
// an M, =, X or D operation.
func addRead(regions []*region, rec *sam.Record) {
	pos := rec.Pos
	end := rec.End()
	for _, r := range regions {
		if r.start >= end || r.start+len(r.depth) <= pos {
			continue
		}
		r.reads++
		p := pos
		for _, op := range rec.Cigar {
			n := op.Len()
			switch op.Type() {
			case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch, sam.CigarDeletion:
				for k := p; k < p+n; k++ {
					if i := k - r.start; i >= 0 && i < len(r.depth) {
						r.depth[i]++
					}
				}
				p += n
			case sam.CigarSkipped:
				p += n
			}
		}
	}
}

func summarize(e interval.Entry, r *region, minDepth int) Result {
	res := Result{Region: e, Reads: r.reads}
	if len(r.depth) == 0 {
		return res
	}
	x := make([]float64, len(r.depth))
	var covered, coveredMin int
	res.Min = int(r.depth[0])
	for i, d := range r.depth {
		x[i] = float64(d)
		if int(d) < res.Min {
			res.Min = int(d)
		}
		if int(d) > res.Max {
			res.Max = int(d)
		}
		if d >= 1 {
			covered++
		}
		if int(d) >= minDepth {
			coveredMin++
		}
	}
	res.Mean, res.StdDev = stat.MeanStdDev(x, nil)
	if len(x) == 1 {
		res.StdDev = 0
	}
	res.Breadth = float64(covered) / float64(len(x))
	res.BreadthMin = float64(coveredMin) / float64(len(x))
	return res
}

// WriteTSV writes results to w, one region per line, with a header line.
func WriteTSV(w io.Writer, results []Result) error {
	tw := tsv.NewWriter(w)
	for _, col := range []string{"#chrom", "start", "end", "name", "mean", "stddev", "min", "max", "breadth", "breadth_min", "reads"} {
		tw.WriteString(col)
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	for _, r := range results {
		name := r.Region.Name
		if name == "" {
			name = "."
		}
		tw.WriteString(r.Region.ChrName)
		tw.WriteInt64(int64(r.Region.Start0))
		tw.WriteInt64(int64(r.Region.End))
		tw.WriteString(name)
		tw.WriteString(fmt.Sprintf("%.3f", r.Mean))
		tw.WriteString(fmt.Sprintf("%.3f", r.StdDev))
		tw.WriteInt64(int64(r.Min))
		tw.WriteInt64(int64(r.Max))
		tw.WriteString(fmt.Sprintf("%.4f", r.Breadth))
		tw.WriteString(fmt.Sprintf("%.4f", r.BreadthMin))
		tw.WriteInt64(r.Reads)
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}
