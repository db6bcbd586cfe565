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

// Package run drives the consensus writer over the regions selected on the
// bio-consensus command line, writing FASTA output from parallel jobs.
package run

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"runtime"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/consensus/consensus"
	"github.com/grailbio/consensus/encoding/fasta"
	"github.com/grailbio/consensus/interval"
	"github.com/grailbio/consensus/variant"
	"github.com/grailbio/hts/bgzf"
	"github.com/klauspost/pgzip"
)

// Opts holds the bio-consensus command-line options.
type Opts struct {
	// Commandline options.
	FaPath         string
	Region         string
	BedPath        string
	GTFPath        string
	Feature        string
	Sample         string
	MinQual        float64
	MinDepth       int
	PassOnly       bool
	ExcludeBedPath string
	Format         string
	StatsPath      string
	LineWidth      int
	BlockSize      int
	TempDir        string
	Parallelism    int
	Unknown        string
}

// DefaultOpts are the bio-consensus defaults.
var DefaultOpts = Opts{
	Feature:   "gene",
	Format:    "fasta",
	LineWidth: fasta.DefaultLineWidth,
	BlockSize: consensus.DefaultOpts.BlockSize,
	Unknown:   string(consensus.DefaultUnknown),
}

type format int

const (
	formatFasta format = iota
	formatFastaGz
	formatFastaBgz
)

var formats = map[string]format{
	"fasta":     formatFasta,
	"fasta-gz":  formatFastaGz,
	"fasta-bgz": formatFastaBgz,
}

// Consensus writes one FASTA record per region to outPath ("" or "-" for
// stdout), using the calls in vcfPath.
func Consensus(ctx context.Context, vcfPath, outPath string, opts *Opts) (err error) {
	outFormat, ok := formats[opts.Format]
	if !ok {
		return fmt.Errorf("Consensus: unrecognized format %q", opts.Format)
	}
	if len(opts.Unknown) != 1 {
		return fmt.Errorf("Consensus: -unknown must be a single character, got %q", opts.Unknown)
	}
	nRegionFlags := 0
	for _, s := range []string{opts.Region, opts.BedPath, opts.GTFPath} {
		if s != "" {
			nRegionFlags++
		}
	}
	if nRegionFlags > 1 {
		return fmt.Errorf("Consensus: at most one of -region, -bed and -gtf may be given")
	}

	var ref consensus.ReferenceSource
	var fa fasta.Fasta
	if opts.FaPath != "" {
		var closer func() error
		if fa, closer, err = fasta.Open(ctx, opts.FaPath); err != nil {
			return err
		}
		defer func() {
			if e := closer(); e != nil && err == nil {
				err = e
			}
		}()
		ref = fasta.NewReferenceSource(fa)
	}

	filter := variant.Filter{
		MinQual:  opts.MinQual,
		MinDepth: opts.MinDepth,
		PassOnly: opts.PassOnly,
	}
	if opts.ExcludeBedPath != "" {
		exclude, err := interval.NewBEDUnionFromPath(ctx, opts.ExcludeBedPath, interval.NewBEDOpts{})
		if err != nil {
			return err
		}
		filter.Exclude = &exclude
	}

	probe, err := variant.NewSource(ctx, vcfPath, variant.AltPolicy{}, filter)
	if err != nil {
		return err
	}
	policy, err := choosePolicy(probe, opts.Sample)
	if err == nil {
		if p, ok := policy.(variant.GenotypePolicy); ok {
			filter.Sample = p.Sample
		}
	}
	var regions []consensus.Region
	if err == nil {
		regions, err = loadRegions(ctx, opts, probe, fa)
	}
	if e := probe.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return err
	}
	if len(regions) == 0 {
		return fmt.Errorf("Consensus: no regions to write")
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if parallelism > len(regions) {
		parallelism = len(regions)
	}
	copts := consensus.Opts{
		Unknown:   opts.Unknown[0],
		BlockSize: opts.BlockSize,
		TempDir:   opts.TempDir,
	}

	tmpFiles := make([]*os.File, parallelism)
	defer func() {
		for _, f := range tmpFiles {
			if f == nil {
				continue
			}
			if e := f.Close(); e != nil && err == nil {
				err = e
			}
			_ = os.Remove(f.Name())
		}
	}()
	for jobIdx := range tmpFiles {
		if tmpFiles[jobIdx], err = ioutil.TempFile(opts.TempDir, "consensus_tmp"+strconv.Itoa(jobIdx)+"_*.fa"); err != nil {
			return err
		}
	}
	jobStats := make([]consensus.Stats, parallelism)

	log.Printf("Consensus: writing %d region(s) (%d jobs)", len(regions), parallelism)
	err = traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * len(regions)) / parallelism
		endIdx := ((jobIdx + 1) * len(regions)) / parallelism
		return writeRegions(ctx, vcfPath, policy, filter.Clone(), ref, copts, opts.LineWidth,
			regions[startIdx:endIdx], tmpFiles[jobIdx], &jobStats[jobIdx])
	})
	if err != nil {
		return err
	}

	var stats consensus.Stats
	for i := range jobStats {
		stats.Add(&jobStats[i])
	}
	if err = concatenate(ctx, tmpFiles, outPath, outFormat, parallelism); err != nil {
		return err
	}
	if opts.StatsPath != "" {
		if err = writeStats(ctx, opts.StatsPath, &stats); err != nil {
			return err
		}
	}
	log.Printf("Consensus: wrote %d region(s): %d reference, %d alternative, %d hetero, %d unknown base(s)",
		stats.Regions, stats.Reference, stats.Alternative, stats.Hetero, stats.Unknown)
	return nil
}

// choosePolicy samples the named sample, the first sample if name is empty,
// or the ALT column of sites-only files.
func choosePolicy(src *variant.Source, name string) (variant.Policy, error) {
	samples := src.Header().Samples
	if name != "" {
		idx := src.Header().SampleIndex(name)
		if idx < 0 {
			return nil, errors.E(errors.NotExist, "Consensus: sample not in VCF", name)
		}
		return variant.GenotypePolicy{Sample: idx}, nil
	}
	if len(samples) == 0 {
		log.Printf("Consensus: no samples, using ALT alleles")
		return variant.AltPolicy{}, nil
	}
	return variant.GenotypePolicy{Sample: 0}, nil
}

// loadRegions returns the regions selected by opts.  Without a region flag
// every contig of the VCF header, or of the reference when the header lists
// none, is written whole.
func loadRegions(ctx context.Context, opts *Opts, src *variant.Source, fa fasta.Fasta) ([]consensus.Region, error) {
	var (
		entries []interval.Entry
		err     error
	)
	switch {
	case opts.Region != "":
		var e interval.Entry
		if e, err = interval.ParseRegionString(opts.Region); err != nil {
			return nil, err
		}
		entries = []interval.Entry{e}
	case opts.BedPath != "":
		entries, err = interval.ReadBEDEntries(ctx, opts.BedPath)
	case opts.GTFPath != "":
		entries, err = interval.ReadGTFEntries(ctx, opts.GTFPath, opts.Feature)
	default:
		contigs := src.Contigs()
		if len(contigs) == 0 && fa != nil {
			contigs = fa.SeqNames()
		}
		regions := make([]consensus.Region, len(contigs))
		for i, c := range contigs {
			regions[i] = consensus.Region{Contig: c, End: -1}
		}
		return regions, nil
	}
	if err != nil {
		return nil, err
	}
	regions := make([]consensus.Region, len(entries))
	for i, e := range entries {
		regions[i] = consensus.Region{
			Contig: e.ChrName,
			Start:  int(e.Start0),
			End:    int(e.End),
			Strand: consensus.ParseStrand(e.Strand),
			Type:   e.Type,
			Name:   e.Name,
		}
	}
	return regions, nil
}

// recordHeader returns the FASTA name and description of region.
func recordHeader(r consensus.Region) (name, desc string) {
	loc := r.String()
	if r.Start == 0 && r.End < 0 {
		loc = r.Contig
	}
	if r.Strand != consensus.StrandNone {
		loc += ":" + r.Strand.String()
	}
	if r.Name == "" {
		return loc, ""
	}
	desc = loc
	if r.Type != "" {
		desc += " " + r.Type
	}
	return r.Name, desc
}

// writeRegions writes regions, in order, as FASTA records to out.
func writeRegions(ctx context.Context, vcfPath string, policy variant.Policy, filter variant.Filter,
	ref consensus.ReferenceSource, copts consensus.Opts, lineWidth int,
	regions []consensus.Region, out io.Writer, stats *consensus.Stats) (err error) {
	src, err := variant.NewSource(ctx, vcfPath, policy, filter)
	if err != nil {
		return err
	}
	defer func() {
		if e := src.Close(); e != nil && err == nil {
			err = e
		}
	}()
	bw := bufio.NewWriterSize(out, 1<<20)
	fw := fasta.NewWriter(bw, lineWidth)
	w := consensus.NewWriter(src, ref, copts)
	for _, r := range regions {
		name, desc := recordHeader(r)
		if err = fw.Header(name, desc); err != nil {
			return err
		}
		if err = w.Write(r, fw, stats); err != nil {
			return errors.E(err, r.String())
		}
	}
	if err = fw.Close(); err != nil {
		return err
	}
	log.Debug.Printf("Consensus: job done, %d region(s), %d VCF record(s), %d filtered",
		len(regions), src.Stats.Records, src.Stats.Filtered)
	return bw.Flush()
}

// concatenate copies the per-job outputs, in job order, to outPath.
func concatenate(ctx context.Context, tmpFiles []*os.File, outPath string, outFormat format, parallelism int) (err error) {
	var dst io.Writer = os.Stdout
	if outPath != "" && outPath != "-" {
		var out file.File
		if out, err = file.Create(ctx, outPath); err != nil {
			return err
		}
		defer file.CloseAndReport(ctx, out, &err)
		dst = out.Writer(ctx)
	}
	var zw io.WriteCloser
	switch outFormat {
	case formatFastaGz:
		zw = pgzip.NewWriter(dst)
	case formatFastaBgz:
		zw = bgzf.NewWriter(dst, parallelism)
	}
	if zw != nil {
		defer func() {
			if e := zw.Close(); e != nil && err == nil {
				err = e
			}
		}()
		dst = zw
	}
	for _, f := range tmpFiles {
		if _, err = f.Seek(0, 0); err != nil {
			return err
		}
		if _, err = io.Copy(dst, f); err != nil {
			return err
		}
	}
	return nil
}

func writeStats(ctx context.Context, path string, stats *consensus.Stats) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	return stats.Report(out.Writer(ctx))
}
