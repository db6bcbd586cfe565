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
package main

/*
bio-consensus writes the consensus sequence of a VCF sample over a reference
as FASTA.  Heterozygous SNPs are written as IUPAC ambiguity codes,
heterozygous insertions in parentheses and heterozygous deletions in square
brackets.  Regions on the minus strand are reverse-complemented.
*/

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/consensus/consensus/run"
)

var (
	faPath         = flag.String("fa", run.DefaultOpts.FaPath, "Reference FASTA path (.fai index used if present); without it, positions with no call are written as -unknown")
	region         = flag.String("region", run.DefaultOpts.Region, "Write only the specified region. Format as <contig ID>:<1-based first pos>-<last pos>[:+|-], <contig ID>:<1-based pos>, or just <contig ID>")
	bedPath        = flag.String("bed", run.DefaultOpts.BedPath, "Write one record per BED entry; name (col 4) and strand (col 6) are honored")
	gtfPath        = flag.String("gtf", run.DefaultOpts.GTFPath, "Write one record per GTF feature of type -feature")
	feature        = flag.String("feature", run.DefaultOpts.Feature, "GTF feature type used with -gtf")
	sample         = flag.String("sample", run.DefaultOpts.Sample, "VCF sample name; default is the first sample, or the ALT column of sites-only VCFs")
	minQual        = flag.Float64("min-qual", run.DefaultOpts.MinQual, "Records with QUAL below this level are skipped")
	minDepth       = flag.Int("min-depth", run.DefaultOpts.MinDepth, "Records with sample (or INFO) DP below this level are skipped")
	passOnly       = flag.Bool("pass-only", run.DefaultOpts.PassOnly, "Skip records whose FILTER is not PASS or '.'")
	excludeBedPath = flag.String("exclude-bed", run.DefaultOpts.ExcludeBedPath, "Skip records overlapping this BED file")
	format         = flag.String("format", run.DefaultOpts.Format, "Output format; 'fasta', 'fasta-gz', and 'fasta-bgz' supported")
	outPath        = flag.String("out", "-", "Output path; '-' writes to stdout")
	statsPath      = flag.String("stats", run.DefaultOpts.StatsPath, "If set, write a TSV summary of emitted bases to this path")
	lineWidth      = flag.Int("line-width", run.DefaultOpts.LineWidth, "FASTA sequence line width")
	blockSize      = flag.Int("block-size", run.DefaultOpts.BlockSize, "In-memory buffer size for minus-strand regions; longer regions spill to -temp-dir")
	tempDir        = flag.String("temp-dir", run.DefaultOpts.TempDir, "Directory to write temporary files to (default os.TempDir())")
	parallelism    = flag.Int("parallelism", run.DefaultOpts.Parallelism, "Maximum number of simultaneous region jobs; 0 = runtime.NumCPU()")
	unknown        = flag.String("unknown", run.DefaultOpts.Unknown, "Character written where neither a call nor a reference base is available")
)

func bioConsensusUsage() {
	fmt.Printf("Usage: %s [OPTIONS] vcfpath\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = bioConsensusUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 1 {
		log.Fatalf("Expected exactly one positional argument (vcfpath); please check flag syntax: '%s'", strings.Join(flag.Args(), " "))
	}
	ctx := vcontext.Background()
	opts := run.Opts{
		FaPath:         *faPath,
		Region:         *region,
		BedPath:        *bedPath,
		GTFPath:        *gtfPath,
		Feature:        *feature,
		Sample:         *sample,
		MinQual:        *minQual,
		MinDepth:       *minDepth,
		PassOnly:       *passOnly,
		ExcludeBedPath: *excludeBedPath,
		Format:         *format,
		StatsPath:      *statsPath,
		LineWidth:      *lineWidth,
		BlockSize:      *blockSize,
		TempDir:        *tempDir,
		Parallelism:    *parallelism,
		Unknown:        *unknown,
	}
	if err := run.Consensus(ctx, flag.Arg(0), *outPath, &opts); err != nil {
		log.Fatalf("%v", err)
	}
	log.Debug.Printf("exiting")
}
