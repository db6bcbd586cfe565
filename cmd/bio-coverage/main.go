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
bio-coverage reports aligned-read depth statistics (mean, standard deviation,
min, max, and breadth) for each region of a BED file or region string.
*/

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/consensus/coverage"
	"github.com/grailbio/consensus/interval"
)

var (
	bedPath     = flag.String("bed", "", "Input BED path; this xor -region required")
	region      = flag.String("region", "", "Region string <contig ID>:<1-based first pos>-<last pos>; this xor -bed required")
	flagExclude = flag.Int("flag-exclude", coverage.DefaultOpts.FlagExclude, "Reads with a FLAG bit intersecting this value are skipped")
	mapq        = flag.Int("mapq", coverage.DefaultOpts.MinMapQ, "Reads with MAPQ below this level are skipped")
	minDepth    = flag.Int("min-depth", coverage.DefaultOpts.MinDepth, "Depth threshold of the breadth_min column")
	outPath     = flag.String("out", "-", "Output TSV path; '-' writes to stdout")
	parallelism = flag.Int("parallelism", coverage.DefaultOpts.Parallelism, "Maximum number of contigs scanned simultaneously")
)

func bioCoverageUsage() {
	fmt.Printf("Usage: %s [OPTIONS] bampath\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = bioCoverageUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 1 {
		log.Fatalf("Expected exactly one positional argument (bampath); please check flag syntax: '%s'", strings.Join(flag.Args(), " "))
	}
	if (*bedPath == "") == (*region == "") {
		log.Fatalf("Exactly one of -bed and -region is required")
	}
	ctx := vcontext.Background()
	var (
		entries []interval.Entry
		err     error
	)
	if *bedPath != "" {
		entries, err = interval.ReadBEDEntries(ctx, *bedPath)
	} else {
		var e interval.Entry
		if e, err = interval.ParseRegionString(*region); err == nil {
			entries = []interval.Entry{e}
		}
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
	opts := coverage.Opts{
		MinMapQ:     *mapq,
		FlagExclude: *flagExclude,
		MinDepth:    *minDepth,
		Parallelism: *parallelism,
	}
	results, err := coverage.Compute(ctx, flag.Arg(0), entries, opts)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if *outPath == "-" {
		err = coverage.WriteTSV(os.Stdout, results)
	} else {
		err = writeFile(ctx, *outPath, results)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Debug.Printf("exiting")
}

func writeFile(ctx context.Context, path string, results []coverage.Result) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	return coverage.WriteTSV(out.Writer(ctx), results)
}
