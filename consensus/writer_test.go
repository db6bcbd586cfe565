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
package consensus_test

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"strings"
	"testing"

	"github.com/grailbio/consensus/consensus"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

type sliceSource struct {
	obs     []consensus.Observation
	lengths map[string]int
	// order, if set, lists the contigs in stream order.
	order  []string
	i      int
	scans  int
	resets int
}

func (s *sliceSource) Scan() bool {
	s.scans++
	if s.i >= len(s.obs) {
		return false
	}
	s.i++
	return true
}

func (s *sliceSource) Observation() consensus.Observation { return s.obs[s.i-1] }
func (s *sliceSource) Err() error                         { return nil }

func (s *sliceSource) Reset() error {
	s.i = 0
	s.resets++
	return nil
}

func (s *sliceSource) ContigLength(contig string) (int, bool) {
	n, ok := s.lengths[contig]
	return n, ok
}

func (s *sliceSource) ContigIndex(contig string) (int, bool) {
	for i, c := range s.order {
		if c == contig {
			return i, true
		}
	}
	return 0, false
}

type mapReference map[string]string

func (m mapReference) Read(contig string, start, length int) ([]byte, error) {
	seq, ok := m[contig]
	if !ok {
		return nil, fmt.Errorf("unknown contig %s", contig)
	}
	end := start + length
	if end > len(seq) {
		end = len(seq)
	}
	if start > end {
		start = end
	}
	return []byte(seq[start:end]), nil
}

func (m mapReference) Len(contig string) (int, error) {
	seq, ok := m[contig]
	if !ok {
		return 0, fmt.Errorf("unknown contig %s", contig)
	}
	return len(seq), nil
}

func contigObs(contig string, start int, ref, allele string, p consensus.Provenance) consensus.Observation {
	return consensus.NewObservation(contig, start, []byte(ref), []byte(allele), p)
}

var (
	testRef = mapReference{
		"chr1": "AAAACAAAAG",
		"chr2": "TGAC",
	}
	testObs = []consensus.Observation{
		contigObs("chr1", 3, "AC", "AC", consensus.Reference),
		contigObs("chr1", 3, "AC", "A", consensus.Hetero),
		contigObs("chr1", 7, "A", "A", consensus.Reference),
		contigObs("chr1", 7, "A", "G", consensus.Alternative),
		contigObs("chr2", 1, "G", "C", consensus.Hetero),
	}
)

func newTestSource() *sliceSource {
	return &sliceSource{obs: testObs}
}

func write(t *testing.T, w *consensus.Writer, r consensus.Region, stats *consensus.Stats) string {
	var buf bytes.Buffer
	assert.NoError(t, w.Write(r, &buf, stats))
	return buf.String()
}

func TestWriterReferenceOnly(t *testing.T) {
	var stats consensus.Stats
	w := consensus.NewWriter(&sliceSource{}, mapReference{"chr1": "ACGTACGT"}, consensus.DefaultOpts)
	expect.EQ(t, write(t, w, consensus.Region{Contig: "chr1", End: -1}, &stats), "ACGTACGT")
	expect.EQ(t, stats.Regions, int64(1))
	expect.EQ(t, stats.Reference, int64(8))
	expect.EQ(t, stats.Windows, int64(0))
}

func TestWriterReverseStrand(t *testing.T) {
	var stats consensus.Stats
	w := consensus.NewWriter(&sliceSource{}, mapReference{"chr1": "TGAC"}, consensus.DefaultOpts)
	expect.EQ(t, write(t, w, consensus.Region{Contig: "chr1", End: -1}, &stats), "TGAC")
	expect.EQ(t, write(t, w, consensus.Region{Contig: "chr1", End: -1, Strand: consensus.StrandRev}, &stats), "GTCA")
}

func TestWriterVariants(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)

	src := newTestSource()
	opts := consensus.DefaultOpts
	opts.BlockSize = 3
	opts.TempDir = tempDir
	w := consensus.NewWriter(src, testRef, opts)
	var stats consensus.Stats

	expect.EQ(t, write(t, w, consensus.Region{Contig: "chr1", End: -1}, &stats), "AAAA[C]AAGAG")
	expect.EQ(t, stats.Windows, int64(2))
	expect.EQ(t, stats.Deletions, int64(1))
	expect.EQ(t, stats.Alternative, int64(1))
	// The deletion's bases fold to themselves.
	expect.EQ(t, stats.Hetero, int64(0))

	// Starting inside a deletion keeps its bracketed tail.
	expect.EQ(t, write(t, w, consensus.Region{Contig: "chr1", Start: 4, End: 8}, &stats), "[C]AAG")
	expect.EQ(t, src.resets, 1)

	expect.EQ(t, write(t, w, consensus.Region{Contig: "chr1", End: -1, Strand: consensus.StrandRev}, &stats), "CTCTT[G]TTTT")
	expect.EQ(t, src.resets, 2)
	expect.EQ(t, write(t, w, consensus.Region{Contig: "chr2", End: -1}, &stats), "TSAC")
	expect.EQ(t, src.resets, 2)

	files, err := ioutil.ReadDir(tempDir)
	assert.NoError(t, err)
	expect.EQ(t, len(files), 0)
}

func TestWriterAdjacentRegions(t *testing.T) {
	src := newTestSource()
	w := consensus.NewWriter(src, testRef, consensus.DefaultOpts)
	var stats consensus.Stats
	got := write(t, w, consensus.Region{Contig: "chr1", End: 5}, &stats) +
		write(t, w, consensus.Region{Contig: "chr1", Start: 5, End: 10}, &stats)
	expect.EQ(t, got, "AAAA[C]AAGAG")
	expect.EQ(t, src.resets, 0)
	expect.EQ(t, stats.Regions, int64(2))
}

func TestWriterResync(t *testing.T) {
	src := newTestSource()
	w := consensus.NewWriter(src, testRef, consensus.DefaultOpts)
	var stats consensus.Stats
	expect.EQ(t, write(t, w, consensus.Region{Contig: "chr2", End: -1}, &stats), "TSAC")
	expect.EQ(t, src.resets, 0)
	// chr1 was skipped on the way to chr2.
	expect.EQ(t, write(t, w, consensus.Region{Contig: "chr1", Start: 6, End: 9}, &stats), "AGA")
	expect.EQ(t, src.resets, 1)
	expect.EQ(t, write(t, w, consensus.Region{Contig: "chr2", Start: 2, End: 4}, &stats), "AC")
	expect.EQ(t, src.resets, 1)
}

func TestWriterNoReference(t *testing.T) {
	src := &sliceSource{
		obs:     []consensus.Observation{contigObs("chrX", 2, "A", "G", consensus.Alternative)},
		lengths: map[string]int{"chrX": 6},
	}
	var stats consensus.Stats
	w := consensus.NewWriter(src, nil, consensus.DefaultOpts)
	expect.EQ(t, write(t, w, consensus.Region{Contig: "chrX", End: -1}, &stats), "..G...")
	expect.EQ(t, stats.Unknown, int64(5))

	var buf bytes.Buffer
	err := w.Write(consensus.Region{Contig: "chrY", End: -1}, &buf, &stats)
	expect.NotNil(t, err)

	err = w.Write(consensus.Region{Contig: "chrX", Start: 7, End: 3}, &buf, &stats)
	expect.NotNil(t, err)
}

func TestWriterEmptyContig(t *testing.T) {
	src := &sliceSource{
		lengths: map[string]int{"chrM": 0, "chr1": 10, "chr2": 200},
		order:   []string{"chrM", "chr1", "chr2"},
	}
	for i := 0; i < 100; i++ {
		src.obs = append(src.obs, contigObs("chr2", 2*i, "A", "G", consensus.Alternative))
	}
	var stats consensus.Stats
	w := consensus.NewWriter(src, nil, consensus.DefaultOpts)
	expect.EQ(t, write(t, w, consensus.Region{Contig: "chr1", End: -1}, &stats), "..........")
	// Only the first chr2 observation is read ahead.
	expect.EQ(t, src.scans, 1)
	expect.EQ(t, write(t, w, consensus.Region{Contig: "chrM", End: -1}, &stats), "")
	expect.EQ(t, src.scans, 1)
	got := write(t, w, consensus.Region{Contig: "chr2", End: -1}, &stats)
	expect.EQ(t, len(got), 200)
	expect.EQ(t, got[:4], "G.G.")
	expect.EQ(t, src.resets, 0)
	expect.EQ(t, src.scans, 101)
}

func TestWriterMissingReferenceContig(t *testing.T) {
	src := &sliceSource{
		obs:     []consensus.Observation{contigObs("chr3", 1, "A", "G", consensus.Alternative)},
		lengths: map[string]int{"chr3": 6},
	}
	var buf bytes.Buffer
	var stats consensus.Stats
	w := consensus.NewWriter(src, testRef, consensus.DefaultOpts)
	err := w.Write(consensus.Region{Contig: "chr3", End: -1}, &buf, &stats)
	assert.NotNil(t, err)
	assert.HasSubstr(t, err.Error(), "unknown contig chr3")
	expect.EQ(t, buf.Len(), 0)
}

func TestWriteRegion(t *testing.T) {
	var out, report bytes.Buffer
	err := consensus.WriteRegion(consensus.Region{Contig: "chr1", End: -1}, newTestSource(), testRef, &out, &report, consensus.DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, out.String(), "AAAA[C]AAGAG")
	expect.True(t, strings.Contains(report.String(), "regions\t1\n"))
	expect.True(t, strings.Contains(report.String(), "deletions\t1\n"))
}

func TestRegionString(t *testing.T) {
	expect.EQ(t, consensus.Region{Contig: "chr1", Start: 9, End: 20}.String(), "chr1:10-20")
	expect.EQ(t, consensus.Region{Contig: "chr1", End: -1}.String(), "chr1:1-")
	expect.EQ(t, consensus.StrandRev.String(), "-")
	expect.EQ(t, consensus.ParseStrand('+'), consensus.StrandFwd)
	expect.EQ(t, consensus.ParseStrand('x'), consensus.StrandNone)
}
