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
	"math/rand"
	"testing"

	"github.com/grailbio/consensus/consensus"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func newObs(start int, ref, allele string, p consensus.Provenance) consensus.Observation {
	return consensus.NewObservation("chr1", start, []byte(ref), []byte(allele), p)
}

func serialize(t *testing.T, obs []consensus.Observation, ref string, stats *consensus.Stats) string {
	var refBytes []byte
	if ref != "" {
		refBytes = []byte(ref)
	}
	c := consensus.Merge(obs, 0, len(ref)-1, refBytes, stats)
	var buf bytes.Buffer
	n, err := consensus.Serialize(&buf, c, consensus.NewIUPACEncoder(consensus.DefaultUnknown), stats)
	assert.NoError(t, err)
	assert.EQ(t, n, buf.Len())
	return buf.String()
}

func TestSerialize(t *testing.T) {
	const (
		ref = consensus.Reference
		alt = consensus.Alternative
		het = consensus.Hetero
	)
	for _, tt := range []struct {
		name string
		ref  string
		obs  []consensus.Observation
		want string
	}{
		{"reference", "ACGT", nil, "ACGT"},
		{"snp", "ACGT", []consensus.Observation{newObs(1, "C", "T", alt)}, "ATGT"},
		{"het snp", "ACGT", []consensus.Observation{newObs(1, "C", "T", het)}, "AYGT"},
		{"het snp pair", "ACGT", []consensus.Observation{
			newObs(1, "C", "T", het),
			newObs(1, "C", "A", het),
		}, "AHGT"},
		{"hom deletion", "GACT", []consensus.Observation{newObs(0, "GAC", "G", alt)}, "GT"},
		{"het deletion", "ACA", []consensus.Observation{
			newObs(0, "AC", "AC", ref),
			newObs(0, "AC", "A", het),
		}, "A[C]A"},
		{"het insertion", "AG", []consensus.Observation{newObs(0, "A", "AT", het)}, "A(T)G"},
		{"hom insertion", "AG", []consensus.Observation{newObs(0, "A", "ATC", alt)}, "ATCG"},
		{"nested deletion", "GACGT", []consensus.Observation{
			newObs(0, "GACGT", "G", het),
			newObs(2, "CG", "C", het),
		}, "G[AC[G]T]"},
		{"insertion before deletion", "ACGT", []consensus.Observation{
			newObs(1, "CG", "C", het),
			newObs(1, "C", "CTT", het),
		}, "AC(TT)[G]T"},
		{"insertion before deletion, reordered", "ACGT", []consensus.Observation{
			newObs(1, "C", "CTT", het),
			newObs(1, "CG", "C", het),
		}, "AC(TT)[G]T"},
		{"insertion inside deletion", "ACGT", []consensus.Observation{
			newObs(0, "ACG", "A", het),
			newObs(1, "C", "CT", het),
		}, "A[C(T)G]T"},
		{"complex", "ACGTA", []consensus.Observation{
			newObs(0, "ACG", "TT", alt),
			newObs(3, "TA", "CCC", alt),
		}, "TTCCC"},
	} {
		var stats consensus.Stats
		expect.EQ(t, serialize(t, tt.obs, tt.ref, &stats), tt.want, tt.name)
	}
}

func TestSerializeUnknown(t *testing.T) {
	obs := []consensus.Observation{newObs(2, "C", "T", consensus.Alternative)}
	c := consensus.Merge(obs, 0, 3, nil, &consensus.Stats{})
	var (
		buf   bytes.Buffer
		stats consensus.Stats
	)
	_, err := consensus.Serialize(&buf, c, consensus.NewIUPACEncoder('?'), &stats)
	assert.NoError(t, err)
	expect.EQ(t, buf.String(), "??T?")
	expect.EQ(t, stats.Unknown, int64(3))
	expect.EQ(t, stats.Alternative, int64(1))
}

func TestSerializeStats(t *testing.T) {
	var stats consensus.Stats
	serialize(t, []consensus.Observation{
		newObs(0, "A", "A", consensus.Reference),
		newObs(0, "A", "A", consensus.Alternative),
		newObs(1, "C", "T", consensus.Alternative),
		newObs(2, "G", "A", consensus.Hetero),
		newObs(3, "TAC", "T", consensus.Alternative),
		newObs(6, "G", "GTT", consensus.Hetero),
	}, "ACGTACGN", &stats)
	expect.EQ(t, stats, consensus.Stats{
		Reference:       3,
		Alternative:     3,
		Hetero:          1,
		Unknown:         1,
		Insertions:      1,
		InsertionLength: 2,
		Deletions:       1,
		DeletionLength:  2,
		InsertedBases:   2,
		DeletedBases:    2,
	})
}

func TestSerializeHeteroAnchors(t *testing.T) {
	var stats consensus.Stats
	got := serialize(t, []consensus.Observation{
		newObs(1, "CG", "C", consensus.Hetero),
		newObs(4, "A", "AT", consensus.Hetero),
		newObs(5, "C", "T", consensus.Hetero),
	}, "ACGTACGT", &stats)
	expect.EQ(t, got, "AC[G]TA(T)YGT")
	// Anchors fold to their reference base; only the SNP is ambiguous.
	expect.EQ(t, stats.Hetero, int64(1))
	expect.EQ(t, stats.Reference, int64(7))
	expect.EQ(t, stats.Alternative, int64(1))
}

// checkBrackets verifies that brackets in s are balanced and properly nested.
func checkBrackets(t *testing.T, s string) {
	var stack []byte
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case consensus.DelOpen, consensus.InsOpen:
			stack = append(stack, c)
		case consensus.DelClose, consensus.InsClose:
			open := consensus.DelOpen
			if c == consensus.InsClose {
				open = consensus.InsOpen
			}
			if len(stack) == 0 || stack[len(stack)-1] != open {
				t.Fatalf("unbalanced %c at %d in %q", c, i, s)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		t.Fatalf("unclosed %q in %q", stack, s)
	}
}

func TestSerializeBracketBalance(t *testing.T) {
	const bases = "ACGT"
	r := rand.New(rand.NewSource(1))
	for iter := 0; iter < 2000; iter++ {
		n := 5 + r.Intn(20)
		ref := make([]byte, n)
		for i := range ref {
			ref[i] = bases[r.Intn(4)]
		}
		var obs []consensus.Observation
		for k := r.Intn(8); k >= 0; k-- {
			start := r.Intn(n)
			p := consensus.Hetero
			if r.Intn(3) == 0 {
				p = consensus.Alternative
			}
			refLen := 1 + r.Intn(4)
			if start+refLen > n {
				refLen = n - start
			}
			allele := []byte{ref[start]}
			switch r.Intn(3) {
			case 0: // deletion
			case 1: // insertion
				refLen = 1
				for m := 1 + r.Intn(3); m > 0; m-- {
					allele = append(allele, bases[r.Intn(4)])
				}
			default: // substitution
				allele = append([]byte{}, ref[start:start+refLen]...)
				allele[0] = bases[r.Intn(4)]
			}
			obs = append(obs, newObs(start, string(ref[start:start+refLen]), string(allele), p))
		}
		var stats consensus.Stats
		out := serialize(t, obs, string(ref), &stats)
		checkBrackets(t, out)
	}
}
