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
	"math/rand"
	"testing"

	"github.com/grailbio/consensus/consensus"
	"github.com/grailbio/testutil/expect"
)

var allCodes = []byte("ACMGRSVTWYHKDBN")

func TestEncode(t *testing.T) {
	enc := consensus.NewIUPACEncoder(consensus.DefaultUnknown)
	for _, tt := range []struct {
		bases string
		want  byte
	}{
		{"", '.'},
		{"A", 'A'},
		{"AA", 'A'},
		{"AG", 'R'},
		{"GA", 'R'},
		{"CT", 'Y'},
		{"ACG", 'V'},
		{"ACGT", 'N'},
		{"RY", 'N'},
		{"acg", 'V'},
		{"U", 'T'},
		{"AU", 'W'},
		{"--", '.'},
		{"A-", 'A'},
	} {
		expect.EQ(t, enc.Encode([]byte(tt.bases)), tt.want, "bases=%q", tt.bases)
	}
	expect.EQ(t, consensus.NewIUPACEncoder('?').Encode(nil), byte('?'))
}

func TestEncodeOrderIndependent(t *testing.T) {
	enc := consensus.NewIUPACEncoder(consensus.DefaultUnknown)
	r := rand.New(rand.NewSource(0))
	for iter := 0; iter < 1000; iter++ {
		bases := make([]byte, 1+r.Intn(6))
		for i := range bases {
			bases[i] = allCodes[r.Intn(len(allCodes))]
		}
		want := enc.Encode(bases)
		r.Shuffle(len(bases), func(i, j int) { bases[i], bases[j] = bases[j], bases[i] })
		expect.EQ(t, enc.Encode(bases), want, "bases=%q", bases)

		// Folding a prefix first gives the same answer as folding everything.
		k := r.Intn(len(bases))
		partial := enc.Encode(bases[:k])
		if k == 0 {
			partial = bases[0]
		}
		expect.EQ(t, enc.Encode(append([]byte{partial}, bases[k:]...)), want, "bases=%q k=%d", bases, k)
	}
}

func TestComplement(t *testing.T) {
	for _, tt := range []struct{ in, want byte }{
		{'A', 'T'}, {'C', 'G'}, {'G', 'C'}, {'T', 'A'},
		{'R', 'Y'}, {'Y', 'R'}, {'S', 'S'}, {'W', 'W'},
		{'K', 'M'}, {'M', 'K'}, {'B', 'V'}, {'V', 'B'},
		{'D', 'H'}, {'H', 'D'}, {'N', 'N'},
		{'a', 't'}, {'r', 'y'}, {'U', 'A'},
		{'x', 'N'}, {'-', 'N'},
	} {
		expect.EQ(t, consensus.Complement(tt.in), tt.want, "in=%c", tt.in)
	}
	for _, c := range allCodes {
		expect.EQ(t, consensus.Complement(consensus.Complement(c)), c, "code=%c", c)
	}
}

func TestInvertingEncoder(t *testing.T) {
	enc := consensus.NewInvertingEncoder(consensus.NewIUPACEncoder(consensus.DefaultUnknown))
	expect.EQ(t, enc.Encode([]byte("A")), byte('T'))
	expect.EQ(t, enc.Encode([]byte("AG")), byte('Y'))
	expect.EQ(t, enc.Encode([]byte("ACGT")), byte('N'))
	expect.EQ(t, enc.Encode(nil), byte('.'))
	expect.EQ(t, enc.Unknown(), byte('.'))
	expect.EQ(t, string(enc.EncodeReference(nil, []byte("TGAC.n"))), "ACTG.n")
	expect.EQ(t, string(enc.EncodeReference([]byte("x"), []byte("AAGG"))), "xTTCC")

	fwd := consensus.NewIUPACEncoder(consensus.DefaultUnknown)
	expect.EQ(t, string(fwd.EncodeReference(nil, []byte("TGAC"))), "TGAC")
}
