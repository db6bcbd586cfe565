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
	"io/ioutil"
	"math/rand"
	"testing"

	"github.com/grailbio/consensus/consensus"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func reverseString(t *testing.T, s string) string {
	var buf bytes.Buffer
	w := consensus.NewReversingWriter(&buf, len(s))
	n, err := w.Write([]byte(s))
	assert.NoError(t, err)
	assert.EQ(t, n, len(s))
	assert.NoError(t, w.Close())
	return buf.String()
}

func TestReversingWriter(t *testing.T) {
	for _, tt := range []struct{ in, want string }{
		{"", ""},
		{"A", "A"},
		{"[", "]"},
		{"ACGT", "TGCA"},
		{"AC[G(T)]", "[(T)G]CA"},
		{"G[AC[G]T]", "[T[G]CA]G"},
		{"A(T)G", "G(T)A"},
	} {
		expect.EQ(t, reverseString(t, tt.in), tt.want, "in=%q", tt.in)
	}
}

func TestReversingWriterExceeded(t *testing.T) {
	var buf bytes.Buffer
	w := consensus.NewReversingWriter(&buf, 3)
	n, err := w.Write([]byte("ABCD"))
	expect.EQ(t, n, 3)
	expect.EQ(t, err, consensus.ErrBufferExceeded)
	expect.EQ(t, w.WriteByte('E'), consensus.ErrBufferExceeded)
	assert.NoError(t, w.Flush())
	expect.EQ(t, buf.String(), "CBA")
	assert.NoError(t, w.WriteByte('E'))
	expect.EQ(t, w.Len(), 1)
	expect.EQ(t, w.Cap(), 3)
}

// randomBracketed returns a random sequence with balanced brackets.
func randomBracketed(r *rand.Rand, n int) []byte {
	var (
		out   []byte
		stack []byte
	)
	for len(out) < n {
		switch k := r.Intn(10); {
		case k == 0:
			stack = append(stack, consensus.DelClose)
			out = append(out, consensus.DelOpen)
		case k == 1:
			stack = append(stack, consensus.InsClose)
			out = append(out, consensus.InsOpen)
		case k == 2 && len(stack) > 0:
			out = append(out, stack[len(stack)-1])
			stack = stack[:len(stack)-1]
		default:
			out = append(out, "ACGTRYN."[r.Intn(8)])
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out = append(out, stack[i])
	}
	return out
}

func TestReversalInvolution(t *testing.T) {
	r := rand.New(rand.NewSource(0))
	for iter := 0; iter < 100; iter++ {
		s := string(randomBracketed(r, r.Intn(200)))
		once := reverseString(t, s)
		checkBrackets(t, once)
		expect.EQ(t, reverseString(t, once), s)
	}
}

func TestCachedReversingWriter(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)

	r := rand.New(rand.NewSource(0))
	data := randomBracketed(r, 10000)
	want := reverseString(t, string(data))
	for _, blockSize := range []int{13, 100, 4096, len(data), 2 * len(data)} {
		var buf bytes.Buffer
		w := consensus.NewCachedReversingWriter(&buf, blockSize, tempDir)
		// Mix byte and slice writes of varying size.
		for p := data; len(p) > 0; {
			if r.Intn(2) == 0 {
				assert.NoError(t, w.WriteByte(p[0]))
				p = p[1:]
				continue
			}
			k := 1 + r.Intn(300)
			if k > len(p) {
				k = len(p)
			}
			n, err := w.Write(p[:k])
			assert.NoError(t, err)
			assert.EQ(t, n, k)
			p = p[k:]
		}
		if blockSize < len(data) {
			expect.True(t, w.NumSegments() > 0)
		} else {
			expect.EQ(t, w.NumSegments(), 0)
		}
		assert.NoError(t, w.Close())
		expect.EQ(t, w.NumSegments(), 0)
		expect.EQ(t, buf.String(), want, "blockSize=%d", blockSize)

		files, err := ioutil.ReadDir(tempDir)
		assert.NoError(t, err)
		expect.EQ(t, len(files), 0, "blockSize=%d", blockSize)
	}
}

func TestCachedReversingWriterFlush(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)

	var buf bytes.Buffer
	w := consensus.NewCachedReversingWriter(&buf, 2, tempDir)
	_, err := w.Write([]byte("ACG(T)"))
	assert.NoError(t, err)
	assert.NoError(t, w.Flush())
	expect.EQ(t, buf.String(), "(T)GCA")
	_, err = w.Write([]byte("[GG]"))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	expect.EQ(t, buf.String(), "(T)GCA[GG]")
}
