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
	"io"
	"math/bits"
)

// Bracket characters.  Reversal swaps each open/close pair.
const (
	DelOpen  byte = '['
	DelClose byte = ']'
	InsOpen  byte = '('
	InsClose byte = ')'
)

// serializer carries bracket state across one chain traversal.
type serializer struct {
	c     *Chain
	enc   Encoder
	stats *Stats
	// delOpen and insOpen count the deletion and insertion brackets currently
	// open.  Insertion brackets are only ever opened inside the deletion
	// brackets already open at their anchor, so the two counts describe a
	// properly nested stack.
	delOpen, insOpen int
	buf              []byte
	scratch          []byte
}

// Serialize writes the consensus bytes of c to w, encoding every slot with
// enc, and returns the number of bytes written.
//
// A '[' is opened for each heterozygosity level of a deleted coordinate and
// closed when the level drops; a '(' surrounds each run of heterozygous
// Inserted nodes.  At a slot where both kinds change, insertion brackets are
// closed first, then deletion brackets are adjusted, then insertion brackets
// opened, so an insertion never straddles a deletion boundary.  Homozygously
// deleted slots are dropped.
func Serialize(w io.Writer, c *Chain, enc Encoder, stats *Stats) (int, error) {
	s := serializer{
		c:     c,
		enc:   enc,
		stats: stats,
		buf:   make([]byte, 0, c.NumNodes()+8),
	}
	for i := 0; i != noNode; i = c.nodes[i].next {
		s.node(i)
	}
	s.closeAll()
	return w.Write(s.buf)
}

// levels returns the number of deletion and insertion brackets which must be
// open around node i.
func (s *serializer) levels(i int) (del, ins int) {
	c := s.c
	n := &c.nodes[i]
	if n.Kind == Anchored {
		if n.deleted {
			del = n.het
		}
		return
	}
	a := &c.nodes[n.anchor]
	if a.deleted {
		del = a.het
	}
	if n.het > 0 {
		ins = 1
	}
	return
}

func (s *serializer) node(i int) {
	del, ins := s.levels(i)
	for s.insOpen > ins {
		s.buf = append(s.buf, InsClose)
		s.insOpen--
	}
	for s.delOpen > del {
		s.buf = append(s.buf, DelClose)
		s.delOpen--
	}
	for s.delOpen < del {
		s.buf = append(s.buf, DelOpen)
		s.delOpen++
	}
	for s.insOpen < ins {
		s.buf = append(s.buf, InsOpen)
		s.insOpen++
	}
	s.emit(i)
}

// emit appends the byte(s) for node i and updates the per-node counters.
func (s *serializer) emit(i int) {
	c, st := s.c, s.stats
	n := &c.nodes[i]
	lvl := c.HetLevel(i)
	if c.Deleted(i) && lvl == 0 {
		if n.Kind == Anchored {
			st.DeletedBases++
		}
		return
	}
	if n.Kind == Inserted {
		st.InsertedBases++
	}
	switch {
	case len(n.Variants) > 0:
		bases := n.Variants
		if lvl > 0 && n.Ref != 0 {
			// The reference base stays a valid call at a heterozygous slot.
			s.scratch = append(append(s.scratch[:0], n.Ref), n.Variants...)
			bases = s.scratch
		}
		s.buf = append(s.buf, s.enc.Encode(bases))
		m := baseMask(n.Variants)
		if lvl > 0 {
			// Only an ambiguous fold is a heterozygous base.
			m = baseMask(bases)
		}
		switch {
		case lvl > 0 && bits.OnesCount8(m) > 1:
			st.Hetero++
		case m == 0:
			st.Unknown++
		case n.Ref != 0 && m == iupacToMask[n.Ref]:
			st.Reference++
		default:
			st.Alternative++
		}
	case n.Ref != 0:
		ref := [1]byte{n.Ref}
		s.buf = s.enc.EncodeReference(s.buf, ref[:])
		st.countReference(ref[:])
	default:
		s.buf = append(s.buf, s.enc.Unknown())
		st.Unknown++
	}
}

func (s *serializer) closeAll() {
	for ; s.insOpen > 0; s.insOpen-- {
		s.buf = append(s.buf, InsClose)
	}
	for ; s.delOpen > 0; s.delOpen-- {
		s.buf = append(s.buf, DelClose)
	}
}
