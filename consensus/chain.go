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
	"github.com/grailbio/base/log"
)

// NodeKind distinguishes reference-anchored nodes from inserted ones.
type NodeKind uint8

const (
	// Anchored nodes occupy one reference coordinate.
	Anchored NodeKind = iota
	// Inserted nodes have no reference coordinate; they trail an Anchored
	// node.
	Inserted
)

// noNode terminates the chain.
const noNode = -1

// Node is one output slot of a Chain.
type Node struct {
	Kind NodeKind
	// Ref is the reference byte, 0 if unknown.  Always 0 for Inserted nodes.
	Ref byte
	// Variants holds every variant byte observed for this slot, in merge
	// order.
	Variants []byte

	// pos is the reference coordinate (Anchored only).
	pos int
	// deleted is set when a deletion covers this coordinate (Anchored only).
	deleted bool
	// anchor is the arena index of the Anchored node an Inserted node
	// trails.
	anchor int
	// rel is the 1-based rank of an Inserted node after its anchor.
	rel int
	// het is the node's own heterozygosity level.
	het int
	// next is the arena index of the following node, or noNode.
	next int
}

// Chain is the consensus-node representation of one merge window.
//
// Nodes live in an arena.  The first Len() entries are the Anchored nodes
// for positions start..end in order; Inserted nodes are appended to the
// arena as they are created and spliced into the forward links, so arena
// indexes stay valid for the life of the Chain.  Output order is the link
// order starting at index 0.
type Chain struct {
	start, end int
	nodes      []Node
}

func newChain(start, end int, ref []byte) *Chain {
	n := end - start + 1
	c := &Chain{
		start: start,
		end:   end,
		nodes: make([]Node, n, n+n/4+1),
	}
	for i := range c.nodes {
		node := &c.nodes[i]
		node.Kind = Anchored
		node.pos = start + i
		node.next = i + 1
		if i < len(ref) {
			node.Ref = ref[i]
		}
	}
	c.nodes[n-1].next = noNode
	return c
}

// Start returns the first reference coordinate of the window.
func (c *Chain) Start() int { return c.start }

// End returns the last reference coordinate of the window (inclusive).
func (c *Chain) End() int { return c.end }

// Len returns the number of reference coordinates in the window.
func (c *Chain) Len() int { return c.end - c.start + 1 }

// NumNodes returns the total number of nodes, including Inserted ones.
func (c *Chain) NumNodes() int { return len(c.nodes) }

// Node returns the node with the given arena index.
func (c *Chain) Node(i int) *Node { return &c.nodes[i] }

// Next returns the arena index following i, or -1 at the end of the chain.
func (c *Chain) Next(i int) int { return c.nodes[i].next }

// Order returns the arena indexes of all nodes in output order.
func (c *Chain) Order() []int {
	order := make([]int, 0, len(c.nodes))
	for i := 0; i != noNode; i = c.nodes[i].next {
		order = append(order, i)
	}
	return order
}

// Pos returns the reference coordinate of node i.  Inserted nodes report the
// coordinate of their anchor.
func (c *Chain) Pos(i int) int {
	n := &c.nodes[i]
	if n.Kind == Inserted {
		return c.nodes[n.anchor].pos
	}
	return n.pos
}

// Deleted reports whether node i is covered by a deletion.  Inserted nodes
// report the status of their anchor.
func (c *Chain) Deleted(i int) bool {
	n := &c.nodes[i]
	if n.Kind == Inserted {
		return c.nodes[n.anchor].deleted
	}
	return n.deleted
}

// RelPos returns the 1-based rank of an Inserted node after its anchor, and 0
// for Anchored nodes.
func (c *Chain) RelPos(i int) int {
	return c.nodes[i].rel
}

// HetLevel returns the heterozygosity level of node i; 0 means homozygous.
// An Inserted node is at least as heterozygous as its anchor.
func (c *Chain) HetLevel(i int) int {
	n := &c.nodes[i]
	if n.Kind == Inserted {
		if a := c.nodes[n.anchor].het; a > n.het {
			return a
		}
	}
	return n.het
}

// index returns the arena index of reference coordinate pos.
func (c *Chain) index(pos int) (int, bool) {
	if pos < c.start || pos > c.end {
		return 0, false
	}
	return pos - c.start, true
}

// Merge builds the Chain for the merge window [start, end] (0-based,
// inclusive) from obs.  ref, if non-nil, holds the reference bytes of the
// window; it may be shorter than the window.  Observations are applied in
// order and only ever add to a node; offsets outside the window are
// ignored.  Indel events are counted in stats.
func Merge(obs []Observation, start, end int, ref []byte, stats *Stats) *Chain {
	if end < start {
		log.Panicf("consensus.Merge: empty window [%d, %d]", start, end)
	}
	c := newChain(start, end, ref)
	for i := range obs {
		c.add(&obs[i], stats)
	}
	return c
}

func (c *Chain) add(o *Observation, stats *Stats) {
	het := o.Provenance == Hetero
	switch o.Class {
	case NoChange:
		if o.Provenance == Reference {
			c.setReference(o)
			return
		}
		c.substitute(o, len(o.Allele), het)
	case SNP, MNP:
		c.substitute(o, len(o.Allele), het)
	case SimpleDeletion:
		c.delete(o, het, stats)
	case Insertion:
		c.insert(o, het, stats)
	case ComplexIndel:
		if len(o.Allele) > o.RefLen() {
			c.insert(o, het, stats)
		} else {
			c.delete(o, het, stats)
		}
	default:
		log.Debug.Printf("consensus.Merge: skipping %v", *o)
	}
}

// setReference overwrites the reference bytes of the covered nodes.
func (c *Chain) setReference(o *Observation) {
	for k, b := range o.Allele {
		if k >= o.RefLen() {
			break
		}
		if i, ok := c.index(o.Start + k); ok {
			c.nodes[i].Ref = b
		}
	}
}

// substitute appends the first n allele bytes to the nodes of the first n
// covered coordinates.
func (c *Chain) substitute(o *Observation, n int, het bool) {
	if r := o.RefLen(); n > r {
		n = r
	}
	if n > len(o.Allele) {
		n = len(o.Allele)
	}
	for k := 0; k < n; k++ {
		i, ok := c.index(o.Start + k)
		if !ok {
			continue
		}
		node := &c.nodes[i]
		node.Variants = append(node.Variants, o.Allele[k])
		if het && node.het < 1 {
			node.het = 1
		}
	}
}

// delete substitutes the leading allele bytes and marks the rest of the
// reference span deleted.  Each heterozygous deletion raises the level of the
// deleted coordinates by one, so nested deletions stack.
func (c *Chain) delete(o *Observation, het bool, stats *Stats) {
	a, r := len(o.Allele), o.RefLen()
	c.substitute(o, a, het)
	stats.Deletions++
	stats.DeletionLength += int64(r - a)
	for k := a; k < r; k++ {
		i, ok := c.index(o.Start + k)
		if !ok {
			continue
		}
		node := &c.nodes[i]
		node.deleted = true
		if het {
			node.het++
		}
	}
}

// insert substitutes the allele bytes overlapping the reference span, then
// places the remaining bytes on Inserted nodes after the last covered
// coordinate, reusing nodes created by earlier insertions at the same anchor.
func (c *Chain) insert(o *Observation, het bool, stats *Stats) {
	a, r := len(o.Allele), o.RefLen()
	c.substitute(o, r, het)
	stats.Insertions++
	stats.InsertionLength += int64(a - r)
	anchor, ok := c.index(o.anchor())
	if !ok {
		log.Debug.Printf("consensus.Merge: insertion anchor %d outside window [%d, %d], dropping %v", o.anchor(), c.start, c.end, *o)
		return
	}
	cur := anchor
	for k, b := range o.Allele[r:] {
		rel := k + 1
		next := c.nodes[cur].next
		if next == noNode || c.nodes[next].Kind != Inserted || c.nodes[next].rel != rel {
			c.nodes = append(c.nodes, Node{
				Kind:   Inserted,
				anchor: anchor,
				rel:    rel,
				next:   next,
			})
			next = len(c.nodes) - 1
			c.nodes[cur].next = next
		}
		node := &c.nodes[next]
		node.Variants = append(node.Variants, b)
		if het {
			if lvl := c.nodes[anchor].het + 1; node.het < lvl {
				node.het = lvl
			}
		}
		cur = next
	}
}
