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

// DefaultUnknown is the placeholder written when there is no call and no
// reference base for a position.
const DefaultUnknown byte = '.'

// These are the presence bits of the 4-bit base mask.  They match the .bam
// seq[] nibble encoding.
const (
	maskA byte = 1 << iota
	maskC
	maskG
	maskT

	maskAll = maskA | maskC | maskG | maskT
)

// maskToIUPAC is the 4-bit base mask -> IUPAC ambiguity letter mapping.
// Entry 0 is never emitted.
var maskToIUPAC = [16]byte{0, 'A', 'C', 'M', 'G', 'R', 'S', 'V', 'T', 'W', 'Y', 'H', 'K', 'D', 'B', 'N'}

// iupacToMask maps every byte to the set of bases it may represent.  Bytes
// which are not nucleotide letters map to 0.
var iupacToMask [256]byte

// complementTable maps an IUPAC letter to the letter for the complementary
// base set.  Case is preserved; anything unmapped becomes 'N'.
var complementTable [256]byte

func init() {
	for i := range complementTable {
		complementTable[i] = 'N'
	}
	for m := byte(1); m < 16; m++ {
		upper := maskToIUPAC[m]
		lower := upper + ('a' - 'A')
		iupacToMask[upper] = m
		iupacToMask[lower] = m
		c := maskToIUPAC[complementMask(m)]
		complementTable[upper] = c
		complementTable[lower] = c + ('a' - 'A')
	}
	iupacToMask['U'] = maskT
	iupacToMask['u'] = maskT
	complementTable['U'] = 'A'
	complementTable['u'] = 'a'
}

// complementMask swaps the A<->T and C<->G presence bits.
func complementMask(m byte) byte {
	return (m&maskA)<<3 | (m&maskC)<<1 | (m&maskG)>>1 | (m&maskT)>>3
}

// baseMask returns the bitwise union of the base sets of all bytes in bases.
func baseMask(bases []byte) (m byte) {
	for _, b := range bases {
		m |= iupacToMask[b]
	}
	return
}

// Complement returns the IUPAC letter representing the complement of the
// base set of c, e.g. 'A' -> 'T', 'R' -> 'Y', 'N' -> 'N'.  Bytes which are
// not nucleotide letters map to 'N'.
func Complement(c byte) byte {
	return complementTable[c]
}

// Encoder turns the bases observed at one consensus slot into the byte
// written for that slot.
type Encoder interface {
	// Encode folds bases into a single ambiguity byte.  The fold is
	// commutative and associative.  Empty input, or input without any
	// nucleotide letter, yields Unknown().
	Encode(bases []byte) byte
	// EncodeReference appends the pass-through encoding of a block of
	// reference bytes to dst, and returns the extended slice.
	EncodeReference(dst, block []byte) []byte
	// Unknown returns the no-call placeholder.
	Unknown() byte
}

// IUPACEncoder is the forward-strand Encoder.
type IUPACEncoder struct {
	unknown byte
}

// NewIUPACEncoder returns an IUPACEncoder that writes unknown when no base
// is available.
func NewIUPACEncoder(unknown byte) *IUPACEncoder {
	return &IUPACEncoder{unknown: unknown}
}

// Encode implements Encoder.
func (e *IUPACEncoder) Encode(bases []byte) byte {
	m := baseMask(bases)
	if m == 0 {
		return e.unknown
	}
	return maskToIUPAC[m]
}

// EncodeReference implements Encoder.  Reference bytes pass through as-is.
func (e *IUPACEncoder) EncodeReference(dst, block []byte) []byte {
	return append(dst, block...)
}

// Unknown implements Encoder.
func (e *IUPACEncoder) Unknown() byte {
	return e.unknown
}

// InvertingEncoder wraps another Encoder and complements everything it
// produces.  It is used for reverse-strand regions; byte order is reversed
// separately by CachedReversingWriter.
type InvertingEncoder struct {
	base Encoder
}

// NewInvertingEncoder returns an Encoder producing the complement of base's
// output.
func NewInvertingEncoder(base Encoder) *InvertingEncoder {
	return &InvertingEncoder{base: base}
}

// Encode implements Encoder.
func (e *InvertingEncoder) Encode(bases []byte) byte {
	c := e.base.Encode(bases)
	if c == e.base.Unknown() {
		return c
	}
	return complementTable[c]
}

// EncodeReference implements Encoder.  Every byte is complemented
// independently; there is no folding.
func (e *InvertingEncoder) EncodeReference(dst, block []byte) []byte {
	unknown := e.base.Unknown()
	for _, b := range block {
		if b == unknown {
			dst = append(dst, b)
			continue
		}
		dst = append(dst, complementTable[b])
	}
	return dst
}

// Unknown implements Encoder.
func (e *InvertingEncoder) Unknown() byte {
	return e.base.Unknown()
}
