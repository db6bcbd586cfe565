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
	"bytes"
	"fmt"
)

// Provenance describes where an observed allele came from.
type Provenance uint8

const (
	// Reference is the reference allele of a call.  Reference observations
	// set node reference bytes instead of adding variant bytes.
	Reference Provenance = iota
	// Alternative is a homozygous non-reference allele.
	Alternative
	// Hetero is one allele of a heterozygous call.
	Hetero
)

var provenanceNames = [...]string{"REFERENCE", "ALTERNATIVE", "HETERO"}

func (p Provenance) String() string {
	if int(p) < len(provenanceNames) {
		return provenanceNames[p]
	}
	return fmt.Sprintf("Provenance(%d)", p)
}

// Class is the shape of an allele relative to the reference span it
// replaces.
type Class uint8

const (
	// NoChange means the allele is empty or equal to a single reference base.
	NoChange Class = iota
	// SNP is a single-base substitution.
	SNP
	// MNP is a same-length multi-base substitution.
	MNP
	// SimpleDeletion replaces a multi-base reference span by one base.
	SimpleDeletion
	// Insertion adds bases after the reference span.
	Insertion
	// ComplexIndel replaces a multi-base reference span with a multi-base
	// allele of different length.
	ComplexIndel
	// Untyped observations (symbolic alleles etc.) are ignored by Merge.
	Untyped
)

var classNames = [...]string{"NO_CHANGE", "SNP", "MNP", "SIMPLE_DELETION", "INSERTION", "COMPLEX_INDEL", "UNTYPED"}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("Class(%d)", c)
}

// Classify returns the Class of replacing ref by allele.
func Classify(ref, allele []byte) Class {
	r, a := len(ref), len(allele)
	switch {
	case a == 0:
		return NoChange
	case r == 0:
		return Insertion
	case r == 1 && a == 1:
		if bytes.EqualFold(ref, allele) {
			return NoChange
		}
		return SNP
	case r == 1:
		return Insertion
	case a == 1:
		return SimpleDeletion
	case a == r:
		return MNP
	}
	return ComplexIndel
}

// Observation is one allele's contribution over a reference span.
type Observation struct {
	Contig     string
	Allele     []byte
	Provenance Provenance
	Class      Class
	// Start and End are the 0-based inclusive reference span.  For an
	// insertion with an empty reference span, End == Start-1, which is also
	// the position of the base the insertion follows.
	Start, End int
}

// NewObservation builds the Observation for allele replacing ref at the
// 0-based position start.  Reference-provenance observations are always
// NoChange.
func NewObservation(contig string, start int, ref, allele []byte, p Provenance) Observation {
	o := Observation{
		Contig:     contig,
		Allele:     allele,
		Provenance: p,
		Class:      Classify(ref, allele),
		Start:      start,
		End:        start + len(ref) - 1,
	}
	if p == Reference {
		o.Class = NoChange
	}
	return o
}

// RefLen returns the length of the reference span.
func (o *Observation) RefLen() int {
	return o.End - o.Start + 1
}

// anchor returns the position of the last reference base covered by o, or
// the base preceding o when its reference span is empty.
func (o *Observation) anchor() int {
	return o.End
}

// first returns the first position a merge window must contain for o.
func (o *Observation) first() int {
	if o.End < o.Start {
		return o.End
	}
	return o.Start
}

func (o Observation) String() string {
	return fmt.Sprintf("%s:%d-%d %s %s %q", o.Contig, o.Start, o.End, o.Provenance, o.Class, o.Allele)
}
