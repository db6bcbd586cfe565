package vcf

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	gvcf "github.com/vertgenlab/gonomics/vcf"
)

// NoCall is the allele index of a missing ('.') genotype allele.
const NoCall = -1

// Genotype is a decoded GT value.
type Genotype struct {
	// Alleles holds allele indexes: 0 is REF, i > 0 is Alts[i-1], NoCall is
	// missing.
	Alleles []int
	Phased  bool
}

// NewGenotype converts the GT of a decoded sample.  Phase[0] carries no
// separator and is ignored.
func NewGenotype(s gvcf.Sample) Genotype {
	g := Genotype{Alleles: make([]int, len(s.Alleles))}
	for i, a := range s.Alleles {
		if a < 0 {
			g.Alleles[i] = NoCall
		} else {
			g.Alleles[i] = int(a)
		}
	}
	for i := 1; i < len(s.Phase); i++ {
		g.Phased = g.Phased || s.Phase[i]
	}
	return g
}

// Missing reports whether no allele was called.
func (g Genotype) Missing() bool {
	for _, a := range g.Alleles {
		if a != NoCall {
			return false
		}
	}
	return true
}

// HomRef reports whether every called allele is REF.
func (g Genotype) HomRef() bool {
	if g.Missing() {
		return false
	}
	for _, a := range g.Alleles {
		if a != NoCall && a != 0 {
			return false
		}
	}
	return true
}

// Het reports whether the called alleles differ.
func (g Genotype) Het() bool {
	first := NoCall
	for _, a := range g.Alleles {
		if a == NoCall {
			continue
		}
		if first == NoCall {
			first = a
		} else if a != first {
			return true
		}
	}
	return false
}

// Called returns the distinct called allele indexes in ascending order.
func (g Genotype) Called() []int {
	var out []int
	for _, a := range g.Alleles {
		if a == NoCall {
			continue
		}
		dup := false
		for _, b := range out {
			dup = dup || a == b
		}
		if !dup {
			out = append(out, a)
		}
	}
	sort.Ints(out)
	return out
}

func (g Genotype) String() string {
	sep := "/"
	if g.Phased {
		sep = "|"
	}
	parts := make([]string, len(g.Alleles))
	for i, a := range g.Alleles {
		if a == NoCall {
			parts[i] = Missing
		} else {
			parts[i] = strconv.Itoa(a)
		}
	}
	return strings.Join(parts, sep)
}

// Genotype returns the GT of sample.
func (r *Record) Genotype(sample int) (Genotype, error) {
	if sample < 0 || sample >= len(r.Samples) {
		return Genotype{}, fmt.Errorf("%s:%d: no sample %d", r.Chrom, r.Pos+1, sample)
	}
	if r.formatIndex("GT") < 0 {
		return Genotype{}, fmt.Errorf("%s:%d: no GT for sample %d", r.Chrom, r.Pos+1, sample)
	}
	g := NewGenotype(r.Samples[sample])
	for _, a := range g.Alleles {
		if a > len(r.Alts) {
			return Genotype{}, fmt.Errorf("%s:%d: allele %d out of range in %s", r.Chrom, r.Pos+1, a, g)
		}
	}
	return g, nil
}
