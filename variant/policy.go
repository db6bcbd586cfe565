package variant

import (
	"strings"

	"github.com/grailbio/consensus/consensus"
	"github.com/grailbio/consensus/encoding/vcf"
)

// Policy samples the alleles of one VCF record.
type Policy interface {
	// Observations appends the observations of rec to dst.  Records yielding
	// no observation leave their positions to the reference.
	Observations(dst []consensus.Observation, rec *vcf.Record) ([]consensus.Observation, error)
}

// Symbolic reports whether allele is a symbolic, breakend, spanning-deletion
// or missing allele.  Such alleles carry no bases and are never sampled.
func Symbolic(allele string) bool {
	return allele == "" || allele == vcf.Missing || allele == "*" ||
		strings.HasPrefix(allele, "<") || strings.ContainsAny(allele, "[]")
}

func observation(rec *vcf.Record, allele string, p consensus.Provenance) consensus.Observation {
	return consensus.NewObservation(rec.Chrom, rec.Pos, []byte(rec.Ref), []byte(allele), p)
}

// GenotypePolicy samples the genotype of one sample: a homozygous call
// contributes its allele as Alternative, a heterozygous call contributes
// every non-reference allele as Hetero, and a missing call contributes
// nothing.
type GenotypePolicy struct {
	// Sample is the 0-based sample column.
	Sample int
}

// Observations implements Policy.
func (p GenotypePolicy) Observations(dst []consensus.Observation, rec *vcf.Record) ([]consensus.Observation, error) {
	g, err := rec.Genotype(p.Sample)
	if err != nil {
		return dst, err
	}
	if g.Missing() {
		return dst, nil
	}
	dst = append(dst, observation(rec, rec.Ref, consensus.Reference))
	prov := consensus.Alternative
	if g.Het() {
		prov = consensus.Hetero
	}
	for _, a := range g.Called() {
		if a == 0 {
			continue
		}
		if allele := rec.Alts[a-1]; !Symbolic(allele) {
			dst = append(dst, observation(rec, allele, prov))
		}
	}
	return dst, nil
}

// AltPolicy samples sites-only records: a single ALT is Alternative, and
// multiple ALTs are each Hetero.
type AltPolicy struct{}

// Observations implements Policy.
func (AltPolicy) Observations(dst []consensus.Observation, rec *vcf.Record) ([]consensus.Observation, error) {
	dst = append(dst, observation(rec, rec.Ref, consensus.Reference))
	prov := consensus.Alternative
	if len(rec.Alts) > 1 {
		prov = consensus.Hetero
	}
	for _, allele := range rec.Alts {
		if !Symbolic(allele) {
			dst = append(dst, observation(rec, allele, prov))
		}
	}
	return dst, nil
}
