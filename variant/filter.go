package variant

import (
	"math"

	"github.com/grailbio/consensus/encoding/vcf"
	"github.com/grailbio/consensus/interval"
)

// Filter selects the VCF records that are sampled.  The zero Filter accepts
// every record.
type Filter struct {
	// MinQual rejects records whose QUAL is below it.  Records without QUAL
	// pass.
	MinQual float64
	// MinDepth rejects records whose depth for Sample is below it.  Records
	// without depth pass.
	MinDepth int
	// Sample is the sample column used by MinDepth.
	Sample int
	// PassOnly rejects records whose FILTER is neither PASS nor missing.
	PassOnly bool
	// Exclude, if set, rejects records whose reference span overlaps it.  Its
	// point-query cursor is advanced by Accept, so Filters that share it must
	// not be used concurrently; see Clone.
	Exclude *interval.BEDUnion
}

// Clone returns a copy of f with its own Exclude cursor.
func (f *Filter) Clone() Filter {
	c := *f
	if f.Exclude != nil {
		u := f.Exclude.Clone()
		c.Exclude = &u
	}
	return c
}

// Accept reports whether rec passes f.
func (f *Filter) Accept(rec *vcf.Record) bool {
	if f.PassOnly && !rec.Passed() {
		return false
	}
	if f.MinQual > 0 && !math.IsNaN(rec.Qual) && rec.Qual < f.MinQual {
		return false
	}
	if f.MinDepth > 0 {
		if d, ok := rec.Depth(f.Sample); ok && d < f.MinDepth {
			return false
		}
	}
	if f.Exclude == nil {
		return true
	}
	if len(rec.Ref) == 1 {
		// Sorted single-base records walk the cursor forward.
		return !f.Exclude.ContainsByName(rec.Chrom, interval.PosType(rec.Pos))
	}
	return !f.Exclude.OverlapsByName(rec.Chrom, interval.PosType(rec.Pos), interval.PosType(rec.End()))
}
