package interval

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/base/log"
)

// NewBEDOpts defines behavior of this package's BED-loading function(s).
type NewBEDOpts struct {
	// OneBasedInput interprets the BED interval boundaries as one-based [start,
	// end] instead of the usual zero-based [start, end).
	OneBasedInput bool
}

// searchPosType returns the index of x in a[], or the position where x would
// be inserted if x isn't in a (this could be len(a)).
func searchPosType(a []PosType, x PosType) int {
	return sort.Search(len(a), func(i int) bool { return a[i] >= x })
}

// fwdsearchPosType checks a[idx], then a[idx + 1], then a[idx + 3], then
// a[idx + 7], etc., and then uses binary search to finish the job.  It's
// usually a better choice than searchPosType when iterating.
func fwdsearchPosType(a []PosType, x PosType, idx int) int {
	nextIncr := 1
	startIdx := idx
	endIdx := len(a)
	for idx < endIdx {
		if a[idx] >= x {
			endIdx = idx
			break
		}
		startIdx = idx + 1
		idx += nextIncr
		nextIncr *= 2
	}
	for startIdx < endIdx {
		midIdx := int(uint(startIdx+endIdx) >> 1)
		if a[midIdx] >= x {
			endIdx = midIdx
		} else {
			startIdx = midIdx + 1
		}
	}
	return startIdx
}

// BEDUnion is a position mask.  Each chromosome maps to a length-2N sequence,
// where N is the number of disjoint intervals, the (0-based) start position
// of interval #k is in element [2k] and the end position is in element
// [2k+1], and the intervals are stored in increasing order.
//
// Point queries cache the last chromosome and search index, so a BEDUnion
// is not safe for concurrent use.  Use Clone to get an independent cursor.
type BEDUnion struct {
	// nameMap is a chromosome-keyed map with disjoint-interval-set values.
	// Always initialized.
	nameMap map[string][]PosType
	// lastChrIntervals and lastChrName cache the most recently queried
	// chromosome.
	lastChrIntervals []PosType
	lastChrName      string
	// lastPosPlus1 is 1 plus the last spot-queried position.
	lastPosPlus1 PosType
	// lastIdx is searchPosType(lastChrIntervals, lastPosPlus1).
	lastIdx int
	// isSequential is true if all queries since the last chromosome change have
	// been in order of nondecreasing position.
	isSequential bool
}

// ContainsByName checks whether the (0-based) interval [pos, pos+1) is
// contained within the BEDUnion, where chromosome is specified by name.
func (u *BEDUnion) ContainsByName(chrName string, pos PosType) bool {
	posPlus1 := pos + 1
	if chrName != u.lastChrName || u.lastChrIntervals == nil {
		u.lastChrName = chrName
		u.lastChrIntervals = u.nameMap[chrName]
		if u.lastChrIntervals == nil {
			return false
		}
		u.lastIdx = searchPosType(u.lastChrIntervals, posPlus1)
		u.lastPosPlus1 = posPlus1
		u.isSequential = true
		return u.lastIdx&1 == 1
	}
	if u.isSequential {
		if posPlus1 >= u.lastPosPlus1 {
			u.lastIdx = fwdsearchPosType(u.lastChrIntervals, posPlus1, u.lastIdx)
			u.lastPosPlus1 = posPlus1
			return u.lastIdx&1 == 1
		}
		u.isSequential = false
	}
	return searchPosType(u.lastChrIntervals, posPlus1)&1 == 1
}

// OverlapsByName checks whether [start, end) shares at least one position
// with the BEDUnion.  It does not disturb the ContainsByName cache.
func (u *BEDUnion) OverlapsByName(chrName string, start, end PosType) bool {
	intervals := u.nameMap[chrName]
	if intervals == nil || end <= start {
		return false
	}
	idx := searchPosType(intervals, start+1)
	if idx&1 == 1 {
		return true
	}
	return idx != len(intervals) && intervals[idx] < end
}

// Contigs returns the names of the chromosomes mentioned in u, sorted.
func (u *BEDUnion) Contigs() []string {
	names := make([]string, 0, len(u.nameMap))
	for name := range u.nameMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Covered returns the number of positions in u.
func (u *BEDUnion) Covered() int {
	n := 0
	for _, intervals := range u.nameMap {
		for i := 0; i+1 < len(intervals); i += 2 {
			n += int(intervals[i+1] - intervals[i])
		}
	}
	return n
}

// NewBEDUnion loads the intervals of a BED file, merging touching or
// overlapping intervals and eliminating empty ones in the process.  The
// input need not be sorted.
func NewBEDUnion(reader io.Reader, opts NewBEDOpts) (BEDUnion, error) {
	entries, err := ParseBED(reader, opts.OneBasedInput)
	if err != nil {
		return BEDUnion{}, err
	}
	u, err := NewBEDUnionFromEntries(entries, opts)
	if err == nil {
		log.Printf("BED loaded, %d base(s) covered.", u.Covered())
	}
	return u, err
}

// NewBEDUnionFromPath is a wrapper for NewBEDUnion that takes a path instead
// of an io.Reader.  Gzipped files are decompressed.
func NewBEDUnionFromPath(ctx context.Context, path string, opts NewBEDOpts) (bedUnion BEDUnion, err error) {
	reader, closer, err := openPath(ctx, path)
	if err != nil {
		return
	}
	defer func() {
		if cerr := closer(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return NewBEDUnion(reader, opts)
}

// NewBEDUnionFromEntries initializes a BEDUnion from entries, in any order.
// This ignores opts.OneBasedInput, since Start0 is defined to be zero-based.
// Open-ended entries (End < 0) extend to the maximum position.
func NewBEDUnionFromEntries(entries []Entry, opts NewBEDOpts) (BEDUnion, error) {
	sorted := make([]Entry, len(entries))
	for i, e := range entries {
		if e.Start0 < 0 {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnionFromEntries: negative start coordinate in %v", e)
		}
		if e.End < 0 {
			e.End = posTypeMax - 1
		}
		if e.End < e.Start0 || e.End >= posTypeMax {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnionFromEntries: invalid coordinate pair [%d, %d)", e.Start0, e.End)
		}
		sorted[i] = e
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ChrName != sorted[j].ChrName {
			return sorted[i].ChrName < sorted[j].ChrName
		}
		return sorted[i].Start0 < sorted[j].Start0
	})

	u := BEDUnion{nameMap: make(map[string][]PosType)}
	for i := 0; i < len(sorted); {
		chr := sorted[i].ChrName
		// A non-nil empty slice distinguishes 'mentioned' chromosomes without any
		// covered bases from unmentioned chromosomes.
		chrIntervals := []PosType{}
		prevStart, prevEnd := PosType(-1), PosType(-1)
		for ; i < len(sorted) && sorted[i].ChrName == chr; i++ {
			e := sorted[i]
			if e.End == e.Start0 {
				continue
			}
			if prevEnd == -1 {
				prevStart, prevEnd = e.Start0, e.End
				continue
			}
			if e.Start0 > prevEnd {
				chrIntervals = append(chrIntervals, prevStart, prevEnd)
				prevStart, prevEnd = e.Start0, e.End
			} else if e.End > prevEnd {
				prevEnd = e.End
			}
		}
		if prevEnd != -1 {
			chrIntervals = append(chrIntervals, prevStart, prevEnd)
		}
		u.nameMap[chr] = chrIntervals
	}
	return u, nil
}

// Clone returns a new BEDUnion which shares the interval set, but has its own
// search state.
func (u *BEDUnion) Clone() BEDUnion {
	return BEDUnion{nameMap: u.nameMap}
}
