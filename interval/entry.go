package interval

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PosType is the coordinate type of Entry and BEDUnion.
type PosType int32

const posTypeMax = math.MaxInt32

// Strand characters.
const (
	StrandNone byte = '.'
	StrandFwd  byte = '+'
	StrandRev  byte = '-'
)

// Entry represents a single interval, with 0-based half-open coordinates.
// An End of -1 means the interval extends to the end of the contig.
type Entry struct {
	ChrName string
	Start0  PosType
	End     PosType
	// Name, Type and Strand are optional labels.  Strand is one of '+', '-'
	// and '.'; 0 is treated as '.'.
	Name   string
	Type   string
	Strand byte
}

// Len returns End - Start0, or -1 if the interval is open-ended.
func (e Entry) Len() int {
	if e.End < 0 {
		return -1
	}
	return int(e.End - e.Start0)
}

func (e Entry) String() string {
	s := e.ChrName
	if e.Start0 > 0 || e.End >= 0 {
		s += ":" + strconv.Itoa(int(e.Start0)+1) + "-"
		if e.End >= 0 {
			s += strconv.Itoa(int(e.End))
		}
	}
	if e.Strand == StrandFwd || e.Strand == StrandRev {
		s += ":" + string(e.Strand)
	}
	return s
}

// ParseRegionString parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// optionally followed by ":+" or ":-" to select a strand, returning a contig
// ID and 0-based interval boundaries.  End is -1 when there is no positional
// restriction.
func ParseRegionString(region string) (result Entry, err error) {
	result.Strand = StrandNone
	if n := len(region); n > 2 && region[n-2] == ':' && (region[n-1] == StrandFwd || region[n-1] == StrandRev) {
		result.Strand = region[n-1]
		region = region[:n-2]
	}
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.LastIndexByte(region, ':')
	if colonPos == -1 {
		result.ChrName = region
		result.End = -1
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty contig ID")
		return
	}
	result.ChrName = region[0:colonPos]
	rangeStr := strings.Replace(region[colonPos+1:], ",", "", -1)
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 32); err != nil {
			return
		}
		if pos1 <= 0 {
			err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", rangeStr)
			return
		}
		result.Start0 = PosType(pos1 - 1)
		result.End = PosType(pos1)
		return
	}
	start1Str := rangeStr[:dashPos]
	endStr := rangeStr[dashPos+1:]
	var start1 int
	if start1, err = strconv.Atoi(start1Str); err != nil {
		return
	}
	if start1 <= 0 {
		err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", start1Str)
		return
	}
	result.Start0 = PosType(start1 - 1)
	if endStr == "" {
		result.End = -1
		return
	}
	var end int
	if end, err = strconv.Atoi(endStr); err != nil {
		return
	}
	if end < start1 || end >= posTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: invalid range string %v", rangeStr)
		return
	}
	result.End = PosType(end)
	return
}
