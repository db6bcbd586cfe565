package interval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/klauspost/compress/gzip"
)

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// isBEDHeader reports whether line is a comment, "track" or "browser" line.
func isBEDHeader(tok []byte) bool {
	s := gunsafe.BytesToString(tok)
	return tok[0] == '#' || s == "track" || s == "browser"
}

// ParseBED reads BED3 to BED6 lines from r.  Column 4 is the entry name and
// column 6 its strand; column 5 (score) is ignored.  If oneBasedInput is
// set, starts are interpreted as 1-based.  Entries are returned in file
// order.
func ParseBED(r io.Reader, oneBasedInput bool) ([]Entry, error) {
	var startSubtract int
	if oneBasedInput {
		startSubtract++
	}
	var (
		tokens  [6][]byte
		entries []Entry
		lineIdx int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineIdx++
		nToken := getTokens(tokens[:], scanner.Bytes())
		if nToken == 0 || isBEDHeader(tokens[0]) {
			continue
		}
		if nToken < 3 {
			return nil, fmt.Errorf("interval.ParseBED: line %d has fewer tokens than expected", lineIdx)
		}
		start, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
		if err != nil {
			return nil, fmt.Errorf("interval.ParseBED: line %d: %v", lineIdx, err)
		}
		start -= startSubtract
		if start < 0 {
			return nil, fmt.Errorf("interval.ParseBED: negative start coordinate %s on line %d", tokens[1], lineIdx)
		}
		end, err := strconv.Atoi(gunsafe.BytesToString(tokens[2]))
		if err != nil {
			return nil, fmt.Errorf("interval.ParseBED: line %d: %v", lineIdx, err)
		}
		if end < start || end >= posTypeMax {
			return nil, fmt.Errorf("interval.ParseBED: invalid coordinate pair on line %d", lineIdx)
		}
		e := Entry{
			ChrName: string(tokens[0]),
			Start0:  PosType(start),
			End:     PosType(end),
			Strand:  StrandNone,
		}
		if nToken >= 4 {
			e.Name = string(tokens[3])
		}
		if nToken >= 6 && len(tokens[5]) == 1 {
			switch s := tokens[5][0]; s {
			case StrandFwd, StrandRev:
				e.Strand = s
			}
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// openPath opens path for reading, decompressing .gz files.  The returned
// function closes the file.
func openPath(ctx context.Context, path string) (io.Reader, func() error, error) {
	infile, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	closer := func() error { return infile.Close(ctx) }
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		if reader, err = gzip.NewReader(reader); err != nil {
			_ = closer()
			return nil, nil, errors.E(err, "interval: opening", path)
		}
	}
	return reader, closer, nil
}

// ReadBEDEntries reads the intervals of a (possibly gzipped) BED file.
func ReadBEDEntries(ctx context.Context, path string) (entries []Entry, err error) {
	reader, closer, err := openPath(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := closer(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if entries, err = ParseBED(reader, false); err != nil {
		return nil, errors.E(err, path)
	}
	log.Printf("%s: read %d interval(s)", path, len(entries))
	return entries, nil
}
