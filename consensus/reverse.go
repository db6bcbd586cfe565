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
	"bufio"
	"io"
	"io/ioutil"
	"os"

	"github.com/golang/snappy"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"v.io/x/lib/vlog"
)

// ErrBufferExceeded is returned when a ReversingWriter is asked to hold more
// bytes than its capacity.  Use CachedReversingWriter for unbounded output.
var ErrBufferExceeded = errors.E("consensus: reversing buffer exceeded")

// bracketSwapTable is the identity, except that each bracket maps to its
// partner.  Reversal turns every open bracket into a close bracket.
var bracketSwapTable [256]byte

func init() {
	for i := range bracketSwapTable {
		bracketSwapTable[i] = byte(i)
	}
	bracketSwapTable[DelOpen], bracketSwapTable[DelClose] = DelClose, DelOpen
	bracketSwapTable[InsOpen], bracketSwapTable[InsClose] = InsClose, InsOpen
}

// reverseSwapInplace reverses buf and swaps bracket pairs.
func reverseSwapInplace(buf []byte) {
	nByte := len(buf)
	nByteDiv2 := nByte >> 1
	for idx, invIdx := 0, nByte-1; idx != nByteDiv2; idx, invIdx = idx+1, invIdx-1 {
		buf[idx], buf[invIdx] = bracketSwapTable[buf[invIdx]], bracketSwapTable[buf[idx]]
	}
	if nByte&1 == 1 {
		buf[nByteDiv2] = bracketSwapTable[buf[nByteDiv2]]
	}
}

// ReversingWriter buffers up to a fixed number of bytes and, on Flush, writes
// them to the underlying writer in reverse order with '('<->')' and
// '['<->']' swapped, so that bracket pairs remain well formed.
type ReversingWriter struct {
	w   io.Writer
	buf []byte
}

// NewReversingWriter returns a ReversingWriter holding at most capacity
// bytes between flushes.
func NewReversingWriter(w io.Writer, capacity int) *ReversingWriter {
	return &ReversingWriter{
		w:   w,
		buf: make([]byte, 0, capacity),
	}
}

// Len returns the number of buffered bytes.
func (r *ReversingWriter) Len() int { return len(r.buf) }

// Cap returns the buffer capacity.
func (r *ReversingWriter) Cap() int { return cap(r.buf) }

// WriteByte buffers c.  It returns ErrBufferExceeded if the buffer is full.
func (r *ReversingWriter) WriteByte(c byte) error {
	if len(r.buf) == cap(r.buf) {
		return ErrBufferExceeded
	}
	r.buf = append(r.buf, c)
	return nil
}

// Write buffers p.  If p does not fit, the bytes that fit are buffered and
// ErrBufferExceeded is returned.
func (r *ReversingWriter) Write(p []byte) (int, error) {
	if room := cap(r.buf) - len(r.buf); len(p) > room {
		r.buf = append(r.buf, p[:room]...)
		return room, ErrBufferExceeded
	}
	r.buf = append(r.buf, p...)
	return len(p), nil
}

// Flush writes the reversed buffer contents and empties the buffer.
func (r *ReversingWriter) Flush() error {
	return r.flushTo(r.w)
}

func (r *ReversingWriter) flushTo(w io.Writer) error {
	if len(r.buf) == 0 {
		return nil
	}
	reverseSwapInplace(r.buf)
	_, err := w.Write(r.buf)
	r.buf = r.buf[:0]
	return err
}

// Close flushes the buffer.
func (r *ReversingWriter) Close() error {
	return r.Flush()
}

// CachedReversingWriter reverses an arbitrarily long byte stream (with
// bracket swapping) while holding only one block in memory.
//
// Each time the in-memory block fills up, it is reversed into a new
// snappy-compressed temp file, and the file is prepended to the segment
// list.  Later input must come out earlier, so on Flush the current block is
// written first, followed by the segments from newest to oldest.  All
// segments are removed by Flush and Close.
//
// Example:
//   rw := NewCachedReversingWriter(out, 1<<20, "")
//   for ... {
//     rw.Write(...)
//   }
//   err := rw.Close()
type CachedReversingWriter struct {
	w        io.Writer
	block    *ReversingWriter
	tempDir  string
	segments []string // newest first
	err      errors.Once
}

// NewCachedReversingWriter returns a CachedReversingWriter writing to w.
// blockSize bounds resident memory; tempDir is where segments are created
// ("" means os.TempDir()).
func NewCachedReversingWriter(w io.Writer, blockSize int, tempDir string) *CachedReversingWriter {
	if blockSize <= 0 {
		blockSize = DefaultOpts.BlockSize
	}
	return &CachedReversingWriter{
		w:       w,
		block:   NewReversingWriter(nil, blockSize),
		tempDir: tempDir,
	}
}

// NumSegments returns the number of temp files currently held.
func (c *CachedReversingWriter) NumSegments() int { return len(c.segments) }

// WriteByte implements io.ByteWriter.
func (c *CachedReversingWriter) WriteByte(b byte) error {
	if c.block.Len() == c.block.Cap() {
		c.spill()
	}
	if err := c.err.Err(); err != nil {
		return err
	}
	return c.block.WriteByte(b)
}

// Write implements io.Writer.
func (c *CachedReversingWriter) Write(p []byte) (n int, err error) {
	for len(p) > 0 {
		if c.block.Len() == c.block.Cap() {
			c.spill()
		}
		if err = c.err.Err(); err != nil {
			return
		}
		chunk := p
		if room := c.block.Cap() - c.block.Len(); len(chunk) > room {
			chunk = chunk[:room]
		}
		var nw int
		nw, err = c.block.Write(chunk)
		n += nw
		if err != nil {
			return
		}
		p = p[nw:]
	}
	return
}

// spill moves the current block into a new temp file.
func (c *CachedReversingWriter) spill() {
	if c.err.Err() != nil {
		return
	}
	f, err := ioutil.TempFile(c.tempDir, "consensus_rev_*.sz")
	if err != nil {
		c.err.Set(errors.E(err, "consensus: creating reversal segment"))
		return
	}
	c.segments = append(c.segments, "")
	copy(c.segments[1:], c.segments)
	c.segments[0] = f.Name()
	vlog.VI(1).Infof("consensus: spilling %d bytes to %s (%d segments)", c.block.Len(), f.Name(), len(c.segments))
	sw := snappy.NewBufferedWriter(f)
	c.err.Set(c.block.flushTo(sw))
	c.err.Set(sw.Close())
	c.err.Set(f.Close())
}

// Flush writes everything buffered so far, fully reversed, to the
// underlying writer, and removes all segments.
func (c *CachedReversingWriter) Flush() error {
	if err := c.err.Err(); err != nil {
		return err
	}
	c.err.Set(c.block.flushTo(c.w))
	for len(c.segments) > 0 && c.err.Err() == nil {
		c.err.Set(c.drainSegment(c.segments[0]))
		c.segments = c.segments[1:]
	}
	c.removeSegments()
	return c.err.Err()
}

func (c *CachedReversingWriter) drainSegment(path string) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return errors.E(err, "consensus: opening reversal segment", path)
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
		if e := os.Remove(path); e != nil && err == nil {
			err = e
		}
	}()
	if _, err = io.Copy(c.w, snappy.NewReader(bufio.NewReader(f))); err != nil {
		err = errors.E(err, "consensus: reading reversal segment", path)
	}
	return
}

// removeSegments deletes leftover segments.  Failures are logged only.
func (c *CachedReversingWriter) removeSegments() {
	for _, path := range c.segments {
		if err := os.Remove(path); err != nil {
			log.Error.Printf("consensus: failed to remove reversal segment %s: %v", path, err)
		}
	}
	c.segments = nil
}

// Close flushes c.  Segments are removed even if the flush fails.
func (c *CachedReversingWriter) Close() error {
	err := c.Flush()
	c.removeSegments()
	return err
}
