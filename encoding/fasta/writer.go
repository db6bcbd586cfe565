package fasta

import (
	"io"
)

// DefaultLineWidth is the sequence line length used by NewWriter when
// lineWidth is not positive.
const DefaultLineWidth = 60

var newline = []byte{'\n'}

// Writer writes FASTA records.  A record is started with Header; sequence
// bytes written after it are wrapped every LineWidth bytes.  Any byte may
// appear in the sequence.  Errors are sticky: once a write fails, later
// calls do nothing and return the same error.
type Writer struct {
	w         io.Writer
	lineWidth int
	// col is the number of bytes on the current sequence line.
	col int
	err error
}

// NewWriter constructs a FASTA writer that writes to w.
func NewWriter(w io.Writer, lineWidth int) *Writer {
	if lineWidth <= 0 {
		lineWidth = DefaultLineWidth
	}
	return &Writer{w: w, lineWidth: lineWidth}
}

// Header ends the current record, if any, and starts a new one.  desc is
// appended to the name after a space when nonempty.
func (w *Writer) Header(name, desc string) error {
	w.endLine()
	w.writeString(">")
	w.writeString(name)
	if desc != "" {
		w.writeString(" ")
		w.writeString(desc)
	}
	w.write(newline)
	return w.err
}

// Write writes sequence bytes, wrapping lines.  It implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	n := 0
	for len(p) > 0 && w.err == nil {
		if w.col == w.lineWidth {
			w.write(newline)
			w.col = 0
		}
		k := w.lineWidth - w.col
		if k > len(p) {
			k = len(p)
		}
		w.write(p[:k])
		if w.err == nil {
			n += k
			w.col += k
		}
		p = p[k:]
	}
	return n, w.err
}

// Close terminates the last sequence line.  It does not close the
// underlying writer.
func (w *Writer) Close() error {
	w.endLine()
	return w.err
}

func (w *Writer) endLine() {
	if w.col > 0 {
		w.write(newline)
		w.col = 0
	}
}

func (w *Writer) writeString(s string) {
	if w.err == nil {
		_, w.err = io.WriteString(w.w, s)
	}
}

func (w *Writer) write(p []byte) {
	if w.err == nil {
		_, w.err = w.w.Write(p)
	}
}
