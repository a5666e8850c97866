package frames

import (
	"bufio"
	"io"
	"strings"
)

// Writer produces a payload in the layout the indexer expects: every frame
// ends with a line break, then Marker and another line break.
type Writer struct {
	w     *bufio.Writer
	count int
}

// NewWriter returns a Writer appending frames to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteFrame appends one frame.
func (fw *Writer) WriteFrame(text string) error {
	text = strings.TrimRight(text, "\r\n")
	if _, err := fw.w.WriteString(text); err != nil {
		return err
	}
	if _, err := fw.w.WriteString("\n" + Marker + "\n"); err != nil {
		return err
	}
	fw.count++
	return nil
}

// Count returns the number of frames written so far.
func (fw *Writer) Count() int {
	return fw.count
}

// Flush writes any buffered data to the underlying writer.
func (fw *Writer) Flush() error {
	return fw.w.Flush()
}
