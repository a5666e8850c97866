package frames

import (
	"io"
	"log"
	"strings"
	"unicode"
)

// Reader extracts single frames using an Index. It reads with ReadAt, so it
// keeps no cursor of its own.
type Reader struct {
	r   io.ReaderAt
	idx *Index
}

// NewReader returns a Reader over r.
func NewReader(r io.ReaderAt, idx *Index) *Reader {
	return &Reader{r: r, idx: idx}
}

// Len returns the number of frames.
func (fr *Reader) Len() int {
	if fr == nil {
		return 0
	}
	return fr.idx.Len()
}

// ReadFrame returns the text of frame i with its marker and trailing
// whitespace removed. Frames after the first also lose the line break that
// followed the previous marker; the first frame is returned as written. It never fails: an out of range index, an empty
// range or a read error yields "".
func (fr *Reader) ReadFrame(i int) string {
	if fr == nil || fr.r == nil {
		return ""
	}
	start, end, ok := fr.idx.Range(i)
	if !ok || end-start <= 0 {
		return ""
	}

	buf := make([]byte, end-start)
	n, err := fr.r.ReadAt(buf, start)
	if n < len(buf) {
		log.Printf("frames: short read of frame %d at %d: %d/%d bytes: %v", i, start, n, len(buf), err)
		return ""
	}

	raw := strings.ToValidUTF8(string(buf), "\uFFFD")
	if i > 0 {
		raw = trimMarkerBreak(raw)
	}
	return TrimFrame(raw)
}

// trimMarkerBreak drops the single line break left over from the previous
// marker.
func trimMarkerBreak(raw string) string {
	if r, ok := strings.CutPrefix(raw, "\r\n"); ok {
		return r
	}
	return strings.TrimPrefix(raw, "\n")
}

// TrimFrame cuts raw at the last Marker and strips trailing whitespace.
// The last occurrence is used because frame content may itself contain the
// marker text.
func TrimFrame(raw string) string {
	if k := strings.LastIndex(raw, Marker); k >= 0 {
		raw = raw[:k]
	}
	return strings.TrimRightFunc(raw, unicode.IsSpace)
}
