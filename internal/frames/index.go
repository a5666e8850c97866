// Package frames indexes and reads the text payload of a container.
//
// Frames are stored back to back, each one terminated by Marker and a line
// break. The index records where every frame starts so a single frame can be
// read without touching the rest of the payload.
package frames

import (
	"bytes"
	"fmt"
	"io"
)

// Marker terminates every frame in the payload.
const Marker = "FRAME_END"

// DefaultChunkSize is the read size used while scanning for markers.
const DefaultChunkSize = 64 * 1024

var marker = []byte(Marker)

// Index is the ordered table of frame start offsets. Frame i spans
// [offsets[i], offsets[i+1]) and the last frame ends at the file size.
type Index struct {
	offsets []int64
	size    int64
}

// Len returns the number of frames. A nil index has none.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.offsets)
}

// Size is the total length of the indexed file.
func (x *Index) Size() int64 {
	if x == nil {
		return 0
	}
	return x.size
}

// Offset returns the start of frame i, or -1 if i is out of range.
func (x *Index) Offset(i int) int64 {
	if i < 0 || i >= x.Len() {
		return -1
	}
	return x.offsets[i]
}

// Offsets returns a copy of the offset table.
func (x *Index) Offsets() []int64 {
	if x == nil {
		return nil
	}
	return append([]int64(nil), x.offsets...)
}

// Range returns the byte range of frame i.
func (x *Index) Range(i int) (start, end int64, ok bool) {
	if i < 0 || i >= x.Len() {
		return 0, 0, false
	}
	start = x.offsets[i]
	end = x.size
	if i+1 < len(x.offsets) {
		end = x.offsets[i+1]
	}
	return start, end, true
}

// Indexer scans a payload for frame markers.
type Indexer struct {
	// ChunkSize is the number of bytes read per call. Values smaller than
	// the marker are raised to the marker length; zero means DefaultChunkSize.
	ChunkSize int
}

// Build indexes r starting at textStart using DefaultChunkSize.
func Build(r io.ReadSeeker, textStart int64) (*Index, error) {
	return Indexer{}.Build(r, textStart)
}

// Build scans r from textStart to the end in a single pass. textStart is
// always the first offset; every marker that ends before the end of the
// file starts a new frame at the byte right after the marker. The last
// len(Marker)-1 bytes of each chunk are carried into the next one, so a
// marker split across two reads is still found. Only read and seek
// failures are returned as errors.
func (ix Indexer) Build(r io.ReadSeeker, textStart int64) (*Index, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to find payload end: %w", err)
	}
	if textStart < 0 || textStart > size {
		return nil, fmt.Errorf("payload start %d outside file of %d bytes", textStart, size)
	}
	if _, err := r.Seek(textStart, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to payload: %w", err)
	}

	chunk := ix.ChunkSize
	if chunk == 0 {
		chunk = DefaultChunkSize
	}
	if chunk < len(marker) {
		chunk = len(marker)
	}
	carry := len(marker) - 1

	buf := make([]byte, carry+chunk)
	offsets := []int64{textStart}
	base := textStart // absolute offset of buf[0]
	kept := 0

	for {
		n, rerr := r.Read(buf[kept : kept+chunk])
		avail := kept + n

		for i := 0; i+len(marker) <= avail; i++ {
			if buf[i] != marker[0] {
				continue
			}
			if !bytes.Equal(buf[i+1:i+len(marker)], marker[1:]) {
				continue
			}
			end := base + int64(i+len(marker))
			if end < size {
				offsets = append(offsets, end)
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("failed to read payload at %d: %w", base+int64(kept), rerr)
		}

		keep := min(carry, avail)
		copy(buf, buf[avail-keep:avail])
		base += int64(avail - keep)
		kept = keep
	}

	// A final marker followed by nothing but its line break also touches
	// the end of the file and must not open an empty trailing frame. The
	// tail is at most two bytes, so it is still in buf.
	if last := offsets[len(offsets)-1]; len(offsets) > 1 && last >= base && size-last <= 2 {
		if isLineBreak(buf[last-base : size-base]) {
			offsets = offsets[:len(offsets)-1]
		}
	}

	return &Index{offsets: offsets, size: size}, nil
}

func isLineBreak(b []byte) bool {
	s := string(b)
	return s == "\n" || s == "\r\n"
}
