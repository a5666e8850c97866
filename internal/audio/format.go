// Package audio plays the audio blob embedded in a container and reports the
// playback position, which the player uses as its clock.
package audio

import (
	"bytes"
	"errors"
	"io"
	"sync/atomic"
	"time"
)

// Output format of decoded tracks: 16-bit little-endian stereo.
const (
	SampleRate    = 44100
	channelCount  = 2
	bytesPerFrame = channelCount * 2
)

// ErrUnavailable is returned by Open when the binary has no audio output.
var ErrUnavailable = errors.New("audio output not available")

// Format identifies the encoding of an audio blob.
type Format int

const (
	Unknown Format = iota
	MP3
	WAV
)

func (f Format) String() string {
	switch f {
	case MP3:
		return "mp3"
	case WAV:
		return "wav"
	default:
		return "unknown"
	}
}

// Ext returns the file extension for f, including the dot.
func (f Format) Ext() string {
	if f == WAV {
		return ".wav"
	}
	return ".mp3"
}

// Detect sniffs the blob header. The container does not record the format.
func Detect(b []byte) Format {
	switch {
	case len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WAVE")):
		return WAV
	case len(b) >= 3 && bytes.Equal(b[0:3], []byte("ID3")):
		return MP3
	case len(b) >= 2 && b[0] == 0xff && b[1]&0xe0 == 0xe0:
		return MP3
	default:
		return Unknown
	}
}

// pcmDuration converts a PCM byte offset to time.
func pcmDuration(offset int64) time.Duration {
	if offset <= 0 {
		return 0
	}
	frames := offset / bytesPerFrame
	return time.Duration(frames) * time.Second / SampleRate
}

// pcmOffset converts time to a frame-aligned PCM byte offset.
func pcmOffset(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	frames := int64(d) * SampleRate / int64(time.Second)
	return frames * bytesPerFrame
}

// countingSource tracks how far the output has consumed the decoded stream.
// Read runs on the output goroutine, so the offset is atomic.
type countingSource struct {
	rs     io.ReadSeeker
	offset atomic.Int64
}

func newCountingSource(rs io.ReadSeeker) *countingSource {
	return &countingSource{rs: rs}
}

func (s *countingSource) Read(p []byte) (int, error) {
	n, err := s.rs.Read(p)
	s.offset.Add(int64(n))
	return n, err
}

func (s *countingSource) Seek(offset int64, whence int) (int64, error) {
	pos, err := s.rs.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	s.offset.Store(pos)
	return pos, nil
}

// Offset returns the number of bytes handed to the output so far.
func (s *countingSource) Offset() int64 {
	return s.offset.Load()
}
