// Package container reads and writes .asciiv files.
//
// Layout, little-endian, no padding:
//
//	float64            frames per second
//	uvarint + bytes    color name tag (7-bit length prefix, UTF-8)
//	int32              audio length N, 0 when there is no audio
//	N bytes            audio blob (mp3 or wav)
//	remainder          UTF-8 text payload, frames terminated by "FRAME_END"
//
// There is no magic number or version field. Files are recognised by
// extension only.
package container

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"unicode/utf8"
)

// Extension is the file extension of packed animations.
const Extension = ".asciiv"

// maxTagLen bounds the color tag so a corrupt prefix cannot trigger a huge allocation.
const maxTagLen = 1 << 16

// Header holds the fields that precede the audio blob.
type Header struct {
	FPS   float64
	Color string
}

// Validate checks that the header can be written and played.
func (h Header) Validate() error {
	if math.IsNaN(h.FPS) || math.IsInf(h.FPS, 0) || h.FPS <= 0 {
		return fmt.Errorf("frames per second must be positive, got %v", h.FPS)
	}
	if len(h.Color) > maxTagLen {
		return fmt.Errorf("color tag is %d bytes long", len(h.Color))
	}
	if !utf8.ValidString(h.Color) {
		return errors.New("color tag is not valid UTF-8")
	}
	return nil
}

// Container is an open .asciiv file. The audio blob is held in memory; the
// text payload stays on disk and is accessed through File.
type Container struct {
	Path      string
	Header    Header
	Audio     []byte
	TextStart int64 // offset of the first payload byte
	Size      int64 // total file length

	file *os.File
}

// Open opens path read-only, decodes the header and audio blob and leaves
// the file open for random access to the text payload.
func Open(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioError("open", path, err)
	}

	c, err := load(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

func load(f *os.File, path string) (*Container, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, ioError("stat", path, err)
	}

	// Unbuffered on purpose: the file cursor must end exactly at the payload.
	h, err := ReadHeader(f)
	if err != nil {
		return nil, withPath(err, path)
	}
	audio, err := ReadAudio(f)
	if err != nil {
		return nil, withPath(err, path)
	}

	textStart, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, ioError("seek", path, err)
	}

	return &Container{
		Path:      path,
		Header:    h,
		Audio:     audio,
		TextStart: textStart,
		Size:      info.Size(),
		file:      f,
	}, nil
}

// File returns the underlying handle. It is nil after Close.
func (c *Container) File() *os.File {
	return c.file
}

// HasAudio reports whether an audio blob is embedded.
func (c *Container) HasAudio() bool {
	return len(c.Audio) > 0
}

// TextSize is the length of the text payload in bytes.
func (c *Container) TextSize() int64 {
	return c.Size - c.TextStart
}

// Close releases the file handle. Calling it again is a no-op.
func (c *Container) Close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	if err != nil {
		return ioError("close", c.Path, err)
	}
	return nil
}

// ReadHeader decodes the frames-per-second value and the color tag.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h.FPS); err != nil {
		return Header{}, readError("read fps", err)
	}
	if math.IsNaN(h.FPS) || math.IsInf(h.FPS, 0) || h.FPS <= 0 {
		return Header{}, formatError("read fps", fmt.Errorf("invalid value %v", h.FPS))
	}

	color, err := readString(r)
	if err != nil {
		return Header{}, err
	}
	h.Color = color
	return h, nil
}

// ReadAudio decodes the length-prefixed audio blob. A zero length yields an
// empty slice.
func ReadAudio(r io.Reader) ([]byte, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, readError("read audio length", err)
	}
	if n < 0 {
		return nil, formatError("read audio length", fmt.Errorf("negative length %d", n))
	}
	if n == 0 {
		return []byte{}, nil
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, readError("read audio", err)
	}
	return buf, nil
}

// readString reads a 7-bit length-prefixed UTF-8 string. The prefix uses
// at most five bytes, as for a 32-bit length.
func readString(r io.Reader) (string, error) {
	var length uint64
	var b [1]byte
	for shift := uint(0); ; shift += 7 {
		if shift >= 35 {
			return "", formatError("read color", errors.New("length prefix too long"))
		}
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", readError("read color", err)
		}
		length |= uint64(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			break
		}
	}
	if length > maxTagLen {
		return "", formatError("read color", fmt.Errorf("length %d exceeds %d", length, maxTagLen))
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", readError("read color", err)
	}
	if !utf8.Valid(buf) {
		return "", formatError("read color", errors.New("invalid UTF-8"))
	}
	return string(buf), nil
}

// Encode writes a complete container to w. The header and audio go through a
// buffered writer that is flushed before the payload is copied, so the two
// never interleave.
func Encode(w io.Writer, h Header, audio []byte, text io.Reader) error {
	if err := h.Validate(); err != nil {
		return formatError("encode header", err)
	}
	if int64(len(audio)) > math.MaxInt32 {
		return formatError("encode audio", fmt.Errorf("blob of %d bytes does not fit an int32 length", len(audio)))
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, h.FPS); err != nil {
		return ioError("write fps", "", err)
	}
	tag := binary.AppendUvarint(nil, uint64(len(h.Color)))
	tag = append(tag, h.Color...)
	if _, err := bw.Write(tag); err != nil {
		return ioError("write color", "", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, int32(len(audio))); err != nil {
		return ioError("write audio length", "", err)
	}
	if _, err := bw.Write(audio); err != nil {
		return ioError("write audio", "", err)
	}
	if err := bw.Flush(); err != nil {
		return ioError("flush", "", err)
	}

	if text == nil {
		return nil
	}
	if _, err := io.Copy(w, text); err != nil {
		return ioError("write text", "", err)
	}
	return nil
}

// Write creates path (truncating an existing file) and encodes a container
// into it. A partially written file is removed on failure.
func Write(path string, h Header, audio []byte, text io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return ioError("create", path, err)
	}

	if err := Encode(f, h, audio, text); err != nil {
		f.Close()
		os.Remove(path)
		return withPath(err, path)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return ioError("close", path, err)
	}
	return nil
}

// readError classifies a failed read: a short stream is a format problem,
// anything else is I/O.
func readError(op string, err error) *Error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return formatError(op, io.ErrUnexpectedEOF)
	}
	return ioError(op, "", err)
}

func withPath(err error, path string) error {
	var ce *Error
	if errors.As(err, &ce) && ce.Path == "" {
		ce.Path = path
	}
	return err
}
