//go:build !headless

package audio

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"
)

// oto allows a single context per process.
var (
	ctxOnce sync.Once
	otoCtx  *oto.Context
	ctxErr  error
)

func outputContext() (*oto.Context, error) {
	ctxOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   SampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   50 * time.Millisecond,
		}
		c, ready, err := oto.NewContext(op)
		if err != nil {
			ctxErr = err
			return
		}
		<-ready
		otoCtx = c
	})
	return otoCtx, ctxErr
}

// Track is a decoded audio blob attached to the output device.
type Track struct {
	mu     sync.Mutex
	player *oto.Player
	src    *countingSource
	length int64
	format Format
}

// Open decodes blob (mp3 or wav) and prepares it for playback. The track
// starts paused at position zero.
func Open(blob []byte) (*Track, error) {
	format := Detect(blob)

	var stream io.ReadSeeker
	var length int64
	switch format {
	case WAV:
		s, err := wav.DecodeWithSampleRate(SampleRate, bytes.NewReader(blob))
		if err != nil {
			return nil, fmt.Errorf("failed to decode wav: %w", err)
		}
		stream, length = s, s.Length()
	default:
		// Unrecognised blobs are tried as mp3, the packer's default.
		s, err := mp3.DecodeWithSampleRate(SampleRate, bytes.NewReader(blob))
		if err != nil {
			return nil, fmt.Errorf("failed to decode mp3: %w", err)
		}
		stream, length = s, s.Length()
		format = MP3
	}

	c, err := outputContext()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	src := newCountingSource(stream)
	log.Printf("audio: opened %s track, %s", format, pcmDuration(length))
	return &Track{
		player: c.NewPlayer(src),
		src:    src,
		length: length,
		format: format,
	}, nil
}

// Format returns the detected encoding.
func (t *Track) Format() Format {
	return t.format
}

// Duration returns the length of the decoded audio.
func (t *Track) Duration() time.Duration {
	return pcmDuration(t.length)
}

func (t *Track) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.player != nil {
		t.player.Play()
	}
}

func (t *Track) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.player != nil {
		t.player.Pause()
	}
}

// Stop pauses and rewinds to the start.
func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.player == nil {
		return
	}
	t.player.Pause()
	if _, err := t.player.Seek(0, io.SeekStart); err != nil {
		log.Printf("audio: rewind failed: %v", err)
	}
}

// Seek moves playback to d, clamped to the track length.
func (t *Track) Seek(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.player == nil {
		return nil
	}
	off := min(pcmOffset(d), t.length-t.length%bytesPerFrame)
	if _, err := t.player.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek audio to %s: %w", d, err)
	}
	return nil
}

// Position is the time of the sample currently audible: what has been read
// from the stream minus what is still queued in the output buffer.
func (t *Track) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.player == nil {
		return 0
	}
	return pcmDuration(t.src.Offset() - int64(t.player.BufferedSize()))
}

func (t *Track) SetVolume(v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.player != nil {
		t.player.SetVolume(v)
	}
}

// Close detaches the track from the output. Calling it again is a no-op.
func (t *Track) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.player == nil {
		return nil
	}
	err := t.player.Close()
	t.player = nil
	return err
}
