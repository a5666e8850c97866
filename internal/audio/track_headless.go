//go:build headless

package audio

import "time"

// Track is never constructed in headless builds.
type Track struct{}

// Open always fails so the player falls back to its stopwatch clock.
func Open(blob []byte) (*Track, error) {
	return nil, ErrUnavailable
}

func (t *Track) Format() Format             { return Unknown }
func (t *Track) Duration() time.Duration    { return 0 }
func (t *Track) Play()                      {}
func (t *Track) Pause()                     {}
func (t *Track) Stop()                      {}
func (t *Track) Seek(d time.Duration) error { return nil }
func (t *Track) Position() time.Duration    { return 0 }
func (t *Track) SetVolume(v float64)        {}
func (t *Track) Close() error               { return nil }
