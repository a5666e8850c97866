// Package playback decides which frame is on screen.
//
// A Session owns the clock state: a stopwatch, a seek offset and optionally
// an audio track whose position is the authoritative time. Each tick turns
// the current time into a frame number; seeks rewrite the clock under the
// same lock, so a tick never sees half of a seek.
package playback

import (
	"math"
	"time"
)

// Audio is the audio-backed clock handle. *audio.Track implements it.
type Audio interface {
	Play()
	Pause()
	Stop()
	Seek(d time.Duration) error
	Position() time.Duration
	SetVolume(v float64)
	Close() error
}

// SourceKind tells how playback time is measured.
type SourceKind int

const (
	KindStopwatch SourceKind = iota
	KindAudio
)

func (k SourceKind) String() string {
	if k == KindAudio {
		return "audio"
	}
	return "stopwatch"
}

// Source is the clock selected once at load time.
type Source struct {
	kind  SourceKind
	audio Audio
}

// StopwatchOnly measures time with the session stopwatch.
func StopwatchOnly() Source {
	return Source{kind: KindStopwatch}
}

// AudioBacked follows the position of a. A nil track gives StopwatchOnly.
func AudioBacked(a Audio) Source {
	if a == nil {
		return StopwatchOnly()
	}
	return Source{kind: KindAudio, audio: a}
}

func (s Source) Kind() SourceKind { return s.kind }

func (s Source) HasAudio() bool { return s.kind == KindAudio }

// ResolveTime returns the playback time. An audio-backed source uses the
// audio position, except when that position still reads exactly zero after
// the stopwatch has run past grace: the track has not started or has
// stalled, and stopwatch plus offset takes over.
func ResolveTime(src Source, elapsed, offset, audioPos, grace time.Duration) time.Duration {
	if src.HasAudio() {
		if audioPos != 0 || elapsed <= grace {
			return audioPos
		}
	}
	return elapsed + offset
}

// frameEpsilon absorbs float error when t sits exactly on a frame boundary.
const frameEpsilon = 1e-9

// TargetFrame is floor(t * fps).
func TargetFrame(t time.Duration, fps float64) int {
	f := math.Floor(t.Seconds()*fps + frameEpsilon)
	if f < 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

// FrameTime is the start time of frame. It rounds up to the next
// nanosecond so that TargetFrame(FrameTime(f)) is never f-1.
func FrameTime(frame int, fps float64) time.Duration {
	if frame <= 0 || fps <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(float64(frame) * float64(time.Second) / fps))
}

// Stopwatch accumulates running time across Start/Stop pairs. It is not
// safe for concurrent use; Session guards it.
type Stopwatch struct {
	now     func() time.Time
	running bool
	since   time.Time
	total   time.Duration
}

// NewStopwatch returns a stopped stopwatch. A nil now uses time.Now.
func NewStopwatch(now func() time.Time) *Stopwatch {
	if now == nil {
		now = time.Now
	}
	return &Stopwatch{now: now}
}

func (sw *Stopwatch) Start() {
	if sw.running {
		return
	}
	sw.since = sw.now()
	sw.running = true
}

func (sw *Stopwatch) Stop() {
	if !sw.running {
		return
	}
	sw.total += sw.now().Sub(sw.since)
	sw.running = false
}

// Reset stops the stopwatch and clears it.
func (sw *Stopwatch) Reset() {
	sw.running = false
	sw.total = 0
}

// Restart clears the stopwatch and starts it.
func (sw *Stopwatch) Restart() {
	sw.Reset()
	sw.Start()
}

func (sw *Stopwatch) Running() bool {
	return sw.running
}

func (sw *Stopwatch) Elapsed() time.Duration {
	if sw.running {
		return sw.total + sw.now().Sub(sw.since)
	}
	return sw.total
}
