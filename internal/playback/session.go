package playback

import (
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Defaults for Options.
const (
	DefaultTickInterval   = 16 * time.Millisecond
	DefaultPausedInterval = 100 * time.Millisecond
	DefaultAudioGrace     = 500 * time.Millisecond
	DefaultVolume         = 0.5
)

// Options tune a Session. Zero values use the defaults.
type Options struct {
	TickInterval   time.Duration // sleep between ticks while playing
	PausedInterval time.Duration // sleep between ticks while paused
	AudioGrace     time.Duration // how long a zero audio position is trusted
	Volume         float64       // initial volume, 0..1; zero means DefaultVolume
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.PausedInterval <= 0 {
		o.PausedInterval = DefaultPausedInterval
	}
	if o.AudioGrace <= 0 {
		o.AudioGrace = DefaultAudioGrace
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Volume == 0 {
		o.Volume = DefaultVolume
	}
	o.Volume = clampVolume(o.Volume)
	return o
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	Frame      int           // frame to display
	Slider     int           // seek bar position
	FrameCount int           // frames in the index
	Time       time.Duration // playback time used for Frame
	Paused     bool
	Dragging   bool
	Ended      bool // playback ran past the last frame
	Volume     float64
	Source     SourceKind
	Changed    bool // Frame must be (re)displayed
}

// Session is the playback state machine for one open container.
type Session struct {
	fps   float64
	count int
	src   Source
	opts  Options

	mu       sync.Mutex
	sw       *Stopwatch
	offset   time.Duration
	paused   bool
	dragging bool
	ended    bool
	frame    int
	slider   int
	volume   float64
	redraw   bool
	position time.Duration // playback time of the last tick
	audioPos time.Duration // last audio position seen by a tick
	audioAt  time.Duration // stopwatch reading when audioPos last moved
	running  bool
	done     chan struct{}
	closed   bool

	alive atomic.Bool
}

// NewSession creates a paused session at frame 0.
func NewSession(frameCount int, fps float64, src Source, opts Options) (*Session, error) {
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0 {
		return nil, fmt.Errorf("invalid frame rate %v", fps)
	}
	if frameCount < 0 {
		return nil, fmt.Errorf("invalid frame count %d", frameCount)
	}
	opts = opts.withDefaults()
	s := &Session{
		fps:    fps,
		count:  frameCount,
		src:    src,
		opts:   opts,
		sw:     NewStopwatch(opts.Now),
		paused: true,
		volume: opts.Volume,
		redraw: true,
	}
	if src.HasAudio() {
		src.audio.SetVolume(s.volume)
	}
	return s, nil
}

// FPS returns the frame rate.
func (s *Session) FPS() float64 { return s.fps }

// FrameCount returns the number of frames.
func (s *Session) FrameCount() int { return s.count }

// Source returns the clock source.
func (s *Session) Source() Source { return s.src }

// Start begins playback from the beginning if there is anything to play.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = 0
	s.sw.Reset()
	s.resetAudioWatchLocked(0)
	s.frame, s.slider = 0, 0
	s.redraw = true
	if s.count == 0 && !s.src.HasAudio() {
		return
	}
	s.playLocked()
}

// Tick advances the state machine once. A paused session does not move.
func (s *Session) Tick() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return s.snapshotLocked(s.takeRedrawLocked())
	}

	elapsed := s.sw.Elapsed()
	var t time.Duration
	if s.src.HasAudio() {
		pos := s.src.audio.Position()
		if s.audioStalledLocked(pos, elapsed) {
			t = elapsed + s.offset
		} else {
			t = ResolveTime(s.src, elapsed, s.offset, pos, s.opts.AudioGrace)
		}
	} else {
		t = elapsed + s.offset
	}
	target := TargetFrame(t, s.fps)

	if target >= s.count {
		s.endLocked()
		return s.snapshotLocked(true)
	}

	redraw := s.takeRedrawLocked()
	changed := redraw || target != s.frame
	s.frame = target
	s.position = t
	if !s.dragging {
		s.slider = target
	}
	return s.snapshotLocked(changed)
}

// audioStalledLocked reports whether the audio position has stood still
// for longer than AudioGrace of stopwatch time. A track that ends before
// the last frame stops there, and the stopwatch has to carry the rest.
// A zero position is left to ResolveTime.
func (s *Session) audioStalledLocked(pos, elapsed time.Duration) bool {
	if pos != s.audioPos {
		s.audioPos = pos
		s.audioAt = elapsed
		return false
	}
	return pos != 0 && elapsed-s.audioAt > s.opts.AudioGrace
}

func (s *Session) resetAudioWatchLocked(pos time.Duration) {
	s.audioPos = pos
	s.audioAt = 0
}

// endLocked is the terminal transition: playback stops at frame 0 and
// stays paused until Play.
func (s *Session) endLocked() {
	s.paused = true
	s.ended = true
	s.sw.Reset()
	s.offset = 0
	s.position = 0
	s.resetAudioWatchLocked(0)
	if s.src.HasAudio() {
		s.src.audio.Stop()
	}
	s.slider = 0
	s.frame = 0
	s.redraw = false
}

func (s *Session) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playLocked()
}

func (s *Session) playLocked() {
	if !s.paused {
		return
	}
	s.paused = false
	s.ended = false
	s.sw.Start()
	if s.src.HasAudio() {
		s.src.audio.Play()
	}
}

// Pause freezes the stopwatch and the audio. Nothing is lost or counted
// twice on resume: the stopwatch continues from where it stopped.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseLocked()
}

func (s *Session) pauseLocked() {
	if s.paused {
		return
	}
	s.paused = true
	s.sw.Stop()
	if s.src.HasAudio() {
		s.src.audio.Pause()
	}
}

// Toggle switches between playing and paused and reports whether the
// session is now paused.
func (s *Session) Toggle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		s.playLocked()
	} else {
		s.pauseLocked()
	}
	return s.paused
}

// DragStart marks the seek bar as held by the user. Ticks keep choosing
// frames but stop moving the bar.
func (s *Session) DragStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragging = true
}

// DragTo moves the held seek bar without seeking.
func (s *Session) DragTo(frame int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragging = true
	s.slider = s.clampLocked(frame)
}

// DragEnd releases the seek bar and seeks to its position.
func (s *Session) DragEnd() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragging = false
	return s.seekLocked(s.slider)
}

// Seek jumps to frame. The returned snapshot already points at the new
// frame so the caller can display it without waiting for a tick.
func (s *Session) Seek(frame int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seekLocked(s.clampLocked(frame))
}

func (s *Session) seekLocked(frame int) Snapshot {
	d := FrameTime(frame, s.fps)
	if s.src.HasAudio() {
		if err := s.src.audio.Seek(d); err != nil {
			log.Printf("playback: audio seek to %s failed: %v", d, err)
		}
	}
	// Absolute time is stopwatch + offset, so the stopwatch restarts from
	// zero. A paused session keeps it stopped.
	s.offset = d
	s.sw.Reset()
	s.resetAudioWatchLocked(d)
	if !s.paused {
		s.sw.Start()
	}
	s.frame = frame
	s.slider = frame
	s.position = d
	s.ended = false
	s.redraw = true
	return s.snapshotLocked(true)
}

// SeekBy moves delta frames from the current one.
func (s *Session) SeekBy(delta int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seekLocked(s.clampLocked(s.frame + delta))
}

// SetVolume sets the audio volume, clamped to 0..1.
func (s *Session) SetVolume(v float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = clampVolume(v)
	if s.src.HasAudio() {
		s.src.audio.SetVolume(s.volume)
	}
	return s.volume
}

// Snapshot returns the current state without advancing it.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(false)
}

func (s *Session) snapshotLocked(changed bool) Snapshot {
	return Snapshot{
		Frame:      s.frame,
		Slider:     s.slider,
		FrameCount: s.count,
		Time:       s.position,
		Paused:     s.paused,
		Dragging:   s.dragging,
		Ended:      s.ended,
		Volume:     s.volume,
		Source:     s.src.kind,
		Changed:    changed,
	}
}

func (s *Session) takeRedrawLocked() bool {
	r := s.redraw
	s.redraw = false
	return r
}

func (s *Session) clampLocked(frame int) int {
	if frame < 0 || s.count == 0 {
		return 0
	}
	if frame >= s.count {
		return s.count - 1
	}
	return frame
}

func clampVolume(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
