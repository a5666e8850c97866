package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeAudio struct {
	mu      sync.Mutex
	pos     time.Duration
	playing bool
	seeks   []time.Duration
	stops   int
	volume  float64
	closed  bool
	seekErr error
}

func (a *fakeAudio) Play()  { a.mu.Lock(); a.playing = true; a.mu.Unlock() }
func (a *fakeAudio) Pause() { a.mu.Lock(); a.playing = false; a.mu.Unlock() }

func (a *fakeAudio) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.playing = false
	a.pos = 0
	a.stops++
}

func (a *fakeAudio) Seek(d time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seeks = append(a.seeks, d)
	if a.seekErr != nil {
		return a.seekErr
	}
	a.pos = d
	return nil
}

func (a *fakeAudio) Position() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pos
}

func (a *fakeAudio) SetPosition(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pos = d
}

func (a *fakeAudio) SetVolume(v float64) { a.mu.Lock(); a.volume = v; a.mu.Unlock() }

func (a *fakeAudio) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func newSession(t *testing.T, count int, fps float64, src Source, clock *fakeClock) *Session {
	t.Helper()
	s, err := NewSession(count, fps, src, Options{Now: clock.Now})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s
}

func TestResolveTime(t *testing.T) {
	grace := 500 * time.Millisecond
	audio := AudioBacked(&fakeAudio{})

	tests := []struct {
		name     string
		src      Source
		elapsed  time.Duration
		offset   time.Duration
		audioPos time.Duration
		want     time.Duration
	}{
		{name: "stopwatch only", src: StopwatchOnly(), elapsed: 2 * time.Second, offset: time.Second, want: 3 * time.Second},
		{name: "stopwatch ignores audio position", src: StopwatchOnly(), elapsed: time.Second, audioPos: 9 * time.Second, want: time.Second},
		{name: "audio position wins", src: audio, elapsed: 2 * time.Second, offset: time.Second, audioPos: 7 * time.Second, want: 7 * time.Second},
		{name: "zero audio inside grace", src: audio, elapsed: 400 * time.Millisecond, offset: time.Second, want: 0},
		{name: "zero audio at grace", src: audio, elapsed: grace, offset: time.Second, want: 0},
		{name: "zero audio after grace", src: audio, elapsed: 600 * time.Millisecond, offset: time.Second, want: 1600 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveTime(tt.src, tt.elapsed, tt.offset, tt.audioPos, grace); got != tt.want {
				t.Errorf("ResolveTime() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTargetFrame(t *testing.T) {
	tests := []struct {
		t    time.Duration
		fps  float64
		want int
	}{
		{t: 250 * time.Millisecond, fps: 10, want: 2},
		{t: 300 * time.Millisecond, fps: 10, want: 3},
		{t: 0, fps: 30, want: 0},
		{t: time.Second, fps: 29.97, want: 29},
	}
	for _, tt := range tests {
		if got := TargetFrame(tt.t, tt.fps); got != tt.want {
			t.Errorf("TargetFrame(%s, %v) = %d, want %d", tt.t, tt.fps, got, tt.want)
		}
	}
}

func TestFrameTimeRoundTrip(t *testing.T) {
	if got := FrameTime(5, 25); got != 200*time.Millisecond {
		t.Errorf("FrameTime(5, 25) = %s, want 200ms", got)
	}
	for _, fps := range []float64{10, 23.976, 25, 29.97, 30, 59.94, 60} {
		for f := 0; f < 2000; f++ {
			if got := TargetFrame(FrameTime(f, fps), fps); got != f {
				t.Fatalf("fps %v: TargetFrame(FrameTime(%d)) = %d", fps, f, got)
			}
		}
	}
}

func TestStopwatch(t *testing.T) {
	clock := newFakeClock()
	sw := NewStopwatch(clock.Now)

	clock.Advance(time.Second)
	if sw.Elapsed() != 0 {
		t.Fatal("a stopped stopwatch must not accumulate")
	}

	sw.Start()
	clock.Advance(300 * time.Millisecond)
	sw.Stop()
	clock.Advance(5 * time.Second)
	sw.Start()
	clock.Advance(200 * time.Millisecond)
	if got := sw.Elapsed(); got != 500*time.Millisecond {
		t.Errorf("Elapsed() = %s, want 500ms", got)
	}

	sw.Restart()
	clock.Advance(time.Second)
	if got := sw.Elapsed(); got != time.Second || !sw.Running() {
		t.Errorf("after Restart: Elapsed() = %s running = %v", got, sw.Running())
	}

	sw.Reset()
	if sw.Elapsed() != 0 || sw.Running() {
		t.Error("Reset should stop and clear")
	}
}

func TestSessionStopwatchPlayback(t *testing.T) {
	clock := newFakeClock()
	s := newSession(t, 100, 10, StopwatchOnly(), clock)
	s.Start()

	snap := s.Tick()
	if snap.Frame != 0 || !snap.Changed {
		t.Fatalf("first tick = %+v, want frame 0 changed", snap)
	}

	clock.Advance(250 * time.Millisecond)
	if snap = s.Tick(); snap.Frame != 2 || snap.Slider != 2 || !snap.Changed {
		t.Errorf("at 0.25s: %+v, want frame 2", snap)
	}
	clock.Advance(10 * time.Millisecond)
	if snap = s.Tick(); snap.Frame != 2 || snap.Changed {
		t.Errorf("same frame should not be marked changed: %+v", snap)
	}
	clock.Advance(40 * time.Millisecond)
	if snap = s.Tick(); snap.Frame != 3 {
		t.Errorf("at 0.3s: frame %d, want 3", snap.Frame)
	}
}

func TestSessionPauseResume(t *testing.T) {
	clock := newFakeClock()
	a := &fakeAudio{}
	s := newSession(t, 100, 10, StopwatchOnly(), clock)
	s.Start()

	clock.Advance(200 * time.Millisecond)
	s.Tick()
	s.Pause()

	clock.Advance(5 * time.Second)
	snap := s.Tick()
	if !snap.Paused || snap.Frame != 2 || snap.Changed {
		t.Fatalf("paused tick = %+v, want frame 2 unchanged", snap)
	}

	if paused := s.Toggle(); paused {
		t.Fatal("Toggle() should resume")
	}
	clock.Advance(100 * time.Millisecond)
	if snap = s.Tick(); snap.Frame != 3 {
		t.Errorf("after resume frame = %d, want 3", snap.Frame)
	}
	if a.playing {
		t.Error("stopwatch-only session must not touch audio")
	}
}

func TestSessionAudioClock(t *testing.T) {
	clock := newFakeClock()
	a := &fakeAudio{}
	s := newSession(t, 100, 10, AudioBacked(a), clock)
	s.Start()
	if !a.playing {
		t.Fatal("Start() should play the audio")
	}

	a.SetPosition(1200 * time.Millisecond)
	clock.Advance(100 * time.Millisecond)
	if snap := s.Tick(); snap.Frame != 12 || snap.Source != KindAudio {
		t.Errorf("audio at 1.2s: %+v, want frame 12", snap)
	}

	s.Pause()
	if a.playing {
		t.Error("Pause() should pause the audio")
	}
	s.Play()
	if !a.playing {
		t.Error("Play() should resume the audio")
	}
}

func TestSessionAudioStallFallsBack(t *testing.T) {
	clock := newFakeClock()
	a := &fakeAudio{}
	s := newSession(t, 100, 10, AudioBacked(a), clock)
	s.Start()

	clock.Advance(400 * time.Millisecond)
	if snap := s.Tick(); snap.Frame != 0 {
		t.Errorf("inside grace frame = %d, want 0", snap.Frame)
	}
	clock.Advance(200 * time.Millisecond)
	if snap := s.Tick(); snap.Frame != 6 {
		t.Errorf("after grace frame = %d, want 6 from the stopwatch", snap.Frame)
	}
}

func TestSessionShortAudioHandsOverToStopwatch(t *testing.T) {
	clock := newFakeClock()
	a := &fakeAudio{}
	s := newSession(t, 100, 10, AudioBacked(a), clock)
	s.Start()

	clock.Advance(time.Second)
	a.SetPosition(time.Second)
	if snap := s.Tick(); snap.Frame != 10 {
		t.Fatalf("frame = %d, want 10", snap.Frame)
	}
	// The track ends at 2s and its position stays there.
	clock.Advance(time.Second)
	a.SetPosition(2 * time.Second)
	if snap := s.Tick(); snap.Frame != 20 {
		t.Fatalf("frame = %d, want 20", snap.Frame)
	}

	// Wall time spent paused does not count as a stall.
	s.Pause()
	clock.Advance(5 * time.Second)
	s.Play()
	if snap := s.Tick(); snap.Frame != 20 || snap.Time != 2*time.Second {
		t.Fatalf("after resume %+v, want frame 20 from the audio", snap)
	}

	clock.Advance(400 * time.Millisecond)
	if snap := s.Tick(); snap.Frame != 20 {
		t.Errorf("inside grace frame = %d, want 20", snap.Frame)
	}
	clock.Advance(200 * time.Millisecond)
	if snap := s.Tick(); snap.Frame != 26 {
		t.Errorf("after grace frame = %d, want 26 from the stopwatch", snap.Frame)
	}

	// A seek trusts the audio again until it stalls once more.
	if snap := s.Seek(5); snap.Frame != 5 {
		t.Fatalf("Seek(5) frame = %d", snap.Frame)
	}
	if snap := s.Tick(); snap.Frame != 5 {
		t.Errorf("tick after seek frame = %d, want 5", snap.Frame)
	}

	clock.Advance(10 * time.Second)
	snap := s.Tick()
	if !snap.Ended || !snap.Paused {
		t.Errorf("tick past the last frame = %+v, want ended", snap)
	}
}

func TestSessionSeekWithAudio(t *testing.T) {
	clock := newFakeClock()
	a := &fakeAudio{}
	s := newSession(t, 100, 25, AudioBacked(a), clock)
	s.Start()
	clock.Advance(time.Second)
	s.Tick()

	snap := s.Seek(5)
	if !snap.Changed || snap.Frame != 5 || snap.Slider != 5 {
		t.Fatalf("Seek(5) = %+v, want frame 5 changed", snap)
	}
	if len(a.seeks) != 1 || a.seeks[0] != 200*time.Millisecond {
		t.Fatalf("audio seeks = %v, want [200ms]", a.seeks)
	}

	// The audio clock reports the new position; the next tick agrees.
	if snap = s.Tick(); snap.Frame != 5 {
		t.Errorf("tick after seek frame = %d, want 5", snap.Frame)
	}
}

func TestSessionSeekAudioErrorStillSeeks(t *testing.T) {
	clock := newFakeClock()
	a := &fakeAudio{seekErr: errors.New("device gone")}
	s := newSession(t, 100, 10, AudioBacked(a), clock)
	s.Start()

	if snap := s.Seek(40); snap.Frame != 40 {
		t.Errorf("Seek(40) frame = %d", snap.Frame)
	}
	// Audio stuck at zero: after the grace the offset carries the clock.
	clock.Advance(650 * time.Millisecond)
	if snap := s.Tick(); snap.Frame != 46 {
		t.Errorf("frame = %d, want 46", snap.Frame)
	}
}

func TestSessionSeekWithoutAudio(t *testing.T) {
	clock := newFakeClock()
	s := newSession(t, 100, 10, StopwatchOnly(), clock)
	s.Start()
	clock.Advance(3 * time.Second)
	s.Tick()

	snap := s.Seek(10)
	if snap.Frame != 10 || !snap.Changed {
		t.Fatalf("Seek(10) = %+v", snap)
	}
	// The jump is absolute, not added to the time already played.
	clock.Advance(100 * time.Millisecond)
	if snap = s.Tick(); snap.Frame != 11 {
		t.Errorf("frame after seek = %d, want 11", snap.Frame)
	}
}

func TestSessionSeekWhilePaused(t *testing.T) {
	clock := newFakeClock()
	s := newSession(t, 100, 10, StopwatchOnly(), clock)
	s.Start()
	s.Pause()

	snap := s.Seek(20)
	if snap.Frame != 20 || !snap.Paused {
		t.Fatalf("Seek(20) = %+v", snap)
	}
	clock.Advance(10 * time.Second)
	s.Play()
	clock.Advance(100 * time.Millisecond)
	if snap = s.Tick(); snap.Frame != 21 {
		t.Errorf("frame = %d, want 21: time passed while paused must not count", snap.Frame)
	}
}

func TestSessionSeekClamps(t *testing.T) {
	clock := newFakeClock()
	s := newSession(t, 10, 10, StopwatchOnly(), clock)
	if snap := s.Seek(-4); snap.Frame != 0 {
		t.Errorf("Seek(-4) frame = %d", snap.Frame)
	}
	if snap := s.Seek(99); snap.Frame != 9 {
		t.Errorf("Seek(99) frame = %d", snap.Frame)
	}
	if snap := s.SeekBy(-3); snap.Frame != 6 {
		t.Errorf("SeekBy(-3) frame = %d", snap.Frame)
	}
}

func TestSessionDragSuppressesSlider(t *testing.T) {
	clock := newFakeClock()
	s := newSession(t, 100, 10, StopwatchOnly(), clock)
	s.Start()

	s.DragStart()
	s.DragTo(70)
	clock.Advance(500 * time.Millisecond)
	snap := s.Tick()
	if snap.Frame != 5 {
		t.Errorf("frames keep advancing while dragging: frame = %d, want 5", snap.Frame)
	}
	if snap.Slider != 70 || !snap.Dragging {
		t.Errorf("slider = %d dragging = %v, want 70 true", snap.Slider, snap.Dragging)
	}

	snap = s.DragEnd()
	if snap.Frame != 70 || snap.Dragging || !snap.Changed {
		t.Errorf("DragEnd() = %+v, want frame 70", snap)
	}
	clock.Advance(100 * time.Millisecond)
	if snap = s.Tick(); snap.Slider != 71 {
		t.Errorf("slider after release = %d, want 71", snap.Slider)
	}
}

func TestSessionEndOfPlayback(t *testing.T) {
	clock := newFakeClock()
	a := &fakeAudio{}
	s := newSession(t, 3, 10, AudioBacked(a), clock)
	s.Start()

	a.SetPosition(300 * time.Millisecond)
	snap := s.Tick()
	if !snap.Ended || !snap.Paused || snap.Frame != 0 || snap.Slider != 0 || !snap.Changed {
		t.Fatalf("end tick = %+v", snap)
	}
	if a.stops != 1 || a.playing {
		t.Errorf("audio should be stopped once, stops = %d playing = %v", a.stops, a.playing)
	}

	// No automatic resume.
	clock.Advance(10 * time.Second)
	a.SetPosition(5 * time.Second)
	snap = s.Tick()
	if !snap.Paused || snap.Frame != 0 || snap.Changed {
		t.Errorf("tick after end = %+v, want paused at 0", snap)
	}

	// Playing again starts from the beginning.
	a.SetPosition(0)
	s.Play()
	clock.Advance(100 * time.Millisecond)
	if snap = s.Tick(); snap.Ended || snap.Paused || snap.Frame != 0 {
		t.Errorf("replay tick = %+v", snap)
	}
}

func TestSessionEndWithoutAudio(t *testing.T) {
	clock := newFakeClock()
	s := newSession(t, 3, 10, StopwatchOnly(), clock)
	s.Start()
	clock.Advance(time.Second)
	snap := s.Tick()
	if !snap.Ended || snap.Frame != 0 {
		t.Fatalf("tick = %+v, want ended at 0", snap)
	}
	s.Play()
	clock.Advance(150 * time.Millisecond)
	if snap = s.Tick(); snap.Frame != 1 {
		t.Errorf("replay frame = %d, want 1: stopwatch and offset reset", snap.Frame)
	}
}

func TestSessionEmptyDoesNotAutoplay(t *testing.T) {
	clock := newFakeClock()
	s := newSession(t, 0, 10, StopwatchOnly(), clock)
	s.Start()
	if snap := s.Snapshot(); !snap.Paused {
		t.Error("a session with nothing to play should stay paused")
	}
}

func TestSessionVolume(t *testing.T) {
	clock := newFakeClock()
	a := &fakeAudio{}
	s := newSession(t, 10, 10, AudioBacked(a), clock)
	if a.volume != DefaultVolume {
		t.Errorf("initial volume = %v, want %v", a.volume, DefaultVolume)
	}
	if got := s.SetVolume(1.7); got != 1 || a.volume != 1 {
		t.Errorf("SetVolume(1.7) = %v, audio %v", got, a.volume)
	}
	if got := s.SetVolume(-1); got != 0 {
		t.Errorf("SetVolume(-1) = %v", got)
	}
}

func TestNewSessionRejectsBadInput(t *testing.T) {
	for _, fps := range []float64{0, -1} {
		if _, err := NewSession(10, fps, StopwatchOnly(), Options{}); err == nil {
			t.Errorf("fps %v should be rejected", fps)
		}
	}
	if _, err := NewSession(-1, 30, StopwatchOnly(), Options{}); err == nil {
		t.Error("negative frame count should be rejected")
	}
}

func TestSessionConcurrentSeekAndTick(t *testing.T) {
	s, err := NewSession(1000, 30, StopwatchOnly(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	s.Start()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				switch (i + g) % 4 {
				case 0:
					s.Seek(i)
				case 1:
					s.Tick()
				case 2:
					s.DragTo(i)
				default:
					s.DragEnd()
				}
			}
		}(g)
	}
	wg.Wait()

	snap := s.Snapshot()
	if snap.Frame < 0 || snap.Frame >= 1000 {
		t.Errorf("frame out of range: %d", snap.Frame)
	}
}

type textFetcher []string

func (f textFetcher) ReadFrame(i int) string {
	if i < 0 || i >= len(f) {
		return ""
	}
	return f[i]
}

func TestRunPublishesAndCloses(t *testing.T) {
	frames := make(textFetcher, 50)
	for i := range frames {
		frames[i] = fmt.Sprintf("frame %d", i)
	}
	a := &fakeAudio{}
	s, err := NewSession(len(frames), 1000, AudioBacked(a), Options{TickInterval: time.Millisecond, PausedInterval: 5 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	s.Start()

	out := make(chan Frame, 1)
	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background(), frames, out) }()

	select {
	case f := <-out:
		if f.Text != frames[f.Frame] {
			t.Errorf("published text %q for frame %d", f.Text, f.Frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame published")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
	if !a.closed {
		t.Error("Close should release the audio")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := s.Run(context.Background(), frames, out); !errors.Is(err, ErrClosed) {
		t.Errorf("Run() after Close error = %v, want ErrClosed", err)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	s, err := NewSession(10, 10, StopwatchOnly(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, textFetcher{}, make(chan Frame, 1)); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestPublishReplacesStaleFrame(t *testing.T) {
	out := make(chan Frame, 1)
	publish(out, Frame{Text: "old"})
	publish(out, Frame{Text: "new"})
	if f := <-out; f.Text != "new" {
		t.Errorf("got %q, want the latest frame", f.Text)
	}
}
