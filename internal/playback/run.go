package playback

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Run on a closed session.
var ErrClosed = errors.New("playback session closed")

// ErrRunning is returned by Run when the loop is already running.
var ErrRunning = errors.New("playback loop already running")

// Fetcher returns the text of a frame. *frames.Reader implements it.
type Fetcher interface {
	ReadFrame(i int) string
}

// Frame is a snapshot together with the text to display.
type Frame struct {
	Snapshot
	Text string
}

// Run drives the session until Close is called or ctx is done. Every
// iteration ticks once, publishes the frame if it changed and then sleeps:
// TickInterval while playing, PausedInterval while paused. Publishing never
// blocks; when out is full the stale frame is replaced, so out should have
// a capacity of one.
func (s *Session) Run(ctx context.Context, fetch Fetcher, out chan Frame) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	s.running = true
	s.done = make(chan struct{})
	done := s.done
	s.alive.Store(true)
	s.mu.Unlock()

	defer close(done)

	timer := time.NewTimer(s.opts.TickInterval)
	defer timer.Stop()

	for s.alive.Load() {
		snap := s.Tick()
		if snap.Changed {
			publish(out, Frame{Snapshot: snap, Text: fetch.ReadFrame(snap.Frame)})
		}

		wait := s.opts.TickInterval
		if snap.Paused {
			wait = s.opts.PausedInterval
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

func publish(out chan Frame, f Frame) {
	select {
	case out <- f:
		return
	default:
	}
	// Full: the consumer has not caught up. Drop what is queued.
	for {
		select {
		case out <- f:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}

// Close stops the loop started by Run and waits for it to notice, which
// takes at most one interval. Then it stops and releases the audio track.
// Calling it again is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	done := s.done
	s.mu.Unlock()

	s.alive.Store(false)
	if done != nil {
		<-done
	}

	if !s.src.HasAudio() {
		return nil
	}
	s.src.audio.Stop()
	return s.src.audio.Close()
}
