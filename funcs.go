package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aschmelyun/asciiv/internal/audio"
	"github.com/aschmelyun/asciiv/internal/config"
	"github.com/aschmelyun/asciiv/internal/container"
	"github.com/aschmelyun/asciiv/internal/frames"
	"github.com/aschmelyun/asciiv/internal/playback"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.design/x/clipboard"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// seekDebounce is how long the seek keys must be idle before a scrub is
// committed.
const seekDebounce = 300 * time.Millisecond

func loadCmd(path string, cfg config.Config, gen int) tea.Cmd {
	return func() tea.Msg {
		p, err := loadPlayer(path, cfg, gen)
		if err != nil {
			return errorMsg{err: err}
		}
		return loadedMsg{player: p}
	}
}

func waitForFrameCmd(gen int, ch <-chan playback.Frame) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-ch
		if !ok {
			return nil
		}
		return frameMsg{gen: gen, frame: f}
	}
}

func seekCommitCmd(seq int) tea.Cmd {
	return tea.Tick(seekDebounce, func(time.Time) tea.Msg {
		return seekCommitMsg{seq: seq}
	})
}

func snapshotCmd(dir, source string, frame int, text string) tea.Cmd {
	return func() tea.Msg {
		path, err := saveSnapshot(dir, source, frame, text, time.Now())
		if err != nil {
			return snapshotSavedMsg{err: err}
		}

		copied := true
		if err := copyToClipboard(text); err != nil {
			log.Printf("clipboard unavailable: %v", err)
			copied = false
		}
		return snapshotSavedMsg{path: path, copied: copied}
	}
}

// loadPlayer opens path, indexes its frames and picks the clock. A track
// that cannot be played is not an error: playback falls back to the
// stopwatch.
func loadPlayer(path string, cfg config.Config, gen int) (*player, error) {
	c, err := container.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open container: %w", err)
	}

	idx, err := frames.Indexer{ChunkSize: cfg.ChunkSize}.Build(c.File(), c.TextStart)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to index frames: %w", err)
	}
	log.Printf("indexed %d frames in %s (%d payload bytes)", idx.Len(), path, c.TextSize())

	src := playback.StopwatchOnly()
	var track *audio.Track
	if c.HasAudio() {
		t, err := audio.Open(c.Audio)
		if err != nil {
			log.Printf("audio disabled, using the stopwatch: %v", err)
		} else {
			track = t
			src = playback.AudioBacked(t)
		}
	}

	session, err := playback.NewSession(idx.Len(), c.Header.FPS, src, playback.Options{
		TickInterval:   cfg.Tick,
		PausedInterval: cfg.PausedTick,
		AudioGrace:     cfg.AudioGrace,
	})
	if err != nil {
		if track != nil {
			track.Close()
		}
		c.Close()
		return nil, fmt.Errorf("failed to start playback: %w", err)
	}
	session.SetVolume(cfg.Volume)

	return &player{
		gen:       gen,
		path:      path,
		container: c,
		index:     idx,
		reader:    frames.NewReader(c.File(), idx),
		session:   session,
		track:     track,
		style:     lipgloss.NewStyle().Foreground(frameColor(c.Header.Color)),
		frames:    make(chan playback.Frame, 1),
	}, nil
}

// start begins playback and runs the tick loop until close.
func (p *player) start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.session.Start()

	go func() {
		defer close(p.frames)
		err := p.session.Run(ctx, p.reader, p.frames)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, playback.ErrClosed) {
			log.Printf("playback loop stopped: %v", err)
		}
	}()
}

// close stops the loop, waits for it and releases the audio and the file.
func (p *player) close() {
	if p == nil {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	if err := p.session.Close(); err != nil {
		log.Printf("failed to close audio: %v", err)
	}
	if err := p.container.Close(); err != nil {
		log.Printf("failed to close %s: %v", p.path, err)
	}
}

func (p *player) describe() string {
	clock := "no audio"
	if p.track != nil {
		clock = fmt.Sprintf("%s audio (%s)", p.track.Format(), formatClock(p.track.Duration()))
	} else if p.container.HasAudio() {
		clock = "audio unavailable"
	}
	return fmt.Sprintf("Loaded %s: %d frames at %g fps, %s.", filepath.Base(p.path), p.index.Len(), p.session.FPS(), clock)
}

func saveSnapshot(dir, source string, frame int, text string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	basename := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	name := fmt.Sprintf("%s_%05d_%s.txt", basename, frame, now.Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text+"\n"), 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return path, nil
}

var (
	clipboardOnce sync.Once
	clipboardErr  error
)

func copyToClipboard(text string) error {
	clipboardOnce.Do(func() {
		clipboardErr = clipboard.Init()
	})
	if clipboardErr != nil {
		return clipboardErr
	}
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

// extractAudio pulls the audio track out of a video with ffmpeg.
func extractAudio(inputFile string) (string, error) {
	basename := strings.TrimSuffix(filepath.Base(inputFile), filepath.Ext(inputFile))
	audioFile := filepath.Join(os.TempDir(), basename+".mp3")

	cmd := exec.Command("ffmpeg", "-y", "-i", inputFile, "-vn", audioFile)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to extract audio: %w", err)
	}

	return audioFile, nil
}

// decodeText reads UTF-8 text, dropping a byte order mark if there is one.
// UTF-16 input with a BOM is converted as well.
func decodeText(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func styleOutput(statuses []string) string {
	var styledStatuses []string
	for i, status := range statuses {
		bullet := "├"
		if i == len(statuses)-1 {
			bullet = "└"
		}
		styledStatuses = append(styledStatuses, BulletStyle.Render(bullet)+TextStyle.Render(status))
	}
	return strings.Join(styledStatuses, "\n") + "\n"
}

func plainOutput(statuses []string) string {
	if len(statuses) == 0 {
		return ""
	}
	return strings.Join(statuses, "\n") + "\n"
}

func checkDependency(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}
