package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aschmelyun/asciiv/internal/audio"
	"github.com/aschmelyun/asciiv/internal/container"
	"github.com/aschmelyun/asciiv/internal/frames"
	"github.com/aschmelyun/asciiv/internal/playback"
)

type packOptions struct {
	output    string
	fps       float64
	color     string
	audioFile string
	audioFrom string // video to extract the audio from
	chunkSize int
}

type packResult struct {
	output     string
	frames     int
	audioBytes int
}

// packAnimation writes input (a text file with markers, or a directory of
// one .txt file per frame) into a container.
func packAnimation(input string, opts packOptions) (packResult, error) {
	if opts.output == "" {
		opts.output = strings.TrimSuffix(input, filepath.Ext(input)) + container.Extension
	}
	if opts.color == "" {
		opts.color = "White"
	}

	blob, err := packAudio(opts)
	if err != nil {
		return packResult{}, err
	}

	info, err := os.Stat(input)
	if err != nil {
		return packResult{}, fmt.Errorf("failed to read input: %w", err)
	}

	h := container.Header{FPS: opts.fps, Color: opts.color}
	if info.IsDir() {
		err = packDirectory(input, opts.output, h, blob)
	} else {
		err = packTextFile(input, opts.output, h, blob)
	}
	if err != nil {
		return packResult{}, err
	}

	// Index the result so the reported count is what a player will see.
	in, err := inspect(opts.output, opts.chunkSize)
	if err != nil {
		return packResult{}, err
	}
	return packResult{output: opts.output, frames: in.frames, audioBytes: len(blob)}, nil
}

func packAudio(opts packOptions) ([]byte, error) {
	audioFile := opts.audioFile
	if opts.audioFrom != "" {
		if !checkDependency("ffmpeg") {
			return nil, errors.New("ffmpeg is required to extract audio")
		}
		extracted, err := extractAudio(opts.audioFrom)
		if err != nil {
			return nil, err
		}
		defer os.Remove(extracted)
		audioFile = extracted
	}
	if audioFile == "" {
		return nil, nil
	}

	blob, err := os.ReadFile(audioFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if audio.Detect(blob) == audio.Unknown {
		log.Printf("%s does not look like mp3 or wav, packing it anyway", audioFile)
	}
	return blob, nil
}

func packTextFile(input, output string, h container.Header, blob []byte) error {
	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("failed to open frames: %w", err)
	}
	defer f.Close()

	if err := container.Write(output, h, blob, decodeText(f)); err != nil {
		return fmt.Errorf("failed to write container: %w", err)
	}
	return nil
}

func packDirectory(dir, output string, h container.Header, blob []byte) error {
	files, err := frameFiles(dir)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	go func() {
		pw.CloseWithError(writeFrames(pw, files))
	}()

	if err := container.Write(output, h, blob, pr); err != nil {
		return fmt.Errorf("failed to write container: %w", err)
	}
	return nil
}

// frameFiles lists the .txt files of dir in name order.
func frameFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .txt frames in %s", dir)
	}
	slices.Sort(files)
	return files, nil
}

func writeFrames(w io.Writer, files []string) error {
	fw := frames.NewWriter(w)
	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("failed to open frame: %w", err)
		}
		text, err := io.ReadAll(decodeText(f))
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to read frame %s: %w", file, err)
		}
		if err := fw.WriteFrame(string(text)); err != nil {
			return err
		}
	}
	return fw.Flush()
}

type containerInfo struct {
	path        string
	header      container.Header
	audioBytes  int
	audioFormat audio.Format
	textBytes   int64
	frames      int
	duration    time.Duration
}

func inspect(path string, chunkSize int) (containerInfo, error) {
	c, err := container.Open(path)
	if err != nil {
		return containerInfo{}, fmt.Errorf("failed to open container: %w", err)
	}
	defer c.Close()

	idx, err := frames.Indexer{ChunkSize: chunkSize}.Build(c.File(), c.TextStart)
	if err != nil {
		return containerInfo{}, fmt.Errorf("failed to index frames: %w", err)
	}

	in := containerInfo{
		path:       path,
		header:     c.Header,
		audioBytes: len(c.Audio),
		textBytes:  c.TextSize(),
		frames:     idx.Len(),
		duration:   playback.FrameTime(idx.Len(), c.Header.FPS),
	}
	if c.HasAudio() {
		in.audioFormat = audio.Detect(c.Audio)
	}
	return in, nil
}

func (in containerInfo) lines() []string {
	audioLine := "Audio: none"
	if in.audioBytes > 0 {
		audioLine = fmt.Sprintf("Audio: %s, %d bytes", in.audioFormat, in.audioBytes)
	}
	return []string{
		"File: " + in.path,
		fmt.Sprintf("Frame rate: %g fps", in.header.FPS),
		"Color: " + in.header.Color,
		audioLine,
		fmt.Sprintf("Frames: %d (%d bytes of text)", in.frames, in.textBytes),
		"Duration: " + formatClock(in.duration),
	}
}

type exportResult struct {
	frames    int
	audioFile string
}

// exportContainer writes every frame as frame_NNNNN.txt, the audio blob and
// a meta.txt with the frame rate and color, for an external video encoder.
func exportContainer(path, dir string, chunkSize int) (exportResult, error) {
	c, err := container.Open(path)
	if err != nil {
		return exportResult{}, fmt.Errorf("failed to open container: %w", err)
	}
	defer c.Close()

	idx, err := frames.Indexer{ChunkSize: chunkSize}.Build(c.File(), c.TextStart)
	if err != nil {
		return exportResult{}, fmt.Errorf("failed to index frames: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return exportResult{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	r := frames.NewReader(c.File(), idx)
	for i := 0; i < r.Len(); i++ {
		name := filepath.Join(dir, fmt.Sprintf("frame_%05d.txt", i))
		if err := os.WriteFile(name, []byte(r.ReadFrame(i)), 0644); err != nil {
			return exportResult{}, fmt.Errorf("failed to write frame: %w", err)
		}
	}

	var res exportResult
	res.frames = r.Len()
	if c.HasAudio() {
		res.audioFile = filepath.Join(dir, "audio"+audio.Detect(c.Audio).Ext())
		if err := os.WriteFile(res.audioFile, c.Audio, 0644); err != nil {
			return exportResult{}, fmt.Errorf("failed to write audio: %w", err)
		}
	}

	meta := fmt.Sprintf("fps=%g\ncolor=%s\nframes=%d\n", c.Header.FPS, c.Header.Color, res.frames)
	if err := os.WriteFile(filepath.Join(dir, "meta.txt"), []byte(meta), 0644); err != nil {
		return exportResult{}, fmt.Errorf("failed to write meta: %w", err)
	}
	return res, nil
}
