package main

import (
	"context"

	"github.com/aschmelyun/asciiv/internal/audio"
	"github.com/aschmelyun/asciiv/internal/config"
	"github.com/aschmelyun/asciiv/internal/container"
	"github.com/aschmelyun/asciiv/internal/frames"
	"github.com/aschmelyun/asciiv/internal/playback"
	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

type loadedMsg struct {
	player *player
}

type frameMsg struct {
	gen   int
	frame playback.Frame
}

// seekCommitMsg fires after the seek keys have been idle for a moment.
type seekCommitMsg struct {
	seq int
}

type snapshotSavedMsg struct {
	path   string
	copied bool
	err    error
}

type errorMsg struct {
	err error
}

// player is everything that belongs to one open file. It is replaced as a
// whole when another file is loaded.
type player struct {
	gen       int
	path      string
	container *container.Container
	index     *frames.Index
	reader    *frames.Reader
	session   *playback.Session
	track     *audio.Track
	style     lipgloss.Style
	frames    chan playback.Frame
	cancel    context.CancelFunc
}

type model struct {
	cfg        config.Config
	keys       keyMap
	help       help.Model
	spinner    spinner.Model
	progress   progress.Model
	picker     filepicker.Model
	picking    bool
	loading    bool
	loadingMsg string
	quitting   bool
	fullscreen bool
	width      int
	height     int
	inputFile  string
	player     *player
	gen        int
	seekSeq    int
	frame      playback.Frame
	errorMsg   string
	statuses   []string
}

type keyMap struct {
	Toggle     key.Binding
	Back       key.Binding
	Forward    key.Binding
	StepBack   key.Binding
	StepAhead  key.Binding
	Commit     key.Binding
	Start      key.Binding
	End        key.Binding
	VolumeUp   key.Binding
	VolumeDown key.Binding
	Snapshot   key.Binding
	Fullscreen key.Binding
	Open       key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Back, k.Forward, k.VolumeDown, k.VolumeUp, k.Snapshot, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Back, k.Forward, k.StepBack, k.StepAhead, k.Commit, k.Start, k.End},
		{k.VolumeDown, k.VolumeUp, k.Snapshot, k.Fullscreen, k.Open, k.Help, k.Quit},
	}
}
