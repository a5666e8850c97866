package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/aschmelyun/asciiv/internal/config"
	"github.com/aschmelyun/asciiv/internal/container"
	"github.com/aschmelyun/asciiv/internal/playback"
	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

const VERSION = "1.0.0"

func newKeyMap() keyMap {
	return keyMap{
		Toggle:     key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
		Back:       key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "rewind")),
		Forward:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "forward")),
		StepBack:   key.NewBinding(key.WithKeys(","), key.WithHelp(",", "previous frame")),
		StepAhead:  key.NewBinding(key.WithKeys("."), key.WithHelp(".", "next frame")),
		Commit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "seek now")),
		Start:      key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("home", "start")),
		End:        key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("end", "last frame")),
		VolumeUp:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "louder")),
		VolumeDown: key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "quieter")),
		Snapshot:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "snapshot")),
		Fullscreen: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "fullscreen")),
		Open:       key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func newPicker() filepicker.Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{container.Extension}
	fp.AutoHeight = true
	if dir, err := os.Getwd(); err == nil {
		fp.CurrentDirectory = dir
	}
	return fp
}

func newModel(cfg config.Config, inputFile string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	m := model{
		cfg:        cfg,
		keys:       newKeyMap(),
		help:       help.New(),
		spinner:    s,
		progress:   progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		picker:     newPicker(),
		fullscreen: cfg.Fullscreen,
		inputFile:  inputFile,
	}
	if inputFile == "" {
		m.picking = true
	} else {
		m.loading = true
		m.loadingMsg = "Indexing " + filepath.Base(inputFile) + "..."
	}
	return m
}

func (m model) Init() tea.Cmd {
	if m.picking {
		return m.picker.Init()
	}
	if m.loading {
		return tea.Batch(
			m.spinner.Tick,
			loadCmd(m.inputFile, m.cfg, m.gen),
		)
	}
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.progress.Width = max(10, msg.Width-4)
		m.help.Width = msg.Width
		if m.picking {
			var cmd tea.Cmd
			m.picker, cmd = m.picker.Update(msg)
			return m, cmd
		}
		return m, nil

	case loadedMsg:
		if msg.player.gen != m.gen {
			// A newer load was started in the meantime.
			msg.player.close()
			return m, nil
		}
		m.player.close()
		m.player = msg.player
		m.loading = false
		m.errorMsg = ""
		m.frame = playback.Frame{}
		m.statuses = append(m.statuses, m.player.describe())
		m.player.start()
		return m, waitForFrameCmd(m.player.gen, m.player.frames)

	case frameMsg:
		if m.player == nil || msg.gen != m.player.gen {
			return m, nil
		}
		m.frame = msg.frame
		return m, waitForFrameCmd(msg.gen, m.player.frames)

	case seekCommitMsg:
		if msg.seq == m.seekSeq {
			m.commitSeek()
		}
		return m, nil

	case snapshotSavedMsg:
		switch {
		case msg.err != nil:
			m.statuses = append(m.statuses, msg.err.Error())
		case msg.copied:
			m.statuses = append(m.statuses, "Snapshot saved to "+msg.path+" and copied to the clipboard.")
		default:
			m.statuses = append(m.statuses, "Snapshot saved to "+msg.path+".")
		}
		return m, nil

	case errorMsg:
		m.statuses = append(m.statuses, msg.err.Error())
		m.loading = false
		m.errorMsg = msg.err.Error()
		return m, nil

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) && (msg.String() == "ctrl+c" || !m.picking) {
			m.player.close()
			m.quitting = true
			return m, tea.Quit
		}
		if key.Matches(msg, m.keys.Open) && !m.loading {
			if m.picking && m.player == nil {
				return m, nil
			}
			m.picking = !m.picking
			if m.picking {
				m.picker = newPicker()
				return m, m.picker.Init()
			}
			return m, nil
		}
		if m.picking {
			return m.updatePicker(msg)
		}
		if key.Matches(msg, m.keys.Fullscreen) {
			m.fullscreen = !m.fullscreen
			if m.fullscreen {
				return m, tea.EnterAltScreen
			}
			return m, tea.ExitAltScreen
		}
		if m.player == nil || m.loading {
			return m, nil
		}
		return m.handlePlayerKey(msg)
	}

	if m.picking {
		return m.updatePicker(msg)
	}
	return m, nil
}

func (m model) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)

	if ok, path := m.picker.DidSelectFile(msg); ok {
		return m.startLoad(path)
	}
	if ok, path := m.picker.DidSelectDisabledFile(msg); ok {
		m.statuses = append(m.statuses, filepath.Base(path)+" is not an "+container.Extension+" file.")
	}
	return m, cmd
}

func (m model) startLoad(path string) (tea.Model, tea.Cmd) {
	m.picking = false
	m.loading = true
	m.errorMsg = ""
	m.inputFile = path
	m.loadingMsg = "Indexing " + filepath.Base(path) + "..."
	m.gen++
	return m, tea.Batch(
		m.spinner.Tick,
		loadCmd(path, m.cfg, m.gen),
	)
}

func (m model) handlePlayerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.player.session

	switch {
	case key.Matches(msg, m.keys.Toggle):
		s.Toggle()

	case key.Matches(msg, m.keys.Back):
		cmd := m.scrub(-m.cfg.SeekStep)
		return m, cmd

	case key.Matches(msg, m.keys.Forward):
		cmd := m.scrub(m.cfg.SeekStep)
		return m, cmd

	case key.Matches(msg, m.keys.StepBack):
		m.show(s.SeekBy(-1))

	case key.Matches(msg, m.keys.StepAhead):
		m.show(s.SeekBy(1))

	case key.Matches(msg, m.keys.Commit):
		m.commitSeek()

	case key.Matches(msg, m.keys.Start):
		m.show(s.Seek(0))

	case key.Matches(msg, m.keys.End):
		m.show(s.Seek(s.FrameCount() - 1))

	case key.Matches(msg, m.keys.VolumeUp):
		s.SetVolume(s.Snapshot().Volume + 0.1)

	case key.Matches(msg, m.keys.VolumeDown):
		s.SetVolume(s.Snapshot().Volume - 0.1)

	case key.Matches(msg, m.keys.Snapshot):
		return m, snapshotCmd(m.cfg.SnapshotDir, m.player.path, m.frame.Frame, m.frame.Text)

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

// scrub moves the held seek bar. The seek itself happens once the keys have
// been idle for seekDebounce, or on enter.
func (m *model) scrub(delta int) tea.Cmd {
	s := m.player.session
	snap := s.Snapshot()
	if !snap.Dragging {
		s.DragStart()
	}
	s.DragTo(snap.Slider + delta)
	m.seekSeq++
	return seekCommitCmd(m.seekSeq)
}

func (m *model) commitSeek() {
	if m.player == nil || !m.player.session.Snapshot().Dragging {
		return
	}
	m.show(m.player.session.DragEnd())
}

// show displays a seek result right away instead of waiting for the next tick.
func (m *model) show(snap playback.Snapshot) {
	m.frame = playback.Frame{Snapshot: snap, Text: m.player.reader.ReadFrame(snap.Frame)}
}

func (m model) View() string {
	if m.quitting {
		return styleOutput(m.statuses)
	}

	if m.picking {
		header := BulletStyle.Render("┌") + TitleStyle.Render("Open an "+container.Extension+" file") + "\n"
		return header + m.picker.View() + "\n" + lastStatus(m.statuses)
	}

	if m.errorMsg != "" {
		return styleOutput(m.statuses) + "\nPress 'o' to open another file or 'q' to quit"
	}

	if m.loading || m.player == nil {
		return fmt.Sprintf("%s%s", m.spinner.View(), m.loadingMsg)
	}

	snap := m.player.session.Snapshot()
	text := m.player.style
	if m.width > 0 && m.height > 0 {
		text = text.MaxWidth(m.width).MaxHeight(max(1, m.height-4))
	}

	return text.Render(m.frame.Text) + "\n" + m.statusLine(snap) + "\n" + m.help.View(m.keys)
}

func (m model) statusLine(snap playback.Snapshot) string {
	percent := 0.0
	if snap.FrameCount > 1 {
		percent = float64(snap.Slider) / float64(snap.FrameCount-1)
	}

	state := "▶"
	if snap.Paused {
		state = PausedStyle.Render("Ⅱ")
	}
	fps := m.player.session.FPS()
	info := fmt.Sprintf("%s %s / %s  frame %d/%d  vol %d%%  %s",
		state,
		formatClock(playback.FrameTime(snap.Slider, fps)),
		formatClock(playback.FrameTime(snap.FrameCount, fps)),
		snap.Slider+1, snap.FrameCount,
		int(snap.Volume*100+0.5),
		snap.Source,
	)
	return m.progress.ViewAs(percent) + "\n" + StatusStyle.Render(info) + " " + DimTextStyle.Render(lastStatusText(m.statuses))
}

func lastStatus(statuses []string) string {
	if len(statuses) == 0 {
		return ""
	}
	return styleOutput(statuses[len(statuses)-1:])
}

func lastStatusText(statuses []string) string {
	if len(statuses) == 0 {
		return ""
	}
	return statuses[len(statuses)-1]
}

func main() {
	args := os.Args[1:]
	command := "play"
	if len(args) > 0 {
		switch args[0] {
		case "play", "pack", "info", "export", "help", "version":
			command, args = args[0], args[1:]
		}
	}

	var err error
	switch command {
	case "help":
		printUsage()
	case "version":
		fmt.Println(BulletStyle.Render("└") + TextStyle.Render(VERSION))
	case "pack":
		err = runPack(args)
	case "info":
		err = runInfo(args)
	case "export":
		err = runExport(args)
	default:
		err = runPlay(args)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, BulletStyle.Render("└")+ErrorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(BulletStyle.Render("┌") + TitleStyle.Render("asciiv"))
	fmt.Println(BulletStyle.Render("├") + TextStyle.Render("Usage: asciiv [options] [file.asciiv]"))
	fmt.Println(BulletStyle.Render("│"))
	fmt.Println(BulletStyle.Render("├") + TextStyle.Render("Commands:"))
	fmt.Println(BulletStyle.Render("├────") + TextStyle.Render("play") + DimTextStyle.Render("    play a file, or pick one when none is given"))
	fmt.Println(BulletStyle.Render("├────") + TextStyle.Render("pack") + DimTextStyle.Render("    pack text frames and audio into a container"))
	fmt.Println(BulletStyle.Render("├────") + TextStyle.Render("info") + DimTextStyle.Render("    show what a container holds"))
	fmt.Println(BulletStyle.Render("├────") + TextStyle.Render("export") + DimTextStyle.Render("  write frames, audio and frame rate to a directory"))
	fmt.Println(BulletStyle.Render("│"))
	fmt.Println(BulletStyle.Render("├") + TextStyle.Render("Player options:"))

	flags := flag.NewFlagSet("play", flag.ContinueOnError)
	cfg := config.Default()
	cfg.RegisterFlags(flags)
	flags.VisitAll(func(f *flag.Flag) {
		spaces := strings.Repeat(" ", max(1, 14-len(f.Name)))
		fmt.Println(BulletStyle.Render("├────") + TextStyle.Render("--"+f.Name) + DimTextStyle.Render(spaces+f.Usage))
	})

	fmt.Println(BulletStyle.Render("│"))
	fmt.Println(BulletStyle.Render("├") + TextStyle.Render("Requirements:"))
	status := "✔ installed"
	if !checkDependency("ffmpeg") {
		status = "✗ missing (only needed for pack -audio-from)"
	}
	fmt.Println(BulletStyle.Render("├────") + TextStyle.Render("ffmpeg") + DimTextStyle.Render("    "+status))
	fmt.Println(BulletStyle.Render("│"))
	fmt.Println(BulletStyle.Render("└") + TextStyle.Render("Settings are also read from .env and ASCIIV_* environment variables."))
}

// loadConfig resolves the settings and binds them to flags so that explicit
// flags win.
func loadConfig(flags *flag.FlagSet, args []string) (config.Config, error) {
	cfg, err := config.Load(config.DefaultEnvFile)
	if err != nil {
		return cfg, err
	}
	cfg.RegisterFlags(flags)
	if err := flags.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func runPlay(args []string) error {
	flags := flag.NewFlagSet("play", flag.ContinueOnError)
	var showHelp, showVersion bool
	flags.BoolVar(&showHelp, "help", false, "Show usage info")
	flags.BoolVar(&showVersion, "version", false, "Show version info")
	flags.Usage = printUsage

	cfg, err := loadConfig(flags, args)
	if err != nil {
		return err
	}

	if showHelp {
		printUsage()
		return nil
	}
	if showVersion {
		fmt.Println(BulletStyle.Render("└") + TextStyle.Render(VERSION))
		return nil
	}

	var inputFile string
	switch flags.NArg() {
	case 0:
	case 1:
		inputFile = flags.Arg(0)
		if _, err := os.Stat(inputFile); os.IsNotExist(err) {
			return fmt.Errorf("file '%s' does not exist", inputFile)
		}
	default:
		printUsage()
		return errors.New("expected at most one file")
	}

	// The terminal belongs to the player; log lines go to a file or nowhere.
	if cfg.Debug {
		f, err := tea.LogToFile(cfg.LogFile, "asciiv")
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
	} else {
		log.SetOutput(io.Discard)
	}

	var opts []tea.ProgramOption
	if cfg.Fullscreen {
		opts = append(opts, tea.WithAltScreen())
	}

	p := tea.NewProgram(newModel(cfg, inputFile), opts...)
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("failed to run player: %w", err)
	}
	// Make sure nothing keeps playing if the program stopped without quitting.
	if m, ok := final.(model); ok && !m.quitting {
		m.player.close()
	}
	return nil
}

func runPack(args []string) error {
	flags := flag.NewFlagSet("pack", flag.ContinueOnError)
	var opts packOptions
	flags.StringVar(&opts.output, "o", "", "output file (default: input name with "+container.Extension+")")
	flags.Float64Var(&opts.fps, "fps", 30, "frames per second")
	flags.StringVar(&opts.color, "color", "White", "text color name or #RRGGBB")
	flags.StringVar(&opts.audioFile, "audio", "", "mp3 or wav file to embed")
	flags.StringVar(&opts.audioFrom, "audio-from", "", "video to extract the audio from with ffmpeg")
	flags.IntVar(&opts.chunkSize, "chunk-size", config.DefaultChunkSize, "indexer read size in bytes")
	flags.Usage = func() {
		fmt.Println(BulletStyle.Render("├") + TextStyle.Render("Usage: asciiv pack [options] <frames.txt | frames-dir>"))
		fmt.Println(BulletStyle.Render("│"))
		fmt.Println(BulletStyle.Render("├") + TextStyle.Render("Options:"))
		flags.VisitAll(func(f *flag.Flag) {
			spaces := strings.Repeat(" ", max(1, 12-len(f.Name)))
			fmt.Println(BulletStyle.Render("├────") + TextStyle.Render("-"+f.Name) + DimTextStyle.Render(spaces+f.Usage))
		})
		fmt.Println(BulletStyle.Render("└") + DimTextStyle.Render("A directory is packed one .txt file per frame, in name order."))
	}

	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return errors.New("expected one input")
	}
	if opts.audioFile != "" && opts.audioFrom != "" {
		return errors.New("use either -audio or -audio-from, not both")
	}

	res, err := packAnimation(flags.Arg(0), opts)
	if err != nil {
		return err
	}

	audioLine := "No audio."
	if res.audioBytes > 0 {
		audioLine = fmt.Sprintf("Embedded %d bytes of audio.", res.audioBytes)
	}
	printLines([]string{
		fmt.Sprintf("Packed %d frames.", res.frames),
		audioLine,
		"Saved output to " + res.output,
	})
	return nil
}

func runInfo(args []string) error {
	flags := flag.NewFlagSet("info", flag.ContinueOnError)
	chunkSize := flags.Int("chunk-size", config.DefaultChunkSize, "indexer read size in bytes")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("usage: asciiv info <file.asciiv>")
	}

	in, err := inspect(flags.Arg(0), *chunkSize)
	if err != nil {
		return err
	}
	printLines(in.lines())
	return nil
}

func runExport(args []string) error {
	flags := flag.NewFlagSet("export", flag.ContinueOnError)
	dir := flags.String("o", "", "output directory (default: input name)")
	chunkSize := flags.Int("chunk-size", config.DefaultChunkSize, "indexer read size in bytes")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("usage: asciiv export [-o dir] <file.asciiv>")
	}

	input := flags.Arg(0)
	if *dir == "" {
		*dir = strings.TrimSuffix(input, filepath.Ext(input)) + "_frames"
	}

	res, err := exportContainer(input, *dir, *chunkSize)
	if err != nil {
		return err
	}

	lines := []string{fmt.Sprintf("Exported %d frames to %s.", res.frames, *dir)}
	if res.audioFile != "" {
		lines = append(lines, "Audio saved to "+res.audioFile)
	}
	printLines(lines)
	return nil
}

// printLines uses the styled tree when stdout is a terminal and plain lines
// when it is piped.
func printLines(lines []string) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Print(styleOutput(lines))
		return
	}
	fmt.Print(plainOutput(lines))
}
