// Package config resolves player settings from defaults, a .env file, the
// environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is read from the working directory when present.
const DefaultEnvFile = ".env"

// Environment keys
const (
	KeyVolume      = "ASCIIV_VOLUME"
	KeyTick        = "ASCIIV_TICK"
	KeyPausedTick  = "ASCIIV_PAUSED_TICK"
	KeyAudioGrace  = "ASCIIV_AUDIO_GRACE"
	KeyChunkSize   = "ASCIIV_CHUNK_SIZE"
	KeySnapshotDir = "ASCIIV_SNAPSHOT_DIR"
	KeyDebug       = "ASCIIV_DEBUG"
	KeyLogFile     = "ASCIIV_LOG_FILE"
	KeySeekStep    = "ASCIIV_SEEK_STEP"
)

// Default values
const (
	DefaultVolume     = 0.5
	DefaultTick       = 16 * time.Millisecond
	DefaultPausedTick = 100 * time.Millisecond
	DefaultAudioGrace = 500 * time.Millisecond
	DefaultChunkSize  = 64 * 1024
	DefaultLogFile    = "asciiv-debug.log"
	DefaultSeekStep   = 10
)

// Config holds the resolved settings.
type Config struct {
	Volume      float64
	Tick        time.Duration
	PausedTick  time.Duration
	AudioGrace  time.Duration
	ChunkSize   int
	SnapshotDir string
	Debug       bool
	LogFile     string
	SeekStep    int // frames moved by one arrow key press
	Fullscreen  bool
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Volume:      DefaultVolume,
		Tick:        DefaultTick,
		PausedTick:  DefaultPausedTick,
		AudioGrace:  DefaultAudioGrace,
		ChunkSize:   DefaultChunkSize,
		SnapshotDir: ".",
		LogFile:     DefaultLogFile,
		SeekStep:    DefaultSeekStep,
	}
}

// Load returns the defaults overlaid with envFile and then the process
// environment. A missing envFile is not an error.
func Load(envFile string) (Config, error) {
	return load(envFile, os.LookupEnv)
}

func load(envFile string, lookup func(string) (string, bool)) (Config, error) {
	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	get := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	c := Default()
	if err := c.apply(get); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

func (c *Config) apply(get func(string) (string, bool)) error {
	var errs []error

	if v, ok := get(KeyVolume); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", KeyVolume, err))
		}
		c.Volume = f
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{KeyTick, &c.Tick},
		{KeyPausedTick, &c.PausedTick},
		{KeyAudioGrace, &c.AudioGrace},
	} {
		v, ok := get(d.key)
		if !ok {
			continue
		}
		parsed, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.key, err))
			continue
		}
		*d.dst = parsed
	}
	for _, n := range []struct {
		key string
		dst *int
	}{
		{KeyChunkSize, &c.ChunkSize},
		{KeySeekStep, &c.SeekStep},
	} {
		v, ok := get(n.key)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.key, err))
			continue
		}
		*n.dst = parsed
	}
	if v, ok := get(KeySnapshotDir); ok && v != "" {
		c.SnapshotDir = v
	}
	if v, ok := get(KeyLogFile); ok && v != "" {
		c.LogFile = v
	}
	if v, ok := get(KeyDebug); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", KeyDebug, err))
		}
		c.Debug = b
	}
	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("16ms") and bare milliseconds ("16").
func parseDuration(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

// RegisterFlags binds the settings to flags. The current values become the
// flag defaults, so only what the user passes explicitly is overridden.
func (c *Config) RegisterFlags(flags *flag.FlagSet) {
	flags.Float64Var(&c.Volume, "volume", c.Volume, "initial volume, 0 to 1")
	flags.DurationVar(&c.Tick, "tick", c.Tick, "frame check interval while playing")
	flags.DurationVar(&c.PausedTick, "paused-tick", c.PausedTick, "frame check interval while paused")
	flags.DurationVar(&c.AudioGrace, "audio-grace", c.AudioGrace, "how long a silent audio clock is trusted")
	flags.IntVar(&c.ChunkSize, "chunk-size", c.ChunkSize, "indexer read size in bytes")
	flags.StringVar(&c.SnapshotDir, "snapshot-dir", c.SnapshotDir, "directory for frame snapshots")
	flags.BoolVar(&c.Debug, "debug", c.Debug, "write a debug log")
	flags.StringVar(&c.LogFile, "log-file", c.LogFile, "debug log path")
	flags.IntVar(&c.SeekStep, "seek-step", c.SeekStep, "frames per arrow key press")
	flags.BoolVar(&c.Fullscreen, "fullscreen", c.Fullscreen, "start in the alternate screen")
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	var errs []error
	if c.Volume < 0 || c.Volume > 1 {
		errs = append(errs, fmt.Errorf("volume %v out of range 0..1", c.Volume))
	}
	if c.Tick <= 0 {
		errs = append(errs, fmt.Errorf("tick %s must be positive", c.Tick))
	}
	if c.PausedTick <= 0 {
		errs = append(errs, fmt.Errorf("paused tick %s must be positive", c.PausedTick))
	}
	if c.AudioGrace <= 0 {
		errs = append(errs, fmt.Errorf("audio grace %s must be positive", c.AudioGrace))
	}
	if c.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("chunk size %d must not be negative", c.ChunkSize))
	}
	if c.SeekStep < 1 {
		errs = append(errs, fmt.Errorf("seek step %d must be at least 1", c.SeekStep))
	}
	return errors.Join(errs...)
}
