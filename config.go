package inflight

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// MaxFramesInFlight bounds the ring size accepted by Validate.
const MaxFramesInFlight = 8

// Duration is a time.Duration that reads and writes as text such as "100s".
// The word "forever" selects WaitForever.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	if time.Duration(d) == WaitForever {
		return []byte("forever"), nil
	}
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if strings.EqualFold(s, "forever") {
		*d = Duration(WaitForever)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) String() string {
	b, _ := d.MarshalText()
	return string(b)
}

// Size is a byte count that reads human sizes such as "256KiB" or "1MB".
// Units are binary.
type Size uint64

func (s Size) MarshalText() ([]byte, error) {
	return []byte(units.BytesSize(float64(s))), nil
}

func (s *Size) UnmarshalText(b []byte) error {
	v, err := units.RAMInBytes(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("negative size %q", string(b))
	}
	*s = Size(v)
	return nil
}

func (s Size) String() string {
	return units.BytesSize(float64(s))
}

// Config holds the frame pipelining policy.
type Config struct {
	// FramesInFlight is the ring size N.
	FramesInFlight int `toml:"frames_in_flight"`
	// FenceTimeout bounds each Completion Gate wait. Exceeding it is fatal.
	FenceTimeout Duration `toml:"fence_timeout"`
	// AcquireTimeout bounds swapchain image acquisition.
	AcquireTimeout Duration `toml:"acquire_timeout"`
	// MaxAcquireRetries is how many times an out of date acquire is retried
	// after recreating the swapchain before the frame is skipped.
	MaxAcquireRetries int `toml:"max_acquire_retries"`
	// UniformArena is the per-slot uniform memory.
	UniformArena Size `toml:"uniform_arena"`
	// UniformAlignment is the sub-allocation alignment inside the arena.
	UniformAlignment int `toml:"uniform_alignment"`
	// LogLevel is applied by LoadConfig callers that own the logger.
	LogLevel slog.Level `toml:"log_level"`
}

// DefaultConfig returns double buffering with a 100 second hang detector.
func DefaultConfig() Config {
	return Config{
		FramesInFlight:    2,
		FenceTimeout:      Duration(DefaultFenceTimeout),
		AcquireTimeout:    Duration(WaitForever),
		MaxAcquireRetries: 3,
		UniformArena:      64 * units.KiB,
		UniformAlignment:  256,
		LogLevel:          slog.LevelInfo,
	}
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	if c.FramesInFlight < 1 || c.FramesInFlight > MaxFramesInFlight {
		return fmt.Errorf("frames_in_flight must be between 1 and %d, got %d", MaxFramesInFlight, c.FramesInFlight)
	}
	if c.FenceTimeout <= 0 {
		return fmt.Errorf("fence_timeout must be positive, got %s", c.FenceTimeout)
	}
	if c.AcquireTimeout <= 0 {
		return fmt.Errorf("acquire_timeout must be positive, got %s", c.AcquireTimeout)
	}
	if c.MaxAcquireRetries < 0 {
		return fmt.Errorf("max_acquire_retries must not be negative, got %d", c.MaxAcquireRetries)
	}
	if c.UniformAlignment <= 0 || c.UniformAlignment&(c.UniformAlignment-1) != 0 {
		return fmt.Errorf("uniform_alignment must be a power of two, got %d", c.UniformAlignment)
	}
	if uint64(c.UniformArena) > math.MaxUint32 {
		return fmt.Errorf("uniform_arena %s is too large", c.UniformArena)
	}
	return nil
}

// DecodeConfig reads TOML over DefaultConfig. Unknown keys are rejected.
func DecodeConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadConfig reads a TOML file. A missing file yields DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	cfg, err := DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	Logger().Info("loaded config", "path", path, "frames_in_flight", cfg.FramesInFlight,
		"fence_timeout", cfg.FenceTimeout.String(), "uniform_arena", cfg.UniformArena.String())
	return cfg, nil
}

// Encode writes c as TOML.
func (c Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
