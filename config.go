package agpu

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/gogpu/agpu/backend"
)

// Config is the file form of the device options.
//
//	backend = "software"
//	label = "tools"
//	memory_budget = 268435456
//	staging_initial_capacity = 1048576
//	log_level = "debug"
type Config struct {
	// Backend names a registered backend; empty selects OpenDefault.
	Backend string `toml:"backend"`

	Label   string `toml:"label"`
	Adapter string `toml:"adapter"`

	MemoryBudget           uint64 `toml:"memory_budget"`
	StagingInitialCapacity uint64 `toml:"staging_initial_capacity"`

	// LogLevel is a slog level name ("debug", "info", "warn", "error").
	LogLevel string `toml:"log_level"`
}

// LoadConfig reads a TOML config file. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: config %s: %w", ErrInvalidParameter, path, err)
	}
	return cfg, checkConfig(path, md, cfg)
}

// ParseConfig decodes a TOML config from a string.
func ParseConfig(data string) (Config, error) {
	var cfg Config
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: config: %w", ErrInvalidParameter, err)
	}
	return cfg, checkConfig("config", md, cfg)
}

func checkConfig(name string, md toml.MetaData, cfg Config) error {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%w: %s: unknown keys %s", ErrInvalidParameter, name, strings.Join(keys, ", "))
	}
	if _, err := cfg.Level(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidParameter, name, err)
	}
	return nil
}

// Write encodes the config as TOML.
func (c Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Level parses LogLevel; an empty level is slog.LevelInfo.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, err
	}
	return l, nil
}

// Options converts the config into device options.
func (c Config) Options() []Option {
	return []Option{
		WithLabel(c.Label),
		WithAdapter(c.Adapter),
		WithMemoryBudget(c.MemoryBudget),
		WithStagingInitialCapacity(c.StagingInitialCapacity),
	}
}

// OpenConfig opens the device a config describes, with extra options
// applied after the config's own.
func OpenConfig(cfg Config, extra ...Option) (*Device, error) {
	opts := append(cfg.Options(), extra...)
	if cfg.Backend == "" {
		return OpenDefault(opts...)
	}
	if !backend.IsRegistered(cfg.Backend) {
		return nil, fmt.Errorf("%w: backend %q not registered (available: %v)", ErrUnsupported, cfg.Backend, backend.Available())
	}
	return Open(cfg.Backend, opts...)
}
