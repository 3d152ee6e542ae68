package shelf

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leafo/shelf/internal/sink"
)

// Config captures shelf settings read from a YAML file.
type Config struct {
	Root              string                 `yaml:"root"`
	TrashDir          string                 `yaml:"trash_dir"`
	Journal           string                 `yaml:"journal"`
	ExistsConcurrency int                    `yaml:"exists_concurrency"`
	SelfEventTTL      time.Duration          `yaml:"self_event_ttl"`
	IgnoreDirs        []string               `yaml:"ignore_directories"`
	Watch             WatchConfig            `yaml:"watch"`
	ChunkSize         int                    `yaml:"chunk_size"`
	ChunkOverlap      int                    `yaml:"chunk_overlap"`
	Meilisearch       sink.MeilisearchConfig `yaml:"meilisearch"`
	Shell             sink.ShellConfig       `yaml:"shell"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() Config {
	return Config{
		Root:     ".",
		TrashDir: ".trash",
	}
}

// LoadConfig reads path over the defaults. Fields missing from the file
// keep their default value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config file not found: %s", path)
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Options converts the configuration into the runtime options of a Shelf.
func (c Config) Options() Options {
	return Options{
		Root:              c.Root,
		TrashDir:          c.TrashDir,
		ExistsConcurrency: c.ExistsConcurrency,
		SelfEventTTL:      c.SelfEventTTL,
		Debounce:          c.Watch.Debounce,
		IgnoreDirs:        append([]string(nil), c.IgnoreDirs...),
	}
}

// ChunkOptions returns how sinks split notes, falling back to the sink
// defaults when no chunk size is set.
func (c Config) ChunkOptions() sink.ChunkOptions {
	if c.ChunkSize <= 0 {
		return sink.DefaultChunkOptions
	}
	return sink.ChunkOptions{ChunkSize: c.ChunkSize, ChunkOverlap: c.ChunkOverlap}
}
