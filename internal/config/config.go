package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/lazypower/recall/internal/memory"
)

// Config holds all recall configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Memory   MemoryConfig   `toml:"memory"`
	Mode     ModeProfile    `toml:"mode"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// MemoryConfig tunes the memory lifecycle engine.
type MemoryConfig struct {
	NotesLimit           int     `toml:"notes_limit"`
	HistoryStoreLimit    int     `toml:"history_store_limit"`
	HistoryRetentionDays int     `toml:"history_retention_days"`
	SummaryChunkSize     int     `toml:"summary_chunk_size"`
	SummaryLimit         int     `toml:"summary_limit"`
	QualityThreshold     float64 `toml:"quality_threshold"`
	MinLength            int     `toml:"min_length"`
	MaxLength            int     `toml:"max_length"`
	DecayDays            int     `toml:"decay_days"`
	ForgetThreshold      float64 `toml:"forget_threshold"`
	TurnMaxChars         int     `toml:"turn_max_chars"`
}

// ModeProfile is the external mode-config collaborator: caller-level
// overrides applied on every load.
type ModeProfile struct {
	FixedPreferredName string   `toml:"fixed_preferred_name"`
	MaxPinnedMemories  int      `toml:"max_pinned_memories"`
	DoNotLearn         []string `toml:"do_not_learn"`
	PinnedMemories     []string `toml:"pinned_memories"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37710,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Memory: MemoryConfig{
			NotesLimit:           10,
			HistoryStoreLimit:    40,
			HistoryRetentionDays: 45,
			SummaryChunkSize:     20,
			SummaryLimit:         24,
			QualityThreshold:     0.55,
			MinLength:            10,
			MaxLength:            180,
			DecayDays:            30,
			ForgetThreshold:      0.35,
			TurnMaxChars:         1200,
		},
		Mode: ModeProfile{
			MaxPinnedMemories: 40,
		},
	}
}

// Limits maps the memory section onto the engine's limit set. Zero or
// negative values fall back to the engine defaults.
func (c MemoryConfig) Limits() memory.Limits {
	lim := memory.DefaultLimits()
	if c.NotesLimit > 0 {
		lim.NotesLimit = c.NotesLimit
	}
	if c.HistoryStoreLimit > 0 {
		lim.HistoryStoreLimit = c.HistoryStoreLimit
	}
	if c.HistoryRetentionDays > 0 {
		lim.RetentionDays = c.HistoryRetentionDays
	}
	if c.SummaryChunkSize > 0 {
		lim.SummaryChunkSize = c.SummaryChunkSize
	}
	if c.SummaryLimit > 0 {
		lim.SummaryLimit = c.SummaryLimit
	}
	if c.QualityThreshold > 0 {
		lim.QualityThreshold = c.QualityThreshold
	}
	if c.MinLength > 0 {
		lim.MinLength = c.MinLength
	}
	if c.MaxLength > 0 {
		lim.MaxLength = c.MaxLength
	}
	if c.DecayDays > 0 {
		lim.DecayDays = c.DecayDays
	}
	if c.ForgetThreshold > 0 {
		lim.ForgetThreshold = c.ForgetThreshold
	}
	if c.TurnMaxChars > 0 {
		lim.TurnMaxChars = c.TurnMaxChars
	}
	return lim
}

// Load reads a TOML config file over the defaults. A missing file is not
// an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
