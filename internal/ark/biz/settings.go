package biz

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kart-io/logger"

	"github.com/kart-io/ark/internal/ark/shell"
	"github.com/kart-io/ark/internal/ark/store"
	"github.com/kart-io/ark/internal/model"
)

// Defaults are the configured fallbacks for unset user settings.
type Defaults struct {
	PageSize        int
	ShellTimeout    time.Duration
	CSVDelimiter    rune
	ExportDirectory string
}

// ShellConfig is the reloadable shell section of the config file.
type ShellConfig struct {
	DefaultTimeout time.Duration `mapstructure:"default-timeout"`
	PageSize       int           `mapstructure:"page-size"`
	CSVDelimiter   string        `mapstructure:"csv-delimiter"`
}

// SettingsService reads and writes the general settings record.
type SettingsService struct {
	store store.Factory

	mu       sync.RWMutex
	defaults Defaults
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(s store.Factory, d Defaults) *SettingsService {
	return &SettingsService{store: s, defaults: d}
}

// Get returns the stored settings.
func (s *SettingsService) Get(ctx context.Context) (*model.Settings, error) {
	return s.store.Settings().Get(ctx)
}

// Save validates and stores the settings.
func (s *SettingsService) Save(ctx context.Context, v *model.Settings) (*model.Settings, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Settings().Put(ctx, v); err != nil {
		return nil, err
	}
	logger.Infow("Saved settings", "page_size", v.PageSize, "shell_timeout", v.ShellTimeout)
	return v, nil
}

// Effective merges stored settings over the configured defaults. A store
// failure falls back to the defaults.
func (s *SettingsService) Effective(ctx context.Context) Defaults {
	d := s.Defaults()
	v, err := s.Get(ctx)
	if err != nil {
		logger.Warnw("Failed to read settings, using defaults", "error", err.Error())
		return d
	}
	if v.PageSize > 0 {
		d.PageSize = v.PageSize
	}
	if v.ShellTimeout > 0 {
		d.ShellTimeout = time.Duration(v.ShellTimeout) * time.Second
	}
	if v.CSVDelimiter != "" {
		d.CSVDelimiter = []rune(v.CSVDelimiter)[0]
	}
	if v.ExportDirectory != "" {
		d.ExportDirectory = v.ExportDirectory
	}
	return d
}

// Defaults returns the configured fallbacks.
func (s *SettingsService) Defaults() Defaults {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}

// ReloadTarget returns the current shell fallbacks as a *ShellConfig, so
// keys missing from a reloaded file keep their values.
func (s *SettingsService) ReloadTarget() interface{} {
	d := s.Defaults()
	return &ShellConfig{
		DefaultTimeout: d.ShellTimeout,
		PageSize:       d.PageSize,
		CSVDelimiter:   string(d.CSVDelimiter),
	}
}

// OnConfigChange replaces the shell fallbacks with a reloaded *ShellConfig.
// The export directory is not reloadable.
func (s *SettingsService) OnConfigChange(newConfig interface{}) error {
	cfg, ok := newConfig.(*ShellConfig)
	if !ok {
		return fmt.Errorf("unexpected shell config type %T", newConfig)
	}
	if cfg.DefaultTimeout <= 0 {
		return fmt.Errorf("shell.default-timeout must be positive")
	}
	if cfg.PageSize <= 0 {
		return fmt.Errorf("shell.page-size must be positive")
	}
	if utf8.RuneCountInString(cfg.CSVDelimiter) != 1 {
		return fmt.Errorf("shell.csv-delimiter must be a single character")
	}
	delimiter, _ := utf8.DecodeRuneInString(cfg.CSVDelimiter)

	s.mu.Lock()
	s.defaults.ShellTimeout = cfg.DefaultTimeout
	s.defaults.PageSize = cfg.PageSize
	s.defaults.CSVDelimiter = delimiter
	s.mu.Unlock()

	logger.Infow("Reloaded shell defaults", "page_size", cfg.PageSize, "shell_timeout", cfg.DefaultTimeout.String())
	return nil
}

func (d Defaults) evalOptions(page, limit int64, timeoutSeconds int) shell.EvalOptions {
	opts := shell.EvalOptions{Page: page, Limit: limit, Timeout: time.Duration(timeoutSeconds) * time.Second}
	if opts.Limit <= 0 {
		opts.Limit = int64(d.PageSize)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = d.ShellTimeout
	}
	return opts
}
