// Package config reloads sections of the config file while the process runs.
package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"
	"github.com/spf13/viper"
)

// Section binds a config key to the component that consumes it.
type Section struct {
	// Key is the viper path decoded on change, e.g. "shell".
	Key string
	// New returns a pointer to a fresh value to decode into.
	New func() interface{}
	// Target receives the decoded value.
	Target Reloadable
}

// Watcher decodes subscribed sections each time the config file changes.
type Watcher struct {
	v *viper.Viper

	mu       sync.RWMutex
	sections map[string]Section
	watching bool
}

// NewWatcher returns a watcher over v. v must have been read from a file.
func NewWatcher(v *viper.Viper) *Watcher {
	return &Watcher{v: v, sections: map[string]Section{}}
}

// Subscribe registers s, replacing any section with the same key.
func (w *Watcher) Subscribe(s Section) {
	w.mu.Lock()
	w.sections[s.Key] = s
	w.mu.Unlock()
	logger.Debugw("Config section subscribed", "key", s.Key)
}

// Unsubscribe drops the section for key.
func (w *Watcher) Unsubscribe(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.sections[key]; ok {
		delete(w.sections, key)
		logger.Debugw("Config section unsubscribed", "key", key)
	}
}

// Keys returns the subscribed keys in order.
func (w *Watcher) Keys() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	keys := make([]string, 0, len(w.sections))
	for k := range w.sections {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Start begins watching the file. Calling it again is a no-op.
func (w *Watcher) Start() error {
	file := w.v.ConfigFileUsed()
	if file == "" {
		return fmt.Errorf("config watcher: no config file in use")
	}

	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	w.v.OnConfigChange(w.onChange)
	w.v.WatchConfig()
	logger.Infow("Config watcher started", "file", file)
	return nil
}

// Stop makes the watcher ignore further events. viper has no way to end
// its fsnotify loop.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching {
		w.watching = false
		logger.Info("Config watcher stopped")
	}
}

// IsWatching reports whether events are being applied.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

func (w *Watcher) onChange(e fsnotify.Event) {
	w.mu.RLock()
	if !w.watching {
		w.mu.RUnlock()
		return
	}
	sections := make([]Section, 0, len(w.sections))
	for _, s := range w.sections {
		sections = append(sections, s)
	}
	w.mu.RUnlock()

	logger.Infow("Config file changed", "file", e.Name, "op", e.Op.String())
	for _, s := range sections {
		if err := w.Apply(s); err != nil {
			logger.Errorw("Config change rejected", "key", s.Key, "error", err.Error())
			continue
		}
		logger.Infow("Config change applied", "key", s.Key)
	}
}

// Apply decodes s from the current config and hands it to s.Target.
func (w *Watcher) Apply(s Section) error {
	val := s.New()
	if err := w.v.UnmarshalKey(s.Key, val); err != nil {
		return fmt.Errorf("decode %q: %w", s.Key, err)
	}
	if err := s.Target.OnConfigChange(val); err != nil {
		return fmt.Errorf("apply %q: %w", s.Key, err)
	}
	return nil
}
