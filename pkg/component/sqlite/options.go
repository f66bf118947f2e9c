package sqlite

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/ark/pkg/options"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Options defines configuration options for the local SQLite store.
type Options struct {
	Path               string        `json:"path" mapstructure:"path"`
	MaxOpenConnections int           `json:"max-open-connections" mapstructure:"max-open-connections"`
	BusyTimeout        time.Duration `json:"busy-timeout" mapstructure:"busy-timeout"`
	SlowThreshold      time.Duration `json:"slow-threshold" mapstructure:"slow-threshold"`
	LogLevel           int           `json:"log-level" mapstructure:"log-level"`
}

var _ options.IOptions = (*Options)(nil)

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Path:               "ark.db",
		MaxOpenConnections: 1,
		BusyTimeout:        5 * time.Second,
		SlowThreshold:      200 * time.Millisecond,
		LogLevel:           1,
	}
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Path == "" {
		errs = append(errs, fmt.Errorf("store.path must not be empty"))
	}
	if o.LogLevel < 1 || o.LogLevel > 4 {
		errs = append(errs, fmt.Errorf("store.log-level must be between 1 and 4"))
	}
	return errs
}

// AddFlags adds flags for the store to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Path, options.Join(prefixes...)+"store.path", o.Path, "Path of the SQLite file holding connections, scripts and settings.")
	fs.IntVar(&o.MaxOpenConnections, options.Join(prefixes...)+"store.max-open-connections", o.MaxOpenConnections, "Maximum number of open connections to the store.")
	fs.DurationVar(&o.BusyTimeout, options.Join(prefixes...)+"store.busy-timeout", o.BusyTimeout, "How long a write waits on a locked store.")
	fs.DurationVar(&o.SlowThreshold, options.Join(prefixes...)+"store.slow-threshold", o.SlowThreshold, "Queries slower than this are logged as warnings.")
	fs.IntVar(&o.LogLevel, options.Join(prefixes...)+"store.log-level", o.LogLevel, "GORM log level (1 silent, 2 error, 3 warn, 4 info).")
}

// DSN returns the glebarez/sqlite data source name.
func (o *Options) DSN() string {
	if o.Path == MemoryPath {
		return o.Path
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", o.Path, o.BusyTimeout.Milliseconds())
}
