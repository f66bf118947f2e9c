// Package logger holds the flags of the process-wide kart-io logger.
package logger

import (
	"github.com/kart-io/logger"
	"github.com/kart-io/logger/option"
	"github.com/spf13/pflag"
)

// Options embeds option.LogOption so config keys map onto it directly.
type Options struct {
	*option.LogOption `mapstructure:",squash"`
}

// NewOptions returns the logger defaults with rotation for file outputs.
func NewOptions() *Options {
	o := &Options{LogOption: option.DefaultLogOption()}
	if o.Rotation == nil {
		o.Rotation = &option.RotationOption{MaxSize: 50, MaxAge: 7, MaxBackups: 5, Compress: true}
	}
	return o
}

// AddFlags registers the log.* flags.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Engine, "log.engine", o.Engine, "Logging engine, zap or slog.")
	fs.StringVar(&o.Level, "log.level", o.Level, "Minimum level: DEBUG, INFO, WARN or ERROR.")
	fs.StringVar(&o.Format, "log.format", o.Format, "Output format, json or console.")
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths, "Log destinations. File paths are rotated.")
	fs.BoolVar(&o.Development, "log.development", o.Development, "Human friendly output with stack traces on warnings.")
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, "Omit the caller field.")
	fs.BoolVar(&o.DisableStacktrace, "log.disable-stacktrace", o.DisableStacktrace, "Omit stack traces on errors.")

	fs.IntVar(&o.Rotation.MaxSize, "log.rotation.max-size", o.Rotation.MaxSize, "Size in MB at which a log file is rotated.")
	fs.IntVar(&o.Rotation.MaxAge, "log.rotation.max-age", o.Rotation.MaxAge, "Days to keep rotated files.")
	fs.IntVar(&o.Rotation.MaxBackups, "log.rotation.max-backups", o.Rotation.MaxBackups, "Number of rotated files to keep.")
	fs.BoolVar(&o.Rotation.Compress, "log.rotation.compress", o.Rotation.Compress, "Gzip rotated files.")
}

func (o *Options) Validate() error {
	return o.LogOption.Validate()
}

// Init builds the logger and installs it as the global one.
func (o *Options) Init() error {
	l, err := logger.New(o.LogOption)
	if err != nil {
		return err
	}
	logger.SetGlobal(l)
	return nil
}
