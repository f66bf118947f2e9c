// Package options contains flags and options for initializing the ark server.
package options

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/ark/internal/ark"
	"github.com/kart-io/ark/pkg/component/sqlite"
	genericoptions "github.com/kart-io/ark/pkg/options"
	httpopts "github.com/kart-io/ark/pkg/options/http"
	logopts "github.com/kart-io/ark/pkg/options/logger"
	mongodbopts "github.com/kart-io/ark/pkg/options/mongodb"
)

// ShellOptions holds the fallbacks used when the user has not saved a
// preference in settings.
type ShellOptions struct {
	// DefaultTimeout bounds a single evaluation.
	DefaultTimeout time.Duration `json:"default-timeout" mapstructure:"default-timeout"`
	// PageSize is the number of documents returned per page.
	PageSize int `json:"page-size" mapstructure:"page-size"`
	// CSVDelimiter separates fields in CSV exports.
	CSVDelimiter string `json:"csv-delimiter" mapstructure:"csv-delimiter"`
}

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// DataDir holds the store, key file, scripts and exports unless they are
	// set explicitly.
	DataDir string `json:"data-dir" mapstructure:"data-dir"`

	// KeyFile is the shared encryption key generated on first use.
	KeyFile string `json:"key-file" mapstructure:"key-file"`

	// KeyFetchTimeout bounds downloading a user supplied key.
	KeyFetchTimeout time.Duration `json:"key-fetch-timeout" mapstructure:"key-fetch-timeout"`

	// CertificateFile is the bundled client certificate for managed TLS.
	CertificateFile string `json:"certificate-file" mapstructure:"certificate-file"`

	// ScriptDir is where saved scripts are written.
	ScriptDir string `json:"script-dir" mapstructure:"script-dir"`

	// ExportDir receives exports with a relative file name.
	ExportDir string `json:"export-dir" mapstructure:"export-dir"`

	// SSHDialTimeout bounds the SSH dial and handshake of a tunnel.
	SSHDialTimeout time.Duration `json:"ssh-dial-timeout" mapstructure:"ssh-dial-timeout"`

	// HTTPOptions contains the loopback bridge configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// StoreOptions contains the local SQLite store configuration.
	StoreOptions *sqlite.Options `json:"store" mapstructure:"store"`

	// MongoDBOptions contains driver tuning applied to every connection.
	MongoDBOptions *mongodbopts.Options `json:"mongodb" mapstructure:"mongodb"`

	// ShellOptions contains shell defaults.
	ShellOptions *ShellOptions `json:"shell" mapstructure:"shell"`

	// ShutdownTimeout is the timeout for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		DataDir:         defaultDataDir(),
		KeyFetchTimeout: 10 * time.Second,
		SSHDialTimeout:  15 * time.Second,
		HTTPOptions:     httpopts.NewOptions(),
		LogOptions:      logopts.NewOptions(),
		StoreOptions:    sqlite.NewOptions(),
		MongoDBOptions:  mongodbopts.NewOptions(),
		ShellOptions: &ShellOptions{
			DefaultTimeout: 120 * time.Second,
			PageSize:       50,
			CSVDelimiter:   ",",
		},
		ShutdownTimeout: 30 * time.Second,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ark"
	}
	return filepath.Join(home, ".ark")
}

// AddFlags adds all server flags to fs.
func (o *ServerOptions) AddFlags(fs *pflag.FlagSet) {
	o.HTTPOptions.AddFlags(fs)
	o.LogOptions.AddFlags(fs)
	o.StoreOptions.AddFlags(fs)
	o.MongoDBOptions.AddFlags(fs)

	fs.StringVar(&o.DataDir, "data-dir", o.DataDir, "Directory holding the store, key file, scripts and exports.")
	fs.StringVar(&o.KeyFile, "key-file", o.KeyFile, "Shared encryption key file (default <data-dir>/ark.key).")
	fs.DurationVar(&o.KeyFetchTimeout, "key-fetch-timeout", o.KeyFetchTimeout, "Timeout for downloading a user supplied key.")
	fs.StringVar(&o.CertificateFile, "certificate-file", o.CertificateFile, "Bundled client certificate used for managed TLS.")
	fs.StringVar(&o.ScriptDir, "script-dir", o.ScriptDir, "Directory for saved scripts (default <data-dir>/scripts).")
	fs.StringVar(&o.ExportDir, "export-dir", o.ExportDir, "Directory for exports with a relative file name (default <data-dir>/exports).")
	fs.DurationVar(&o.SSHDialTimeout, "ssh-dial-timeout", o.SSHDialTimeout, "Timeout for the SSH dial and handshake of a tunnel.")

	fs.DurationVar(&o.ShellOptions.DefaultTimeout, "shell.default-timeout", o.ShellOptions.DefaultTimeout, "Default timeout of a shell evaluation.")
	fs.IntVar(&o.ShellOptions.PageSize, "shell.page-size", o.ShellOptions.PageSize, "Default number of documents per page.")
	fs.StringVar(&o.ShellOptions.CSVDelimiter, "shell.csv-delimiter", o.ShellOptions.CSVDelimiter, "Default CSV export delimiter.")

	// misc flags
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")
}

// Complete derives the paths left empty from the data directory.
func (o *ServerOptions) Complete() error {
	if o.DataDir == "" {
		o.DataDir = defaultDataDir()
	}
	if o.KeyFile == "" {
		o.KeyFile = filepath.Join(o.DataDir, "ark.key")
	}
	if o.ScriptDir == "" {
		o.ScriptDir = filepath.Join(o.DataDir, "scripts")
	}
	if o.ExportDir == "" {
		o.ExportDir = filepath.Join(o.DataDir, "exports")
	}
	if o.StoreOptions.Path != sqlite.MemoryPath && !filepath.IsAbs(o.StoreOptions.Path) {
		o.StoreOptions.Path = filepath.Join(o.DataDir, o.StoreOptions.Path)
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	errs := genericoptions.ValidateAll(o.HTTPOptions, o.StoreOptions, o.MongoDBOptions)
	if err := o.LogOptions.Validate(); err != nil {
		errs = append(errs, err)
	}

	if o.ShellOptions.DefaultTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shell.default-timeout must be positive"))
	}
	if o.ShellOptions.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("shell.page-size must be positive"))
	}
	if utf8.RuneCountInString(o.ShellOptions.CSVDelimiter) != 1 {
		errs = append(errs, fmt.Errorf("shell.csv-delimiter must be a single character"))
	}
	if o.KeyFetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("key-fetch-timeout must be positive"))
	}

	return utilerrors.NewAggregate(errs)
}

// Config builds an ark.Config based on ServerOptions.
func (o *ServerOptions) Config() (*ark.Config, error) {
	delimiter, _ := utf8.DecodeRuneInString(o.ShellOptions.CSVDelimiter)
	return &ark.Config{
		DataDir:         o.DataDir,
		KeyFile:         o.KeyFile,
		KeyFetchTimeout: o.KeyFetchTimeout,
		CertificateFile: o.CertificateFile,
		ScriptDir:       o.ScriptDir,
		ExportDir:       o.ExportDir,
		SSHDialTimeout:  o.SSHDialTimeout,
		HTTPOptions:     o.HTTPOptions,
		LogOptions:      o.LogOptions,
		StoreOptions:    o.StoreOptions,
		MongoDBOptions:  o.MongoDBOptions,
		ShellTimeout:    o.ShellOptions.DefaultTimeout,
		PageSize:        o.ShellOptions.PageSize,
		CSVDelimiter:    delimiter,
		ShutdownTimeout: o.ShutdownTimeout,
		Viper:           viper.GetViper(),
	}, nil
}
