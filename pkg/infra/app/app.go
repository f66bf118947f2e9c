// Package app runs a cobra command whose options are filled from defaults,
// a config file, ARK_* style environment variables and flags, in that order
// of increasing precedence.
//
// Usage:
//
//	app := app.NewApp(
//	    app.WithName("ark"),
//	    app.WithDescription("MongoDB desktop client core"),
//	    app.WithOptions(opts),
//	    app.WithRunFunc(run),
//	)
//	app.Run()
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kart-io/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	options "github.com/kart-io/ark/pkg/app"
)

const flagConfig = "config"

// App is the main application structure.
type App struct {
	name        string
	shortDesc   string
	description string
	options     options.CliOptions
	runFunc     RunFunc
	args        cobra.PositionalArgs
	silence     bool
	noVersion   bool
	noConfig    bool

	cmd *cobra.Command
}

// RunFunc is the application's run function.
type RunFunc func() error

// Option configures an App.
type Option func(*App)

// WithName sets the application name. It also names the config file and
// the environment prefix.
func WithName(name string) Option {
	return func(a *App) { a.name = name }
}

// WithShortDescription sets the short description.
func WithShortDescription(desc string) Option {
	return func(a *App) { a.shortDesc = desc }
}

// WithDescription sets the long description.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithOptions sets the CLI options.
func WithOptions(opts options.CliOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc sets the run function.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithArgs sets the positional args validation.
func WithArgs(args cobra.PositionalArgs) Option {
	return func(a *App) { a.args = args }
}

// WithSilence disables error printing by cobra.
func WithSilence() Option {
	return func(a *App) { a.silence = true }
}

// WithNoVersion disables the version flags.
func WithNoVersion() Option {
	return func(a *App) { a.noVersion = true }
}

// WithNoConfig disables config file and environment loading.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// NewApp creates a new application instance.
func NewApp(opts ...Option) *App {
	a := &App{name: filepath.Base(os.Args[0])}
	for _, opt := range opts {
		opt(a)
	}

	a.cmd = &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		Args:          a.args,
		RunE:          a.runCommand,
		SilenceUsage:  true,
		SilenceErrors: a.silence,
	}
	a.cmd.SetOut(os.Stdout)
	a.cmd.SetErr(os.Stderr)
	a.cmd.Flags().SortFlags = true

	if !a.noConfig {
		a.cmd.PersistentFlags().StringP(flagConfig, "c", "", "Path to config file")
	}
	if !a.noVersion {
		version.AddFlags(a.cmd.PersistentFlags())
	}
	if a.options != nil {
		a.options.AddFlags(a.cmd.Flags())
	}
	return a
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	if !a.noVersion {
		version.PrintAndExitIfRequested()
	}

	if a.options != nil {
		if !a.noConfig {
			if err := a.loadConfig(cmd); err != nil {
				return err
			}
		}
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	if a.runFunc == nil {
		return nil
	}
	return a.runFunc()
}

// loadConfig decodes the config file and environment into the options, then
// re-applies the flags given on the command line so they keep precedence.
func (a *App) loadConfig(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString(flagConfig); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName(a.name)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, "."+a.name))
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	expandEnv()

	viper.SetEnvPrefix(strings.ToUpper(strings.ReplaceAll(a.name, "-", "_")))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	changed := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if err := viper.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for name, val := range changed {
		if name == flagConfig {
			continue
		}
		if err := cmd.Flags().Set(name, val); err != nil {
			return fmt.Errorf("failed to re-apply flag %s: %w", name, err)
		}
	}
	return nil
}

// expandEnv substitutes $VAR and ${VAR} in string config values. Unset
// variables are left as written.
func expandEnv() {
	for _, key := range viper.AllKeys() {
		s, ok := viper.Get(key).(string)
		if !ok || !strings.Contains(s, "$") {
			continue
		}
		expanded := os.Expand(s, func(name string) string {
			if v, ok := os.LookupEnv(name); ok && v != "" {
				return v
			}
			return "${" + name + "}"
		})
		if expanded != s {
			viper.Set(key, expanded)
		}
	}
}

// Run executes the application and exits non-zero on error.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command returns the cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}
