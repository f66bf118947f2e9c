// Package mongodb provides MongoDB driver tuning options.
//
// Hosts and credentials come from stored connections, so only pool sizing,
// timeouts and the application name are configured here.
package mongodb

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/ark/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options defines driver tuning applied on top of a connection string.
type Options struct {
	AppName string `json:"app-name" mapstructure:"app-name"`

	// Connection Pool
	MaxPoolSize     uint64        `json:"max-pool-size" mapstructure:"max-pool-size"`
	MinPoolSize     uint64        `json:"min-pool-size" mapstructure:"min-pool-size"`
	MaxConnIdleTime time.Duration `json:"max-conn-idle-time" mapstructure:"max-conn-idle-time"`

	// Timeouts
	ConnectTimeout         time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	SocketTimeout          time.Duration `json:"socket-timeout" mapstructure:"socket-timeout"`
	ServerSelectionTimeout time.Duration `json:"server-selection-timeout" mapstructure:"server-selection-timeout"`
	DisconnectTimeout      time.Duration `json:"disconnect-timeout" mapstructure:"disconnect-timeout"`
}

// NewOptions creates a new Options object with default values.
// A desktop client keeps few idle connections per deployment.
func NewOptions() *Options {
	return &Options{
		AppName:                "ark",
		MaxPoolSize:            20,
		MinPoolSize:            0,
		MaxConnIdleTime:        5 * time.Minute,
		ConnectTimeout:         10 * time.Second,
		SocketTimeout:          0,
		ServerSelectionTimeout: 15 * time.Second,
		DisconnectTimeout:      10 * time.Second,
	}
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.MaxPoolSize > 0 && o.MinPoolSize > o.MaxPoolSize {
		errs = append(errs, fmt.Errorf("mongodb.min-pool-size (%d) must not exceed mongodb.max-pool-size (%d)", o.MinPoolSize, o.MaxPoolSize))
	}
	if o.ConnectTimeout < 0 || o.SocketTimeout < 0 || o.ServerSelectionTimeout < 0 || o.DisconnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("mongodb timeouts must not be negative"))
	}
	return errs
}

// AddFlags adds flags for MongoDB options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.AppName, options.Join(prefixes...)+"mongodb.app-name", o.AppName, "Application name reported to the server.")
	fs.Uint64Var(&o.MaxPoolSize, options.Join(prefixes...)+"mongodb.max-pool-size", o.MaxPoolSize, "Maximum number of connections in the pool.")
	fs.Uint64Var(&o.MinPoolSize, options.Join(prefixes...)+"mongodb.min-pool-size", o.MinPoolSize, "Minimum number of connections in the pool.")
	fs.DurationVar(&o.MaxConnIdleTime, options.Join(prefixes...)+"mongodb.max-conn-idle-time", o.MaxConnIdleTime, "Maximum connection idle time.")
	fs.DurationVar(&o.ConnectTimeout, options.Join(prefixes...)+"mongodb.connect-timeout", o.ConnectTimeout, "Timeout for connection.")
	fs.DurationVar(&o.SocketTimeout, options.Join(prefixes...)+"mongodb.socket-timeout", o.SocketTimeout, "Timeout for socket operations, 0 for none.")
	fs.DurationVar(&o.ServerSelectionTimeout, options.Join(prefixes...)+"mongodb.server-selection-timeout", o.ServerSelectionTimeout, "Timeout for server selection.")
	fs.DurationVar(&o.DisconnectTimeout, options.Join(prefixes...)+"mongodb.disconnect-timeout", o.DisconnectTimeout, "Timeout for closing a client.")
}
