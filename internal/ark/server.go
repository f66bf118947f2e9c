// Package ark wires the connection, shell and request-surface components into
// the desktop client core served over the loopback bridge.
package ark

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/spf13/viper"

	"github.com/kart-io/ark/internal/ark/biz"
	"github.com/kart-io/ark/internal/ark/driver"
	"github.com/kart-io/ark/internal/ark/handler"
	"github.com/kart-io/ark/internal/ark/memstore"
	"github.com/kart-io/ark/internal/ark/registry"
	"github.com/kart-io/ark/internal/ark/router"
	"github.com/kart-io/ark/internal/ark/store"
	"github.com/kart-io/ark/internal/ark/tunnel"
	"github.com/kart-io/ark/internal/ark/vault"
	"github.com/kart-io/ark/pkg/component/sqlite"
	"github.com/kart-io/ark/pkg/infra/app"
	"github.com/kart-io/ark/pkg/infra/config"
	"github.com/kart-io/ark/pkg/infra/pool"
	"github.com/kart-io/ark/pkg/infra/server"
	httpopts "github.com/kart-io/ark/pkg/options/http"
	logopts "github.com/kart-io/ark/pkg/options/logger"
	mongodbopts "github.com/kart-io/ark/pkg/options/mongodb"
	"github.com/kart-io/ark/pkg/utils/httpclient"
)

// Name is the name of the application.
const Name = "ark"

// keyFetchRetries is how often a failed key download is retried.
const keyFetchRetries = 2

// Config contains application-related configurations.
type Config struct {
	DataDir         string
	KeyFile         string
	KeyFetchTimeout time.Duration
	CertificateFile string
	ScriptDir       string
	ExportDir       string
	SSHDialTimeout  time.Duration

	HTTPOptions    *httpopts.Options
	LogOptions     *logopts.Options
	StoreOptions   *sqlite.Options
	MongoDBOptions *mongodbopts.Options

	ShellTimeout time.Duration
	PageSize     int
	CSVDelimiter rune

	ShutdownTimeout time.Duration

	// Viper holds the loaded config file. When set, the shell section is
	// reloaded on change.
	Viper *viper.Viper
}

// Server represents the ark server.
type Server struct {
	srv    *server.Manager
	bridge *router.Server
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.name", Name)
	cfg.LogOptions.AddInitialField("service.version", app.GetVersion())
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infow("Starting ark...", "data_dir", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	srv := server.NewManager(server.WithShutdownTimeout(cfg.ShutdownTimeout))

	// 2. 初始化本地存储
	sqliteClient, err := sqlite.NewWithContext(ctx, cfg.StoreOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.AutoMigrate(sqliteClient.DB()); err != nil {
		_ = sqliteClient.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}
	s := store.NewStore(sqliteClient.DB())
	srv.AddCloser("store", func(context.Context) error { return s.Close() })
	logger.Info("Store layer initialized")

	// 3. 初始化凭据与连接注册表
	keys := vault.New(cfg.KeyFile, httpclient.NewClient(cfg.KeyFetchTimeout, keyFetchRetries))
	reg := registry.New(s, keys, registry.WithCertificateFile(cfg.CertificateFile))
	logger.Infow("Connection registry initialized", "key_file", keys.KeyFile())

	// 4. 初始化 SSH 隧道
	tunnelPool, err := pool.NewPool("ssh-tunnel", pool.TunnelConfig())
	if err != nil {
		_ = srv.Stop(ctx)
		return nil, fmt.Errorf("failed to initialize tunnel pool: %w", err)
	}
	srv.AddCloser("tunnel-pool", func(context.Context) error {
		tunnelPool.Release()
		return nil
	})
	tunnels := tunnel.NewManager(tunnelPool, tunnel.WithDialTimeout(cfg.SSHDialTimeout))

	// 5. 初始化 Biz 层
	dialer := driver.NewDialer(cfg.MongoDBOptions)
	conns := biz.NewConnectionService(reg, biz.NewTunnelOpener(tunnels), dialer, memstore.New())
	settings := biz.NewSettingsService(s, biz.Defaults{
		PageSize:        cfg.PageSize,
		ShellTimeout:    cfg.ShellTimeout,
		CSVDelimiter:    cfg.CSVDelimiter,
		ExportDirectory: cfg.ExportDir,
	})
	shells := biz.NewShellService(conns, reg, dialer, nil, settings)
	srv.AddCloser("connections", func(ctx context.Context) error {
		conns.Close(ctx)
		return nil
	})
	srv.AddCloser("shells", func(ctx context.Context) error {
		shells.Close(ctx)
		return nil
	})
	logger.Info("Business layer initialized")

	// 配置热加载：仅 shell 段
	if cfg.Viper != nil && cfg.Viper.ConfigFileUsed() != "" {
		watcher := config.NewWatcher(cfg.Viper)
		watcher.Subscribe(config.Section{Key: "shell", New: settings.ReloadTarget, Target: settings})
		if err := watcher.Start(); err != nil {
			_ = srv.Stop(ctx)
			return nil, err
		}
		srv.AddCloser("config-watcher", func(context.Context) error {
			watcher.Stop()
			return nil
		})
	}

	// 6. 初始化 Handler 层
	dispatcher := handler.New(&handler.Services{
		Connections: conns,
		Databases:   biz.NewDatabaseService(conns),
		Queries:     biz.NewQueryService(conns),
		Shells:      shells,
		Scripts:     biz.NewScriptService(s, cfg.ScriptDir, nil),
		Settings:    settings,
	})
	logger.Info("Handler layer initialized")

	// 7. 初始化 HTTP 桥接
	gin.SetMode(gin.ReleaseMode)
	bridge := router.NewServer(cfg.HTTPOptions, router.NewEngine(dispatcher, cfg.HTTPOptions.MaxBodyBytes))
	srv.AddServer(bridge)

	logger.Info("Ark is ready")
	return &Server{srv: srv, bridge: bridge}, nil
}

// Addr returns the address the bridge listens on.
func (s *Server) Addr() string {
	return s.bridge.Addr()
}

// Start starts the bridge without blocking.
func (s *Server) Start(ctx context.Context) error {
	return s.srv.Start(ctx)
}

// Stop stops the bridge and releases every live connection, shell session,
// tunnel worker and the store.
func (s *Server) Stop(ctx context.Context) error {
	defer func() { _ = app.Flush() }()
	return s.srv.Stop(ctx)
}

// Run runs the server until SIGINT or SIGTERM.
func (s *Server) Run() error {
	defer func() { _ = app.Flush() }()
	return s.srv.Run()
}
