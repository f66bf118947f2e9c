// Package tunnel opens SSH local-forwarding tunnels in front of a mongod.
package tunnel

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"golang.org/x/crypto/ssh"

	"github.com/kart-io/ark/internal/model"
	"github.com/kart-io/ark/pkg/errors"
	"github.com/kart-io/ark/pkg/infra/pool"
)

const (
	defaultSSHPort     = 22
	defaultMongodHost  = "127.0.0.1"
	defaultMongodPort  = 27017
	defaultDialTimeout = 15 * time.Second
	loopback           = "127.0.0.1"
)

// Manager opens tunnels. Forwarded streams run on a shared worker pool.
type Manager struct {
	pool        *pool.Pool
	dialTimeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialTimeout bounds the TCP dial and SSH handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.dialTimeout = d
		}
	}
}

// NewManager returns a Manager forwarding on p.
func NewManager(p *pool.Pool, opts ...Option) *Manager {
	m := &Manager{pool: p, dialTimeout: defaultDialTimeout}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open starts a tunnel for cfg. It returns nil when cfg does not use SSH.
// The local listener reuses the host and port of hosts[0] when it is a
// loopback address, otherwise an ephemeral loopback port is used.
func (m *Manager) Open(ctx context.Context, cfg *model.SSHConfig, hosts []string) (*Tunnel, error) {
	if cfg == nil || !cfg.UseSSH {
		return nil, nil
	}

	auth, err := authMethod(cfg)
	if err != nil {
		return nil, errors.ErrSSHTunnelConnection.WithCause(err)
	}

	port := cfg.Port
	if port == 0 {
		port = defaultSSHPort
	}
	sshAddr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	client, err := m.dial(ctx, sshAddr, &ssh.ClientConfig{
		User: cfg.Username,
		Auth: []ssh.AuthMethod{auth},
		//nolint:gosec // G106: 桌面客户端，堡垒机主机密钥由用户自行确认
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         m.dialTimeout,
	})
	if err != nil {
		return nil, errors.ErrSSHTunnelConnection.WithCause(err)
	}

	ln, err := listen(hosts)
	if err != nil {
		_ = client.Close()
		return nil, errors.ErrSSHTunnelConnection.WithCause(err)
	}

	t := &Tunnel{
		listener: ln,
		client:   client,
		target:   targetAddr(cfg),
		pool:     m.pool,
		done:     make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
	t.listening.Store(true)

	go t.serve()
	go func() {
		// the SSH connection ending takes the listener with it
		err := client.Wait()
		t.stop(fmt.Errorf("ssh connection to %s closed: %w", sshAddr, err))
	}()

	logger.Infow("SSH tunnel opened",
		"ssh", sshAddr,
		"local", ln.Addr().String(),
		"target", t.target,
	)
	return t, nil
}

func (m *Manager) dial(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: m.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	deadline := time.Now().Add(m.dialTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}

func authMethod(cfg *model.SSHConfig) (ssh.AuthMethod, error) {
	switch cfg.Method {
	case model.SSHMethodPassword:
		return ssh.Password(cfg.Password), nil
	case model.SSHMethodPrivateKey:
		pemBytes, err := privateKeyBytes(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		var signer ssh.Signer
		if cfg.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pemBytes, []byte(cfg.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pemBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return ssh.PublicKeys(signer), nil
	default:
		return nil, fmt.Errorf("unsupported ssh auth method %q", cfg.Method)
	}
}

// privateKeyBytes accepts PEM content or a path to a PEM file.
func privateKeyBytes(key string) ([]byte, error) {
	if strings.Contains(key, "-----BEGIN") {
		return []byte(key), nil
	}
	data, err := os.ReadFile(key)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return data, nil
}

func targetAddr(cfg *model.SSHConfig) string {
	host := cfg.MongodHost
	if host == "" {
		host = defaultMongodHost
	}
	port := cfg.MongodPort
	if port == 0 {
		port = defaultMongodPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func listen(hosts []string) (net.Listener, error) {
	addr := net.JoinHostPort(loopback, "0")
	if len(hosts) > 0 {
		if host, port, err := net.SplitHostPort(hosts[0]); err == nil && isLoopback(host) {
			addr = net.JoinHostPort(host, port)
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err == nil {
		return ln, nil
	}

	logger.Warnw("Tunnel listen address unavailable, using ephemeral port", "addr", addr, "error", err)
	return net.Listen("tcp", net.JoinHostPort(loopback, "0"))
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Tunnel is an open local forward. It never reconnects.
type Tunnel struct {
	listener net.Listener
	client   *ssh.Client
	target   string
	pool     *pool.Pool

	listening atomic.Bool
	done      chan struct{}
	once      sync.Once

	mu    sync.Mutex
	err   error
	conns map[net.Conn]struct{}
}

// Addr returns the local listen address.
func (t *Tunnel) Addr() string {
	return t.listener.Addr().String()
}

// Listening reports whether the tunnel still accepts connections.
func (t *Tunnel) Listening() bool {
	return t != nil && t.listening.Load()
}

// Done is closed when the tunnel stops.
func (t *Tunnel) Done() <-chan struct{} {
	return t.done
}

// Err returns why the tunnel stopped, or nil if it was closed or is running.
func (t *Tunnel) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close stops the tunnel and every forwarded stream. It is idempotent.
func (t *Tunnel) Close() error {
	if t == nil {
		return nil
	}
	t.stop(nil)
	return nil
}

func (t *Tunnel) stop(cause error) {
	t.once.Do(func() {
		t.listening.Store(false)

		t.mu.Lock()
		t.err = cause
		conns := t.conns
		t.conns = nil
		t.mu.Unlock()

		_ = t.listener.Close()
		_ = t.client.Close()
		for c := range conns {
			_ = c.Close()
		}
		close(t.done)

		if cause != nil {
			logger.Warnw("SSH tunnel stopped", "local", t.Addr(), "error", cause)
		} else {
			logger.Infow("SSH tunnel closed", "local", t.Addr())
		}
	})
}

func (t *Tunnel) serve() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			t.stop(fmt.Errorf("accept: %w", err))
			return
		}
		if err := t.pool.Submit(func() { t.forward(conn) }); err != nil {
			logger.Warnw("Tunnel connection rejected", "local", t.Addr(), "error", err)
			_ = conn.Close()
		}
	}
}

// forward pipes one local connection through the SSH client. Each stream
// holds two pool workers, one per direction.
func (t *Tunnel) forward(local net.Conn) {
	remote, err := t.client.Dial("tcp", t.target)
	if err != nil {
		logger.Warnw("Tunnel forward failed", "target", t.target, "error", err)
		_ = local.Close()
		return
	}

	if !t.track(local, remote) {
		_ = local.Close()
		_ = remote.Close()
		return
	}
	defer t.untrack(local, remote)

	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			_ = local.Close()
			_ = remote.Close()
		})
	}

	upstream := make(chan struct{})
	if err := t.pool.Submit(func() {
		defer close(upstream)
		_, _ = io.Copy(remote, local)
		closeBoth()
	}); err != nil {
		closeBoth()
		return
	}

	_, _ = io.Copy(local, remote)
	closeBoth()
	<-upstream
}

func (t *Tunnel) track(conns ...net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns == nil {
		return false
	}
	for _, c := range conns {
		t.conns[c] = struct{}{}
	}
	return true
}

func (t *Tunnel) untrack(conns ...net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range conns {
		delete(t.conns, c)
	}
}
