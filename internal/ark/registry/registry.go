// Package registry persists connection configurations and turns them into
// connection strings, encrypting stored passwords through the vault.
package registry

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/ark/internal/ark/store"
	"github.com/kart-io/ark/internal/ark/vault"
	"github.com/kart-io/ark/internal/model"
	"github.com/kart-io/ark/pkg/errors"
	"github.com/kart-io/ark/pkg/id"
)

// Save kinds.
const (
	KindURI    = "uri"
	KindConfig = "config"
)

// Resolver looks up SRV records for mongodb+srv seed hosts.
// *net.Resolver satisfies it.
type Resolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// SaveRequest is the payload of connection.save and connection.test.
type SaveRequest struct {
	Kind       string                  `json:"kind"`
	URI        string                  `json:"uri,omitempty"`
	Name       string                  `json:"name,omitempty"`
	Connection *model.StoredConnection `json:"connection,omitempty"`
}

// Registry stores connection records.
type Registry struct {
	store    store.Factory
	vault    *vault.Vault
	resolver Resolver
	certFile string
	ids      id.Generator
}

// Option configures a Registry.
type Option func(*Registry)

// WithResolver sets the SRV resolver.
func WithResolver(r Resolver) Option {
	return func(reg *Registry) {
		reg.resolver = r
	}
}

// WithCertificateFile sets the bundled certificate used for Ark-managed TLS.
func WithCertificateFile(path string) Option {
	return func(reg *Registry) {
		reg.certFile = path
	}
}

// WithIDGenerator sets the generator for new connection ids.
func WithIDGenerator(g id.Generator) Option {
	return func(reg *Registry) {
		reg.ids = g
	}
}

// New returns a Registry.
func New(s store.Factory, v *vault.Vault, opts ...Option) *Registry {
	r := &Registry{
		store:    s,
		vault:    v,
		resolver: net.DefaultResolver,
		ids:      id.NewULIDGenerator(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns all stored connections with their URI recomputed.
func (r *Registry) List(ctx context.Context) ([]*model.StoredConnection, error) {
	conns, err := r.store.Connections().List(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range conns {
		c.URI = FormatURI(c, "")
	}
	return conns, nil
}

// Load returns one stored connection with its URI recomputed.
func (r *Registry) Load(ctx context.Context, connID string) (*model.StoredConnection, error) {
	conn, err := r.store.Connections().Get(ctx, connID)
	if err != nil {
		if errors.IsCode(err, errors.ErrNotFound.Code) {
			return nil, errors.ErrNoStoredConnection.WithMessagef("no stored connection %q", connID)
		}
		return nil, err
	}
	conn.URI = FormatURI(conn, "")
	return conn, nil
}

// Save normalizes, encrypts and persists a connection.
func (r *Registry) Save(ctx context.Context, req *SaveRequest) (*model.StoredConnection, error) {
	conn, err := r.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	if conn.ID == "" {
		conn.ID = r.ids.Generate()
	}

	if conn.Password != "" {
		enc, err := r.vault.Encrypt(ctx, conn.Password, conn.EncryptionKey)
		if err != nil {
			return nil, err
		}
		conn.Password = enc.CipherHex
		conn.IV = enc.IVHex
		if !conn.EncryptionKey.UserDefined() {
			conn.EncryptionKey = &model.EncryptionKey{
				Source: model.KeySourceGenerated,
				Type:   model.KeyTypeFile,
				URL:    enc.KeyFile,
			}
		}
	} else {
		conn.IV = ""
	}

	if err := conn.Validate(); err != nil {
		return nil, err
	}
	if err := r.store.Connections().Put(ctx, conn); err != nil {
		return nil, err
	}

	logger.Infow("Saved connection", "connection_id", conn.ID, "kind", req.Kind, "hosts", conn.Hosts)

	conn.URI = FormatURI(conn, "")
	return conn, nil
}

// Prepare turns a save request into a normalized record whose password is
// still plaintext. Nothing is persisted.
func (r *Registry) Prepare(ctx context.Context, req *SaveRequest) (*model.StoredConnection, error) {
	if req == nil {
		return nil, errors.ErrInvalidParam.WithMessage("save request is required")
	}

	switch req.Kind {
	case KindURI:
		conn, err := ParseURI(req.URI)
		if err != nil {
			return nil, err
		}
		if conn.Protocol == model.ProtocolMongoDBSRV {
			if err := r.expandSRV(ctx, conn); err != nil {
				return nil, err
			}
		}
		conn.Name = req.Name
		if conn.Name == "" {
			conn.Name = conn.Hosts[0]
		}
		return conn, nil

	case KindConfig:
		if req.Connection == nil {
			return nil, errors.ErrInvalidParam.WithMessage("connection is required for config kind")
		}
		conn := cloneConnection(req.Connection)
		r.normalize(conn)
		return conn, nil

	default:
		return nil, errors.ErrInvalidParam.WithMessagef("unknown save kind %q", req.Kind)
	}
}

// expandSRV replaces the seed host with the members advertised in DNS.
func (r *Registry) expandSRV(ctx context.Context, conn *model.StoredConnection) error {
	seed := conn.Hosts[0]
	_, records, err := r.resolver.LookupSRV(ctx, "mongodb", "tcp", seed)
	if err != nil {
		return errors.ErrNetwork.WithCause(fmt.Errorf("lookup SRV for %s: %w", seed, err))
	}
	if len(records) == 0 {
		return errors.ErrNetwork.WithMessagef("no SRV records for %s", seed)
	}

	hosts := make([]string, 0, len(records))
	for _, rec := range records {
		target := strings.TrimSuffix(rec.Target, ".")
		hosts = append(hosts, net.JoinHostPort(target, strconv.Itoa(int(rec.Port))))
	}

	logger.Debugw("Expanded SRV seed", "seed", seed, "members", len(hosts))

	conn.Protocol = model.ProtocolMongoDB
	conn.Hosts = hosts
	conn.Type = model.TopologyFor(len(hosts))
	conn.Options.TLS = true
	conn.Options.AuthSource = "admin"
	return nil
}

// normalize strips options that do not apply to the configuration.
func (r *Registry) normalize(conn *model.StoredConnection) {
	if conn.Protocol == "" {
		conn.Protocol = model.ProtocolMongoDB
	}
	switch {
	case conn.Protocol == model.ProtocolMongoDB:
		conn.Type = model.TopologyFor(len(conn.Hosts))
	case conn.Type == "":
		conn.Type = model.TypeReplicaSet
	}

	o := &conn.Options
	if !o.TLS {
		o.TLSCAFile = ""
		o.TLSCertificateFile = ""
		o.TLSCertificateKeyFile = ""
		o.TLSCertificateKeyFilePassword = ""
		o.TLSAllowInvalidCertificates = false
		o.TLSAllowInvalidHostnames = false
	} else if o.TLSCertificateFile == model.ArkManagedCertificate && r.certFile != "" {
		o.TLSCertificateFile = r.certFile
	}

	if conn.Username == "" {
		o.AuthMechanism = ""
	}

	if conn.SSH != nil && !conn.SSH.UseSSH {
		conn.SSH = nil
	}
}

// Delete removes a stored connection and its icon.
func (r *Registry) Delete(ctx context.Context, connID string) error {
	if _, err := r.Load(ctx, connID); err != nil {
		return err
	}
	if err := r.store.Connections().Delete(ctx, connID); err != nil {
		return err
	}
	if err := r.store.Icons().Delete(ctx, connID); err != nil {
		return err
	}
	logger.Infow("Deleted connection", "connection_id", connID)
	return nil
}

// BuildURI returns the connection string for a stored connection, decrypting
// the password when decrypt is set.
func (r *Registry) BuildURI(ctx context.Context, conn *model.StoredConnection, decrypt bool) (string, error) {
	var password string
	if decrypt && conn.HasPassword() {
		p, err := r.vault.Decrypt(ctx, conn.Password, conn.EncryptionKey, conn.IV)
		if err != nil {
			return "", err
		}
		password = p
	}
	return FormatURI(conn, password), nil
}

// DecryptPassword returns the plaintext password of a stored connection.
func (r *Registry) DecryptPassword(ctx context.Context, connID string) (string, error) {
	conn, err := r.Load(ctx, connID)
	if err != nil {
		return "", err
	}
	if !conn.HasPassword() {
		return "", nil
	}
	return r.vault.Decrypt(ctx, conn.Password, conn.EncryptionKey, conn.IV)
}

// CreateEncryptionKey returns a fresh hex key for a user defined key file.
func (r *Registry) CreateEncryptionKey() (string, error) {
	return r.vault.CreateKey()
}

// ConvertConnectionToURI renders an edited record as a connection string.
// Password is taken as plaintext. Fields without a URI form are dropped.
func ConvertConnectionToURI(conn *model.StoredConnection) (string, error) {
	if conn == nil {
		return "", errors.ErrInvalidParam.WithMessage("connection is required")
	}
	if len(conn.Hosts) == 0 {
		return "", errors.ErrInvalidConnectionConfig.WithMessage("at least one host is required")
	}
	c := cloneConnection(conn)
	if c.Protocol == "" {
		c.Protocol = model.ProtocolMongoDB
	}
	if c.Protocol == model.ProtocolMongoDB {
		c.Type = model.TopologyFor(len(c.Hosts))
	}
	return FormatURI(c, c.Password), nil
}

// ConvertURIToConnection parses a connection string into an editable record.
// base, when given, supplies the fields a URI cannot carry.
func ConvertURIToConnection(uri string, base *model.StoredConnection) (*model.StoredConnection, error) {
	conn, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if base != nil {
		conn.ID = base.ID
		conn.Name = base.Name
		conn.Icon = base.Icon
		conn.EncryptionKey = base.EncryptionKey
		if base.SSH != nil {
			ssh := *base.SSH
			conn.SSH = &ssh
		}
	}
	return conn, nil
}

func cloneConnection(in *model.StoredConnection) *model.StoredConnection {
	c := *in
	c.Hosts = append([]string(nil), in.Hosts...)
	if in.SSH != nil {
		ssh := *in.SSH
		c.SSH = &ssh
	}
	if in.EncryptionKey != nil {
		k := *in.EncryptionKey
		c.EncryptionKey = &k
	}
	if in.Options.RetryWrites != nil {
		b := *in.Options.RetryWrites
		c.Options.RetryWrites = &b
	}
	c.URI = ""
	return &c
}
