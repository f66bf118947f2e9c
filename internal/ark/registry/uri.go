package registry

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/kart-io/ark/internal/model"
	"github.com/kart-io/ark/pkg/errors"
)

// Connection string query keys.
const (
	paramAuthSource                    = "authSource"
	paramAuthMechanism                 = "authMechanism"
	paramDirectConnection              = "directConnection"
	paramReadPreference                = "readPreference"
	paramReplicaSet                    = "replicaSet"
	paramRetryWrites                   = "retryWrites"
	paramTLS                           = "tls"
	paramSSL                           = "ssl"
	paramTLSCAFile                     = "tlsCAFile"
	paramTLSCertificateFile            = "tlsCertificateFile"
	paramTLSCertificateKeyFile         = "tlsCertificateKeyFile"
	paramTLSCertificateKeyFilePassword = "tlsCertificateKeyFilePassword"
	paramTLSAllowInvalidCertificates   = "tlsAllowInvalidCertificates"
	paramTLSAllowInvalidHostnames      = "tlsAllowInvalidHostnames"
	paramW                             = "w"
)

const defaultPort = "27017"

// ParseURI converts a connection string into a connection record without
// touching the network. The password, if any, is returned in plaintext.
func ParseURI(raw string) (*model.StoredConnection, error) {
	raw = strings.TrimSpace(raw)

	var protocol string
	switch {
	case strings.HasPrefix(raw, model.ProtocolMongoDBSRV+"://"):
		protocol = model.ProtocolMongoDBSRV
	case strings.HasPrefix(raw, model.ProtocolMongoDB+"://"):
		protocol = model.ProtocolMongoDB
	default:
		return nil, errors.ErrInvalidConnectionConfig.WithMessage("connection string must start with mongodb:// or mongodb+srv://")
	}
	rest := raw[len(protocol)+3:]

	var query string
	if i := strings.Index(rest, "?"); i >= 0 {
		rest, query = rest[:i], rest[i+1:]
	}

	var path string
	if i := strings.Index(rest, "/"); i >= 0 {
		rest, path = rest[:i], rest[i+1:]
	}

	conn := &model.StoredConnection{Protocol: protocol}

	if i := strings.LastIndex(rest, "@"); i >= 0 {
		userinfo := rest[:i]
		rest = rest[i+1:]

		user, pass, hasPass := strings.Cut(userinfo, ":")
		var err error
		if conn.Username, err = url.PathUnescape(user); err != nil {
			return nil, errors.ErrInvalidConnectionConfig.WithMessagef("invalid username: %v", err)
		}
		if hasPass {
			if conn.Password, err = url.PathUnescape(pass); err != nil {
				return nil, errors.ErrInvalidConnectionConfig.WithMessagef("invalid password: %v", err)
			}
		}
	}

	if rest == "" {
		return nil, errors.ErrInvalidConnectionConfig.WithMessage("connection string has no host")
	}
	for _, h := range strings.Split(rest, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if protocol == model.ProtocolMongoDB && !strings.Contains(h, ":") {
			h += ":" + defaultPort
		}
		conn.Hosts = append(conn.Hosts, h)
	}
	if protocol == model.ProtocolMongoDBSRV && len(conn.Hosts) != 1 {
		return nil, errors.ErrInvalidConnectionConfig.WithMessage("mongodb+srv connection string must have exactly one host")
	}

	db, err := url.PathUnescape(path)
	if err != nil {
		return nil, errors.ErrInvalidConnectionConfig.WithMessagef("invalid database: %v", err)
	}
	conn.Database = db

	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, errors.ErrInvalidConnectionConfig.WithMessagef("invalid options: %v", err)
	}
	parseOptions(values, &conn.Options)

	conn.Type = model.TopologyFor(len(conn.Hosts))
	if protocol == model.ProtocolMongoDBSRV {
		conn.Type = model.TypeReplicaSet
	}
	return conn, nil
}

// parseOptions reads known options. Keys are matched case-insensitively,
// as the driver does.
func parseOptions(values url.Values, o *model.ConnectionOptions) {
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		v := vals[len(vals)-1]
		switch strings.ToLower(key) {
		case strings.ToLower(paramAuthSource):
			o.AuthSource = v
		case strings.ToLower(paramAuthMechanism):
			o.AuthMechanism = v
		case strings.ToLower(paramReplicaSet):
			o.ReplicaSet = v
		case strings.ToLower(paramReadPreference):
			o.ReadPreference = v
		case strings.ToLower(paramW):
			o.W = v
		case strings.ToLower(paramRetryWrites):
			if b, err := strconv.ParseBool(v); err == nil {
				o.RetryWrites = &b
			}
		case strings.ToLower(paramDirectConnection):
			if b, err := strconv.ParseBool(v); err == nil {
				o.DirectConnection = &b
			}
		case strings.ToLower(paramTLS), paramSSL:
			o.TLS = parseBool(v)
		case strings.ToLower(paramTLSCAFile):
			o.TLSCAFile = v
		case strings.ToLower(paramTLSCertificateFile):
			o.TLSCertificateFile = v
		case strings.ToLower(paramTLSCertificateKeyFile):
			o.TLSCertificateKeyFile = v
		case strings.ToLower(paramTLSCertificateKeyFilePassword):
			o.TLSCertificateKeyFilePassword = v
		case strings.ToLower(paramTLSAllowInvalidCertificates):
			o.TLSAllowInvalidCertificates = parseBool(v)
		case strings.ToLower(paramTLSAllowInvalidHostnames):
			o.TLSAllowInvalidHostnames = parseBool(v)
		}
	}
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

// FormatURI renders a connection record as a connection string using the
// given plaintext password. An empty password is omitted.
func FormatURI(conn *model.StoredConnection, password string) string {
	var b strings.Builder

	protocol := conn.Protocol
	if protocol == "" {
		protocol = model.ProtocolMongoDB
	}
	b.WriteString(protocol)
	b.WriteString("://")

	if conn.Username != "" {
		if password != "" {
			b.WriteString(url.UserPassword(conn.Username, password).String())
		} else {
			b.WriteString(url.User(conn.Username).String())
		}
		b.WriteString("@")
	}

	b.WriteString(strings.Join(conn.Hosts, ","))
	b.WriteString("/")
	b.WriteString(url.PathEscape(conn.Database))

	if q := formatOptions(conn); q != "" {
		b.WriteString("?")
		b.WriteString(q)
	}
	return b.String()
}

func formatOptions(conn *model.StoredConnection) string {
	o := conn.Options
	params := url.Values{}

	set := func(key, v string) {
		if v != "" {
			params.Set(key, v)
		}
	}
	setBool := func(key string, v bool) {
		if v {
			params.Set(key, "true")
		}
	}

	set(paramAuthSource, o.AuthSource)
	set(paramAuthMechanism, o.AuthMechanism)
	set(paramReplicaSet, o.ReplicaSet)
	set(paramReadPreference, o.ReadPreference)
	set(paramW, o.W)
	if o.RetryWrites != nil {
		params.Set(paramRetryWrites, strconv.FormatBool(*o.RetryWrites))
	}

	if o.TLS {
		params.Set(paramTLS, "true")
		set(paramTLSCAFile, o.TLSCAFile)
		if o.TLSCertificateFile != model.ArkManagedCertificate {
			set(paramTLSCertificateFile, o.TLSCertificateFile)
		}
		set(paramTLSCertificateKeyFile, o.TLSCertificateKeyFile)
		set(paramTLSCertificateKeyFilePassword, o.TLSCertificateKeyFilePassword)
		setBool(paramTLSAllowInvalidCertificates, o.TLSAllowInvalidCertificates)
		setBool(paramTLSAllowInvalidHostnames, o.TLSAllowInvalidHostnames)
	}

	switch {
	case o.DirectConnection != nil:
		params.Set(paramDirectConnection, strconv.FormatBool(*o.DirectConnection))
	case conn.Protocol != model.ProtocolMongoDBSRV && conn.Type == model.TypeDirectConnection &&
		len(conn.Hosts) == 1 && o.ReplicaSet == "":
		// A lone seed with no set name is a standalone server.
		params.Set(paramDirectConnection, "true")
	}

	return params.Encode()
}
