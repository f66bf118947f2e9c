// Package model defines the entities persisted by ark and the payloads
// exchanged over the request surface.
package model

// Connection protocols.
const (
	ProtocolMongoDB    = "mongodb"
	ProtocolMongoDBSRV = "mongodb+srv"
)

// Connection topologies, derived from the number of hosts.
const (
	TypeDirectConnection = "directConnection"
	TypeReplicaSet       = "replicaSet"
)

// SSH authentication methods.
const (
	SSHMethodPassword   = "password"
	SSHMethodPrivateKey = "privateKey"
)

// Encryption key sources and locations.
const (
	KeySourceGenerated   = "generated"
	KeySourceUserDefined = "userDefined"
	KeyTypeFile          = "file"
	KeyTypeURL           = "url"
)

// ArkManagedCertificate is the tlsCertificateFile value that selects the
// certificate bundled with the application.
const ArkManagedCertificate = "ark"

// StoredConnection is a persisted description of how to reach one deployment.
// Password holds hex ciphertext once saved; IV is the hex initialization
// vector it was encrypted with.
type StoredConnection struct {
	ID            string            `json:"id"`
	Name          string            `json:"name" validate:"required,max=128"`
	Protocol      string            `json:"protocol" validate:"required,oneof=mongodb mongodb+srv"`
	Hosts         []string          `json:"hosts" validate:"required,min=1,dive,hostport|hostname"`
	Type          string            `json:"type" validate:"required,oneof=directConnection replicaSet"`
	Database      string            `json:"database,omitempty"`
	Username      string            `json:"username,omitempty"`
	Password      string            `json:"password,omitempty" validate:"omitempty,hexstr"`
	IV            string            `json:"iv,omitempty" validate:"omitempty,hexstr,len=32"`
	Options       ConnectionOptions `json:"options"`
	SSH           *SSHConfig        `json:"ssh,omitempty"`
	EncryptionKey *EncryptionKey    `json:"encryptionKey,omitempty"`
	Icon          bool              `json:"icon"`

	// URI is recomputed on every read and never persisted.
	URI string `json:"uri,omitempty"`
}

// ConnectionOptions are the driver options representable in a connection string.
type ConnectionOptions struct {
	AuthSource                    string `json:"authSource,omitempty"`
	TLS                           bool   `json:"tls,omitempty"`
	TLSCertificateFile            string `json:"tlsCertificateFile,omitempty"`
	TLSCertificateKeyFile         string `json:"tlsCertificateKeyFile,omitempty"`
	TLSCertificateKeyFilePassword string `json:"tlsCertificateKeyFilePassword,omitempty"`
	TLSCAFile                     string `json:"tlsCAFile,omitempty"`
	TLSAllowInvalidCertificates   bool   `json:"tlsAllowInvalidCertificates,omitempty"`
	TLSAllowInvalidHostnames      bool   `json:"tlsAllowInvalidHostnames,omitempty"`
	AuthMechanism                 string `json:"authMechanism,omitempty"`
	ReplicaSet                    string `json:"replicaSet,omitempty"`
	ReadPreference                string `json:"readPreference,omitempty"`
	RetryWrites                   *bool  `json:"retryWrites,omitempty"`
	DirectConnection              *bool  `json:"directConnection,omitempty"`
	W                             string `json:"w,omitempty"`
}

// SSHConfig describes an SSH bastion used to reach the deployment.
type SSHConfig struct {
	UseSSH     bool   `json:"useSSH"`
	Host       string `json:"host,omitempty" validate:"required_if=UseSSH true"`
	Port       int    `json:"port,omitempty" validate:"required_if=UseSSH true,max=65535"`
	Username   string `json:"username,omitempty" validate:"required_if=UseSSH true"`
	Method     string `json:"method,omitempty" validate:"required_if=UseSSH true"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	MongodHost string `json:"mongodHost,omitempty"`
	MongodPort int    `json:"mongodPort,omitempty" validate:"max=65535"`
}

// EncryptionKey points at the key material used for a connection's password.
// URL holds a file path when Type is file.
type EncryptionKey struct {
	Source string `json:"source" validate:"required,oneof=generated userDefined"`
	Type   string `json:"type,omitempty" validate:"omitempty,oneof=file url"`
	URL    string `json:"url,omitempty"`
}

// UserDefined reports whether the key was supplied by the user.
func (k *EncryptionKey) UserDefined() bool {
	return k != nil && k.Source == KeySourceUserDefined
}

// TopologyFor returns the connection type implied by a host count.
func TopologyFor(hosts int) string {
	if hosts > 1 {
		return TypeReplicaSet
	}
	return TypeDirectConnection
}

// UsesSSH reports whether the connection is tunneled.
func (c *StoredConnection) UsesSSH() bool {
	return c.SSH != nil && c.SSH.UseSSH
}

// HasPassword reports whether an encrypted password is stored.
func (c *StoredConnection) HasPassword() bool {
	return c.Password != ""
}

// ReplicaSetMember is one entry of replSetGetStatus.members.
type ReplicaSetMember struct {
	ID       int    `json:"_id" bson:"_id"`
	Name     string `json:"name" bson:"name"`
	Health   int    `json:"health" bson:"health"`
	State    int    `json:"state" bson:"state"`
	StateStr string `json:"stateStr" bson:"stateStr"`
}

// ReplicaSetDetails is the subset of replica set status returned by info.
type ReplicaSetDetails struct {
	Set     string             `json:"set" bson:"set"`
	Members []ReplicaSetMember `json:"members" bson:"members"`
}

// ConnectionInfo is returned by connection.info.
type ConnectionInfo struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Type              string             `json:"type"`
	ReplicaSetDetails *ReplicaSetDetails `json:"replicaSetDetails,omitempty"`
}

// Primary returns the member currently in PRIMARY state.
func (d *ReplicaSetDetails) Primary() (ReplicaSetMember, bool) {
	if d == nil {
		return ReplicaSetMember{}, false
	}
	for _, m := range d.Members {
		if m.StateStr == "PRIMARY" {
			return m, true
		}
	}
	return ReplicaSetMember{}, false
}

// DatabaseInfo is one entry of a listDatabases result.
type DatabaseInfo struct {
	Name       string `json:"name" bson:"name"`
	SizeOnDisk int64  `json:"sizeOnDisk" bson:"sizeOnDisk"`
	Empty      bool   `json:"empty" bson:"empty"`
}

// TestResult is the outcome of connection.test.
type TestResult struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}
