package model

import (
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/kart-io/ark/pkg/errors"
	arkvalidator "github.com/kart-io/ark/pkg/validator"
)

// Struct level validation tags.
const (
	tagCredentialPair = "credentialpair"
	tagTopology       = "topology"
	tagSSHMethod      = "sshmethod"
	tagSSHSecret      = "sshsecret"
)

var (
	v    *arkvalidator.Validator
	once sync.Once
)

func modelValidator() *arkvalidator.Validator {
	once.Do(func() {
		v = arkvalidator.New()
		v.RegisterStructValidation(connectionStructLevel, StoredConnection{})
		v.RegisterStructValidation(sshStructLevel, SSHConfig{})
		v.RegisterTranslation(tagCredentialPair, "{0} and iv must be set together", "{0} 与 iv 必须同时设置")
		v.RegisterTranslation(tagTopology, "{0} does not match the number of hosts", "{0} 与主机数量不匹配")
		v.RegisterTranslation(tagSSHMethod, "{0} must be password or privateKey", "{0} 必须是 password 或 privateKey")
		v.RegisterTranslation(tagSSHSecret, "{0} requires exactly one of password or privateKey", "{0} 需要且仅需要 password 或 privateKey 之一")
	})
	return v
}

func connectionStructLevel(sl validator.StructLevel) {
	c := sl.Current().Interface().(StoredConnection)

	if (c.Password == "") != (c.IV == "") {
		sl.ReportError(c.Password, "password", "Password", tagCredentialPair, "")
	}
	if c.Protocol == ProtocolMongoDB && c.Type != TopologyFor(len(c.Hosts)) {
		sl.ReportError(c.Type, "type", "Type", tagTopology, "")
	}
}

func sshStructLevel(sl validator.StructLevel) {
	s := sl.Current().Interface().(SSHConfig)
	if !s.UseSSH {
		return
	}

	if s.Method != SSHMethodPassword && s.Method != SSHMethodPrivateKey {
		sl.ReportError(s.Method, "method", "Method", tagSSHMethod, "")
	}
	if (s.Password == "") == (s.PrivateKey == "") {
		sl.ReportError(s.Method, "method", "Method", tagSSHSecret, "")
	}
}

// Validate checks the persisted invariants of a connection.
// The returned error is an ErrInvalidConnectionConfig carrying the
// translated messages.
func (c *StoredConnection) Validate() error {
	if errs := modelValidator().ValidateWithLang(c, arkvalidator.LangEN); errs.HasErrors() {
		return errors.ErrInvalidConnectionConfig.WithMessage(errs.Error())
	}
	return nil
}

// Validate checks the ranges of user settings.
func (s *Settings) Validate() error {
	if errs := modelValidator().ValidateWithLang(s, arkvalidator.LangEN); errs.HasErrors() {
		return errors.ErrInvalidParam.WithMessage(errs.Error())
	}
	return nil
}
