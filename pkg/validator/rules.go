package validator

import (
	"encoding/hex"
	"net"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Custom validation tags
const (
	TagHostPort = "hostport" // host:port with a numeric port in 1..65535
	TagHexStr   = "hexstr"   // even length hex string
)

func (v *Validator) registerRules() {
	_ = v.validate.RegisterValidation(TagHostPort, validateHostPort)
	_ = v.validate.RegisterValidation(TagHexStr, validateHexString)

	v.RegisterTranslation(TagHostPort, "{0} must be in host:port form", "{0}必须是 host:port 格式")
	v.RegisterTranslation(TagHexStr, "{0} must be a hex encoded string", "{0}必须是十六进制字符串")
}

func validateHostPort(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	host, port, err := net.SplitHostPort(value)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n > 0 && n <= 65535
}

func validateHexString(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := hex.DecodeString(value)
	return err == nil
}
