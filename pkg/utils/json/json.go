// Package json is the JSON codec used for persisted records and request
// payloads. It uses sonic on amd64/arm64 and encoding/json elsewhere.
package json

import (
	stdjson "encoding/json"
	"io"
	"runtime"

	"github.com/bytedance/sonic"
)

// RawMessage is a raw encoded JSON value.
type RawMessage = stdjson.RawMessage

// Encoder is a JSON encoder interface.
type Encoder interface {
	Encode(v interface{}) error
}

// Decoder is a JSON decoder interface.
type Decoder interface {
	Decode(v interface{}) error
}

type api interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	MarshalIndent(v interface{}, prefix, indent string) ([]byte, error)
}

type stdAPI struct{}

func (stdAPI) Marshal(v interface{}) ([]byte, error)      { return stdjson.Marshal(v) }
func (stdAPI) Unmarshal(data []byte, v interface{}) error { return stdjson.Unmarshal(data, v) }
func (stdAPI) MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return stdjson.MarshalIndent(v, prefix, indent)
}

var (
	codec      api
	usingSonic bool
)

func init() {
	if runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64" {
		// std compatible mode keeps map key ordering and html escaping stable
		// for records written to the local store
		codec = sonic.ConfigStd
		usingSonic = true
		return
	}
	codec = stdAPI{}
}

// Marshal encodes v into JSON bytes.
func Marshal(v interface{}) ([]byte, error) {
	return codec.Marshal(v)
}

// MarshalIndent is like Marshal but applies indentation.
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return codec.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes JSON bytes into v.
func Unmarshal(data []byte, v interface{}) error {
	return codec.Unmarshal(data, v)
}

// NewEncoder creates a new JSON encoder for the writer.
func NewEncoder(w io.Writer) Encoder {
	if usingSonic {
		return sonic.ConfigStd.NewEncoder(w)
	}
	return stdjson.NewEncoder(w)
}

// NewDecoder creates a new JSON decoder for the reader.
func NewDecoder(r io.Reader) Decoder {
	if usingSonic {
		return sonic.ConfigStd.NewDecoder(r)
	}
	return stdjson.NewDecoder(r)
}

// IsUsingSonic returns true if sonic is being used for JSON operations.
func IsUsingSonic() bool {
	return usingSonic
}
