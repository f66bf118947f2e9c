// Package vault encrypts stored connection passwords with AES-256-CBC.
//
// The key is taken from a user supplied file or URL when the connection
// carries a userDefined descriptor. Otherwise a shared key file is used,
// generated on first encryption.
package vault

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/ark/internal/model"
	"github.com/kart-io/ark/pkg/errors"
)

const (
	keySize = 32
	ivSize  = aes.BlockSize
)

// Fetcher retrieves key material from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Encrypted is the result of an encryption.
// KeyHex is only set when the key was generated by this call or supplied
// explicitly; KeyFile is the file the key was read from, if any.
type Encrypted struct {
	CipherHex string
	KeyHex    string
	IVHex     string
	KeyFile   string
}

// Vault resolves keys and encrypts or decrypts passwords.
type Vault struct {
	keyFile string
	fetcher Fetcher

	// guards generation of the shared key file
	mu sync.Mutex
}

// New returns a Vault using keyFile as the generated key location.
func New(keyFile string, fetcher Fetcher) *Vault {
	return &Vault{keyFile: keyFile, fetcher: fetcher}
}

// KeyFile returns the generated key location.
func (v *Vault) KeyFile() string {
	return v.keyFile
}

// Encrypt encrypts plaintext with a fresh IV.
func (v *Vault) Encrypt(ctx context.Context, plaintext string, desc *model.EncryptionKey) (*Encrypted, error) {
	rk, err := v.resolve(ctx, desc, true)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, errors.ErrInternal.WithCause(fmt.Errorf("generating iv: %w", err))
	}

	block, err := aes.NewCipher(rk.key)
	if err != nil {
		return nil, errors.ErrKeyUnreadable.WithCause(err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	enc := &Encrypted{
		CipherHex: hex.EncodeToString(out),
		IVHex:     hex.EncodeToString(iv),
		KeyFile:   rk.file,
	}
	if rk.created || desc.UserDefined() {
		enc.KeyHex = hex.EncodeToString(rk.key)
	}
	return enc, nil
}

// Decrypt reverses Encrypt. It never generates a key.
func (v *Vault) Decrypt(ctx context.Context, cipherHex string, desc *model.EncryptionKey, ivHex string) (string, error) {
	rk, err := v.resolve(ctx, desc, false)
	if err != nil {
		return "", err
	}

	ct, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", errors.ErrDecryptionFailed.WithCause(fmt.Errorf("ciphertext: %w", err))
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", errors.ErrDecryptionFailed.WithCause(fmt.Errorf("iv: %w", err))
	}
	if len(iv) != ivSize {
		return "", errors.ErrDecryptionFailed.WithMessagef("iv must be %d bytes", ivSize)
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", errors.ErrDecryptionFailed.WithMessage("ciphertext is not a whole number of blocks")
	}

	block, err := aes.NewCipher(rk.key)
	if err != nil {
		return "", errors.ErrKeyUnreadable.WithCause(err)
	}

	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)

	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", errors.ErrDecryptionFailed.WithCause(err)
	}
	return string(plain), nil
}

// CreateKey returns a new random hex key without persisting it.
func (v *Vault) CreateKey() (string, error) {
	key, err := newKey()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

type resolvedKey struct {
	key     []byte
	file    string
	created bool
}

func (v *Vault) resolve(ctx context.Context, desc *model.EncryptionKey, generate bool) (*resolvedKey, error) {
	if desc.UserDefined() {
		return v.resolveUserDefined(ctx, desc)
	}

	path := v.keyFile
	if desc != nil && desc.Type == model.KeyTypeFile && desc.URL != "" {
		path = desc.URL
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		key, err := parseKey(data)
		if err != nil {
			return nil, errors.ErrKeyUnreadable.WithCause(err)
		}
		return &resolvedKey{key: key, file: path}, nil
	case stderrors.Is(err, fs.ErrNotExist) && generate:
		return v.generate(path)
	default:
		return nil, errors.ErrKeyUnreadable.WithCause(err)
	}
}

func (v *Vault) resolveUserDefined(ctx context.Context, desc *model.EncryptionKey) (*resolvedKey, error) {
	if desc.URL == "" {
		return nil, errors.ErrKeyUnreadable.WithMessage("user defined key has no location")
	}

	var (
		data []byte
		err  error
		file string
	)
	if desc.Type == model.KeyTypeURL {
		if v.fetcher == nil {
			return nil, errors.ErrKeyUnreadable.WithMessage("no fetcher configured for key url")
		}
		data, err = v.fetcher.Fetch(ctx, desc.URL)
	} else {
		file = desc.URL
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, errors.ErrKeyUnreadable.WithCause(err)
	}

	key, err := parseKey(data)
	if err != nil {
		return nil, errors.ErrKeyUnreadable.WithCause(err)
	}
	return &resolvedKey{key: key, file: file}, nil
}

// generate writes a new key to path via a temp file and rename, so a reader
// never observes a partial key. Across processes the last writer wins.
func (v *Vault) generate(path string) (*resolvedKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	// another call may have generated it while we waited
	if data, err := os.ReadFile(path); err == nil {
		key, err := parseKey(data)
		if err != nil {
			return nil, errors.ErrKeyUnreadable.WithCause(err)
		}
		return &resolvedKey{key: key, file: path}, nil
	}

	key, err := newKey()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.ErrKeyUnreadable.WithCause(err)
	}
	tmp, err := os.CreateTemp(dir, ".ark-key-*")
	if err != nil {
		return nil, errors.ErrKeyUnreadable.WithCause(err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(hex.EncodeToString(key)); err != nil {
		_ = tmp.Close()
		return nil, errors.ErrKeyUnreadable.WithCause(err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return nil, errors.ErrKeyUnreadable.WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.ErrKeyUnreadable.WithCause(err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, errors.ErrKeyUnreadable.WithCause(err)
	}

	logger.Infow("Generated encryption key", "key_file", path)
	return &resolvedKey{key: key, file: path, created: true}, nil
}

func newKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, errors.ErrInternal.WithCause(fmt.Errorf("generating key: %w", err))
	}
	return key, nil
}

// parseKey accepts 32 raw bytes or 64 hex characters, ignoring surrounding whitespace.
func parseKey(data []byte) ([]byte, error) {
	if len(data) == keySize {
		return data, nil
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == keySize*2 {
		key := make([]byte, keySize)
		if _, err := hex.Decode(key, trimmed); err == nil {
			return key, nil
		}
	}
	if len(trimmed) == keySize {
		return trimmed, nil
	}
	return nil, fmt.Errorf("key must be %d bytes or %d hex characters, got %d bytes", keySize, keySize*2, len(data))
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(b))
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
