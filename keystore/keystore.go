// Package keystore provides encrypted key-value storage for wallet
// secrets. Two backends exist (per-entry files and LevelDB) behind the
// SecureStore interface; the wallet manager is agnostic to which.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	conf "github.com/giwa-chain/giwa-walletd/config"
	"golang.org/x/crypto/scrypt"
)

var (
	// ErrNotFound is returned when no value exists for a key.
	ErrNotFound = errors.New("keystore: item not found")
	// ErrAuthRequired is returned when an authentication-gated read or
	// write is attempted without a usable authenticator.
	ErrAuthRequired = errors.New("keystore: authentication required")
	// ErrAuthDenied is returned when the user fails re-authentication.
	ErrAuthDenied = errors.New("keystore: authentication denied")
)

// Options gates a single storage call. RequireAuth forces the configured
// authenticator to confirm the user before the operation proceeds, the
// platform-biometric equivalent for a daemon process.
type Options struct {
	RequireAuth bool
	Prompt      string
}

// SecureStore is the encrypted key-value store the wallet manager writes
// secrets through.
type SecureStore interface {
	SetItem(key, value string, opts Options) error
	GetItem(key string, opts Options) (string, error)
	RemoveItem(key string) error
	Keys() ([]string, error)
	Close() error
}

// Open selects a backend for the configured keystore directory. An
// explicit Backend in the config wins; otherwise the directory is probed
// for an existing LevelDB store and the file backend is the default.
func Open(cfg *conf.Config, passphrase []byte, auth Authenticator) (SecureStore, error) {
	backend := cfg.Keystore.Backend
	if backend == "" {
		backend = probeBackend(cfg.Keystore.Dir)
	}

	switch backend {
	case "leveldb":
		return NewLevelDBStore(cfg.Keystore.Dir, passphrase, auth)
	case "file":
		return NewFileStore(cfg.Keystore.Dir, passphrase, auth)
	default:
		return nil, fmt.Errorf("keystore: unknown backend %q", backend)
	}
}

// probeBackend detects an existing LevelDB store by its CURRENT marker.
func probeBackend(dir string) string {
	if _, err := os.Stat(filepath.Join(dir, "CURRENT")); err == nil {
		return "leveldb"
	}
	return "file"
}

// scrypt parameters for the cell encryption key. Lighter than a one-shot
// wallet file because the KDF runs on every storage call.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 32
	nonceLen     = 12
)

// envelope is the persisted form of one encrypted cell
type envelope struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipherText"`
}

// encryptCell encrypts a single value with a key derived from passphrase.
func encryptCell(passphrase []byte, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	key, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	ciphertext := aesGCM.Seal(nil, nonce, plaintext, nil)

	return json.Marshal(envelope{
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		CipherText: base64.StdEncoding.EncodeToString(ciphertext),
	})
}

// decryptCell reverses encryptCell. A wrong passphrase surfaces as an
// invalid passphrase error, not garbage plaintext.
func decryptCell(passphrase []byte, data []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}

	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.CipherText)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	key, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("invalid passphrase")
	}

	return plaintext, nil
}

// authenticate runs the gate for one call when opts requires it.
func authenticate(auth Authenticator, opts Options) error {
	if !opts.RequireAuth {
		return nil
	}
	if auth == nil || !auth.Available() {
		return ErrAuthRequired
	}
	return auth.Authenticate(opts.Prompt)
}
