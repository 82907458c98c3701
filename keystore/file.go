package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const fileExt = ".giwa"

// FileStore keeps one encrypted file per entry under a directory. This is
// the default backend: it needs no daemon-held handles and individual
// entries can be backed up or removed independently.
type FileStore struct {
	dir        string
	passphrase []byte
	auth       Authenticator
}

func NewFileStore(dir string, passphrase []byte, auth Authenticator) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keystore dir: %w", err)
	}

	pass := make([]byte, len(passphrase))
	copy(pass, passphrase)

	return &FileStore{
		dir:        dir,
		passphrase: pass,
		auth:       auth,
	}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+fileExt)
}

func (s *FileStore) SetItem(key, value string, opts Options) error {
	if err := authenticate(s.auth, opts); err != nil {
		return err
	}

	data, err := encryptCell(s.passphrase, []byte(value))
	if err != nil {
		return err
	}

	return os.WriteFile(s.path(key), data, 0600)
}

func (s *FileStore) GetItem(key string, opts Options) (string, error) {
	if err := authenticate(s.auth, opts); err != nil {
		return "", err
	}

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read keystore entry: %w", err)
	}

	plaintext, err := decryptCell(s.passphrase, data)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

func (s *FileStore) RemoveItem(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove keystore entry: %w", err)
	}
	return nil
}

func (s *FileStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list keystore dir: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileExt))
	}
	return keys, nil
}

func (s *FileStore) Close() error {
	clear(s.passphrase)
	return nil
}
