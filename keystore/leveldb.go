package keystore

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDBStore keeps all encrypted entries in a single LevelDB database.
// Suited to deployments that already ship LevelDB state and want one
// directory to snapshot.
type LevelDBStore struct {
	db         *leveldb.DB
	passphrase []byte
	auth       Authenticator
}

func NewLevelDBStore(dir string, passphrase []byte, auth Authenticator) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open keystore db: %w", err)
	}

	pass := make([]byte, len(passphrase))
	copy(pass, passphrase)

	return &LevelDBStore{
		db:         db,
		passphrase: pass,
		auth:       auth,
	}, nil
}

func (s *LevelDBStore) SetItem(key, value string, opts Options) error {
	if err := authenticate(s.auth, opts); err != nil {
		return err
	}

	data, err := encryptCell(s.passphrase, []byte(value))
	if err != nil {
		return err
	}

	return s.db.Put([]byte(key), data, nil)
}

func (s *LevelDBStore) GetItem(key string, opts Options) (string, error) {
	if err := authenticate(s.auth, opts); err != nil {
		return "", err
	}

	data, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
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

func (s *LevelDBStore) RemoveItem(key string) error {
	return s.db.Delete([]byte(key), nil)
}

func (s *LevelDBStore) Keys() ([]string, error) {
	var keys []string

	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate keystore db: %w", err)
	}
	return keys, nil
}

func (s *LevelDBStore) Close() error {
	clear(s.passphrase)
	return s.db.Close()
}
