// Package wallet owns the single active wallet: creation, recovery,
// import, load, export and deletion, plus the policy bounding how long
// private key material stays in process memory.
package wallet

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/giwa-chain/giwa-walletd/audit"
	"github.com/giwa-chain/giwa-walletd/common/crypto"
	"github.com/giwa-chain/giwa-walletd/keystore"
	"github.com/giwa-chain/giwa-walletd/ratelimit"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"
)

// DefaultAccountTimeout is the hot account inactivity timeout.
const DefaultAccountTimeout = 5 * time.Minute

// Manager orchestrates the wallet lifecycle against the secure store.
// Exactly one account slot exists: loading a wallet replaces any previous
// hot account. All methods are safe for concurrent use; the hot account
// field is guarded by a mutex because operations can run on any goroutine.
type Manager struct {
	store   keystore.SecureStore
	limiter *ratelimit.Limiter
	audit   *audit.Logger
	clock   clockwork.Clock
	prefix  string
	timeout time.Duration
	export  ratelimit.Config

	mu         sync.Mutex
	account    *Account
	timer      clockwork.Timer
	lastAccess time.Time
}

// ManagerConfig bundles the injected collaborators. Limiter and Audit are
// process-wide singletons owned by application startup so their state
// survives manager teardown within a session.
type ManagerConfig struct {
	Store          keystore.SecureStore
	Limiter        *ratelimit.Limiter
	Audit          *audit.Logger
	Clock          clockwork.Clock
	Prefix         string
	AccountTimeout time.Duration
	ExportPolicy   ratelimit.Config
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.AccountTimeout <= 0 {
		cfg.AccountTimeout = DefaultAccountTimeout
	}
	if cfg.ExportPolicy.MaxAttempts == 0 {
		cfg.ExportPolicy = ratelimit.DefaultExportConfig()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "giwa"
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New(cfg.Clock)
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.New(cfg.Clock)
	}

	return &Manager{
		store:   cfg.Store,
		limiter: cfg.Limiter,
		audit:   cfg.Audit,
		clock:   cfg.Clock,
		prefix:  cfg.Prefix,
		timeout: cfg.AccountTimeout,
		export:  cfg.ExportPolicy,
	}
}

func (m *Manager) mnemonicKey() string   { return m.prefix + mnemonicSuffix }
func (m *Manager) privateKeyKey() string { return m.prefix + privateKeySuffix }
func (m *Manager) walletKey() string     { return m.prefix + walletSuffix }

// CreateWallet generates a fresh 12-word mnemonic, derives the first
// account at the default path and persists both. The mnemonic is returned
// exactly once; later exports re-read it from the secure store.
func (m *Manager) CreateWallet(opts keystore.Options) (*Account, string, error) {
	mnemonic, err := crypto.NewMnemonic()
	if err != nil {
		return nil, "", err
	}

	account, err := m.persistMnemonicWallet(mnemonic, opts)
	if err != nil {
		return nil, "", err
	}

	m.audit.Log(audit.EventWalletCreated, map[string]interface{}{"path": account.Path}, account.Address.Hex())
	return account, mnemonic, nil
}

// RecoverWallet rebuilds the wallet from an existing recovery phrase. An
// invalid phrase fails before any storage write.
func (m *Manager) RecoverWallet(mnemonic string, opts keystore.Options) (*Account, error) {
	if !crypto.ValidateMnemonic(mnemonic) {
		return nil, ErrInvalidMnemonic
	}

	account, err := m.persistMnemonicWallet(mnemonic, opts)
	if err != nil {
		return nil, err
	}

	m.audit.Log(audit.EventWalletRecovered, map[string]interface{}{"path": account.Path}, account.Address.Hex())
	return account, nil
}

func (m *Manager) persistMnemonicWallet(mnemonic string, opts keystore.Options) (*Account, error) {
	privateKey, err := crypto.DeriveFromMnemonic(mnemonic, crypto.DefaultDerivationPath)
	if err != nil {
		return nil, newError(ErrCodeInvalidMnemonic, "failed to derive account", err)
	}

	account := accountFromKey(privateKey, crypto.DefaultDerivationPath)

	if err := m.store.SetItem(m.mnemonicKey(), mnemonic, opts); err != nil {
		return nil, err
	}
	if err := m.writeRecord(account, opts); err != nil {
		return nil, err
	}

	m.setHot(account)
	return account, nil
}

// ImportPrivateKey persists a raw private key instead of a mnemonic. The
// derivation path is empty because imported keys are not HD-derived.
func (m *Manager) ImportPrivateKey(keyHex string, opts keystore.Options) (*Account, error) {
	privateKey, err := crypto.ParsePrivateKey(keyHex)
	if err != nil {
		return nil, newError(ErrCodeInvalidPrivateKey, "invalid private key", err)
	}

	account := accountFromKey(privateKey, "")

	if err := m.store.SetItem(m.privateKeyKey(), crypto.PrivateKeyHex(privateKey), opts); err != nil {
		return nil, err
	}
	if err := m.writeRecord(account, opts); err != nil {
		return nil, err
	}

	m.setHot(account)
	m.audit.Log(audit.EventWalletImported, nil, account.Address.Hex())
	return account, nil
}

// LoadWallet re-derives the hot account from the persisted secrets. A
// missing wallet record returns (nil, nil), not an error. The mnemonic is
// preferred over a stored raw key.
func (m *Manager) LoadWallet(opts keystore.Options) (*Account, error) {
	record, err := m.readRecord(opts)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var account *Account

	mnemonic, err := m.store.GetItem(m.mnemonicKey(), opts)
	switch {
	case err == nil:
		path := record.Path
		if path == "" {
			path = crypto.DefaultDerivationPath
		}
		privateKey, derr := crypto.DeriveFromMnemonic(mnemonic, path)
		if derr != nil {
			return nil, newError(ErrCodeInvalidMnemonic, "stored mnemonic no longer derives", derr)
		}
		account = accountFromKey(privateKey, path)
	case errors.Is(err, keystore.ErrNotFound):
		keyHex, kerr := m.store.GetItem(m.privateKeyKey(), opts)
		if kerr != nil {
			if errors.Is(kerr, keystore.ErrNotFound) {
				return nil, newError(ErrCodeNoWallet, "wallet record exists but no secret is stored", nil)
			}
			return nil, kerr
		}
		privateKey, perr := crypto.ParsePrivateKey(keyHex)
		if perr != nil {
			return nil, newError(ErrCodeInvalidPrivateKey, "stored private key is corrupt", perr)
		}
		account = accountFromKey(privateKey, "")
	default:
		return nil, err
	}

	m.setHot(account)
	m.audit.Log(audit.EventWalletConnected, nil, account.Address.Hex())
	return account, nil
}

// HasWallet checks only the wallet record key and never triggers
// re-authentication.
func (m *Manager) HasWallet() bool {
	_, err := m.store.GetItem(m.walletKey(), keystore.Options{})
	return err == nil
}

// GetAccount returns the hot account, or nil after the inactivity timeout
// has fired. Every call extends the timeout (sliding expiry).
func (m *Manager) GetAccount() *Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.account == nil {
		return nil
	}

	// The eviction callback may not have run yet; expire lazily so the
	// caller never observes a stale account.
	if m.clock.Since(m.lastAccess) >= m.timeout {
		m.evictLocked()
		return nil
	}

	m.lastAccess = m.clock.Now()
	if m.timer != nil {
		m.timer.Reset(m.timeout)
	}
	return m.account
}

// ExportMnemonic re-reads the stored phrase. Rate limited; an imported
// wallet with no mnemonic returns ("", nil).
func (m *Manager) ExportMnemonic(opts keystore.Options) (string, error) {
	if err := m.checkExportLimit(exportMnemonicKey); err != nil {
		return "", err
	}

	m.audit.Log(audit.EventExportAttempt, m.exportDetails(exportMnemonicKey), m.currentAddressHex())

	mnemonic, err := m.store.GetItem(m.mnemonicKey(), opts)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return "", nil
		}
		m.audit.Log(audit.EventExportFailure, m.exportDetails(exportMnemonicKey), m.currentAddressHex())
		return "", err
	}

	m.audit.Log(audit.EventExportSuccess, m.exportDetails(exportMnemonicKey), m.currentAddressHex())
	return mnemonic, nil
}

// ExportPrivateKey returns the 0x-prefixed key hex, re-deriving from the
// stored mnemonic when one exists and falling back to the stored raw key.
func (m *Manager) ExportPrivateKey(opts keystore.Options) (string, error) {
	if err := m.checkExportLimit(exportPrivateKeyKey); err != nil {
		return "", err
	}

	m.audit.Log(audit.EventExportAttempt, m.exportDetails(exportPrivateKeyKey), m.currentAddressHex())

	mnemonic, err := m.store.GetItem(m.mnemonicKey(), opts)
	if err == nil {
		record, rerr := m.readRecord(keystore.Options{})
		path := crypto.DefaultDerivationPath
		if rerr == nil && record.Path != "" {
			path = record.Path
		}
		privateKey, derr := crypto.DeriveFromMnemonic(mnemonic, path)
		if derr != nil {
			m.audit.Log(audit.EventExportFailure, m.exportDetails(exportPrivateKeyKey), m.currentAddressHex())
			return "", newError(ErrCodeInvalidMnemonic, "stored mnemonic no longer derives", derr)
		}
		m.audit.Log(audit.EventExportSuccess, m.exportDetails(exportPrivateKeyKey), m.currentAddressHex())
		return crypto.PrivateKeyHex(privateKey), nil
	}
	if !errors.Is(err, keystore.ErrNotFound) {
		m.audit.Log(audit.EventExportFailure, m.exportDetails(exportPrivateKeyKey), m.currentAddressHex())
		return "", err
	}

	keyHex, err := m.store.GetItem(m.privateKeyKey(), opts)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return "", nil
		}
		m.audit.Log(audit.EventExportFailure, m.exportDetails(exportPrivateKeyKey), m.currentAddressHex())
		return "", err
	}

	m.audit.Log(audit.EventExportSuccess, m.exportDetails(exportPrivateKeyKey), m.currentAddressHex())
	return keyHex, nil
}

// DeleteWallet removes every persisted key and clears the hot account.
// The address is captured before removal so the audit event can carry it.
func (m *Manager) DeleteWallet() error {
	addressHint := m.currentAddressHex()
	if addressHint == "" {
		if record, err := m.readRecord(keystore.Options{}); err == nil {
			addressHint = record.Address
		}
	}

	if err := m.store.RemoveItem(m.mnemonicKey()); err != nil {
		return err
	}
	if err := m.store.RemoveItem(m.privateKeyKey()); err != nil {
		return err
	}
	if err := m.store.RemoveItem(m.walletKey()); err != nil {
		return err
	}

	m.mu.Lock()
	m.stopTimerLocked()
	m.account = nil
	m.mu.Unlock()

	m.audit.Log(audit.EventWalletDeleted, nil, addressHint)
	return nil
}

// Destroy tears the manager down without touching persisted storage.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopTimerLocked()
	m.account = nil
}

func (m *Manager) setHot(account *Account) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.account = account
	m.lastAccess = m.clock.Now()
	if m.timer == nil {
		m.timer = m.clock.AfterFunc(m.timeout, m.evict)
	} else {
		m.timer.Reset(m.timeout)
	}
}

// evict is the timer callback clearing an idle hot account.
func (m *Manager) evict() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.account == nil {
		return
	}
	// A GetAccount call re-armed the timer after this fired
	if m.clock.Since(m.lastAccess) < m.timeout {
		return
	}
	m.evictLocked()
}

func (m *Manager) evictLocked() {
	address := m.account.Address.Hex()
	m.account = nil
	m.audit.Log(audit.EventWalletDisconnected, map[string]interface{}{"reason": "account_timeout"}, address)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
}

func (m *Manager) checkExportLimit(key string) error {
	err := m.limiter.CheckLimit(key, m.export)
	if err != nil {
		m.audit.Log(audit.EventExportFailure, map[string]interface{}{
			"operation": key,
			"reason":    "rate_limited",
		}, m.currentAddressHex())
	}
	return err
}

func (m *Manager) exportDetails(key string) map[string]interface{} {
	return map[string]interface{}{
		"operation": key,
		"remaining": m.limiter.GetRemainingAttempts(key, m.export),
	}
}

func (m *Manager) currentAddressHex() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.account == nil {
		return ""
	}
	return m.account.Address.Hex()
}

func (m *Manager) writeRecord(account *Account, opts keystore.Options) error {
	record := StoredWallet{
		Address:   account.Address.Hex(),
		PublicKey: fmt.Sprintf("0x%x", account.PublicKey),
		Path:      account.Path,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet record: %w", err)
	}
	return m.store.SetItem(m.walletKey(), string(data), opts)
}

func (m *Manager) readRecord(opts keystore.Options) (*StoredWallet, error) {
	data, err := m.store.GetItem(m.walletKey(), opts)
	if err != nil {
		return nil, err
	}

	var record StoredWallet
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet record: %w", err)
	}
	return &record, nil
}

func accountFromKey(privateKey *ecdsa.PrivateKey, path string) *Account {
	return &Account{
		Address:    ethcrypto.PubkeyToAddress(privateKey.PublicKey),
		PublicKey:  crypto.PublicKeyBytes(privateKey),
		PrivateKey: privateKey,
		Path:       path,
	}
}
