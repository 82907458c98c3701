package wallet

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
)

// Account is the hot signing handle. The private key lives only in process
// memory and is cleared when the inactivity timeout fires.
type Account struct {
	Address    common.Address
	PublicKey  []byte
	PrivateKey *ecdsa.PrivateKey
	Path       string
}

// StoredWallet is the persisted wallet record. It never contains key
// material; the mnemonic and raw private key live under their own keys.
type StoredWallet struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
	Path      string `json:"derivationPath"`
}

// Storage key suffixes under the configured prefix
const (
	mnemonicSuffix   = ".mnemonic"
	privateKeySuffix = ".privatekey"
	walletSuffix     = ".wallet"
)

// Rate limiter keys for export operations
const (
	exportMnemonicKey   = "export_mnemonic"
	exportPrivateKeyKey = "export_private_key"
)
