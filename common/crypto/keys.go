package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// BIP-44 path for the first GIWA account (Ethereum coin type)
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

// 128 bits of entropy produces a 12 word phrase
const mnemonicEntropyBits = 128

// NewMnemonic generates a fresh 12-word recovery phrase.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(mnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}

	return mnemonic, nil
}

// ValidateMnemonic checks the phrase against the wordlist and checksum.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// DeriveMasterKey derives the master key from a BIP-39 seed (simple version)
func DeriveMasterKey(seed []byte) *ecdsa.PrivateKey {
	// Hash seed with SHA256 to use as private key scalar
	hash := sha256.Sum256(seed)

	curve := ethcrypto.S256()
	d := new(big.Int).SetBytes(hash[:])
	d.Mod(d, curve.Params().N)

	privateKey := new(ecdsa.PrivateKey)
	privateKey.PublicKey.Curve = curve
	privateKey.D = d
	privateKey.PublicKey.X, privateKey.PublicKey.Y = curve.ScalarBaseMult(d.Bytes())

	return privateKey
}

// DeriveAccountKey derives the account key at a path from the master key (simple version)
func DeriveAccountKey(masterKey *ecdsa.PrivateKey, path string) *ecdsa.PrivateKey {
	// Hash path to create unique offset per account
	pathHash := sha256.Sum256([]byte(path))

	curve := ethcrypto.S256()
	offset := new(big.Int).SetBytes(pathHash[:])
	newD := new(big.Int).Add(masterKey.D, offset)
	newD.Mod(newD, curve.Params().N)

	privateKey := new(ecdsa.PrivateKey)
	privateKey.PublicKey.Curve = curve
	privateKey.D = newD
	privateKey.PublicKey.X, privateKey.PublicKey.Y = curve.ScalarBaseMult(newD.Bytes())

	return privateKey
}

// DeriveFromMnemonic turns a recovery phrase into the signing key at path.
// Derivation is deterministic: the same phrase and path always produce the
// same key.
func DeriveFromMnemonic(mnemonic, path string) (*ecdsa.PrivateKey, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic phrase")
	}

	seed := bip39.NewSeed(mnemonic, "")
	masterKey := DeriveMasterKey(seed)

	return DeriveAccountKey(masterKey, path), nil
}

// ParsePrivateKey parses a hex encoded private key, with or without 0x prefix.
func ParsePrivateKey(keyHex string) (*ecdsa.PrivateKey, error) {
	keyHex = strings.TrimPrefix(strings.TrimSpace(keyHex), "0x")

	privateKey, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return privateKey, nil
}

// PrivateKeyHex returns the 0x-prefixed hex encoding of a private key.
func PrivateKeyHex(privateKey *ecdsa.PrivateKey) string {
	return "0x" + hex.EncodeToString(ethcrypto.FromECDSA(privateKey))
}

// PublicKeyBytes returns the uncompressed public key bytes.
func PublicKeyBytes(privateKey *ecdsa.PrivateKey) []byte {
	return ethcrypto.FromECDSAPub(&privateKey.PublicKey)
}
