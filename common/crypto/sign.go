package crypto

import (
	"crypto/ecdsa"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignMessage signs arbitrary data with the wallet key. The data is hashed
// with Keccak256 before signing, matching what on-chain verifiers expect.
func SignMessage(privateKey *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key is nil")
	}

	digest := ethcrypto.Keccak256(data)
	signature, err := ethcrypto.Sign(digest, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign data: %w", err)
	}

	return signature, nil
}

// VerifyMessage verifies a signature produced by SignMessage.
func VerifyMessage(publicKey []byte, data, signature []byte) bool {
	if len(publicKey) == 0 || len(signature) < 64 {
		return false
	}

	digest := ethcrypto.Keccak256(data)
	// Drop the recovery id byte if present
	return ethcrypto.VerifySignature(publicKey, digest, signature[:64])
}
