package wallet

import "fmt"

// Stable error codes surfaced to API and CLI callers.
const (
	ErrCodeInvalidMnemonic   = "INVALID_MNEMONIC"
	ErrCodeInvalidPrivateKey = "INVALID_PRIVATE_KEY"
	ErrCodeNoWallet          = "NO_WALLET"
	ErrCodeNotConnected      = "NOT_CONNECTED"
)

// Error is a typed wallet error with a stable code. Storage failures are
// not wrapped in Error: they propagate unchanged from the keystore.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// ErrInvalidMnemonic reports a phrase failing wordlist/checksum validation.
var ErrInvalidMnemonic = newError(ErrCodeInvalidMnemonic, "invalid recovery phrase", nil)

// ErrNotConnected reports a signing operation with no hot account. This is
// distinct from "wallet does not exist", which is a nil return.
var ErrNotConnected = newError(ErrCodeNotConnected, "no hot account loaded", nil)
