package keystore

import (
	"crypto/subtle"
	"fmt"
	"os"

	"golang.org/x/term"
)

// Authenticator gates sensitive storage calls behind a user confirmation,
// standing in for the platform biometric prompt on mobile.
type Authenticator interface {
	// Available reports whether the authenticator can run in this
	// environment (e.g. stdin is a terminal).
	Available() bool
	// Authenticate prompts the user and returns ErrAuthDenied on failure.
	Authenticate(prompt string) error
}

// TermAuthenticator re-prompts for the keystore passphrase on the terminal
// and compares it against the passphrase entered at startup.
type TermAuthenticator struct {
	passphrase []byte
}

func NewTermAuthenticator(passphrase []byte) *TermAuthenticator {
	pass := make([]byte, len(passphrase))
	copy(pass, passphrase)
	return &TermAuthenticator{passphrase: pass}
}

func (a *TermAuthenticator) Available() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func (a *TermAuthenticator) Authenticate(prompt string) error {
	if prompt == "" {
		prompt = "Re-enter keystore passphrase"
	}
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to read passphrase: %w", err)
	}
	defer clear(raw)

	if subtle.ConstantTimeCompare(raw, a.passphrase) != 1 {
		return ErrAuthDenied
	}
	return nil
}

// StaticAuthenticator approves or denies every prompt. Used in tests and
// in non-interactive deployments that disable re-authentication.
type StaticAuthenticator struct {
	Allow bool
}

func (a StaticAuthenticator) Available() bool {
	return true
}

func (a StaticAuthenticator) Authenticate(string) error {
	if !a.Allow {
		return ErrAuthDenied
	}
	return nil
}

// PromptPassphrase reads the keystore passphrase without echoing it. The
// GIWA_KEYSTORE_PASSPHRASE environment variable takes precedence for
// non-interactive use.
func PromptPassphrase() ([]byte, error) {
	if env := os.Getenv("GIWA_KEYSTORE_PASSPHRASE"); env != "" {
		return []byte(env), nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("stdin is not a terminal: set GIWA_KEYSTORE_PASSPHRASE or run interactively")
	}

	fmt.Fprint(os.Stderr, "Enter keystore passphrase: ")
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	clear(raw)
	return out, nil
}
