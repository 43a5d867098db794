package keystore

import "errors"

var (
	ErrUnsupportedVersion    = errors.New("unsupported keystore version")
	ErrUnsupportedParameters = errors.New("unsupported keystore parameters")
	// ErrWrongPassphrase covers both a wrong passphrase and a corrupt record; the two
	// cannot be told apart from the MAC alone.
	ErrWrongPassphrase = errors.New("key derivation failed - possibly wrong passphrase or corrupt keystore")
	ErrInvalidRecord   = errors.New("invalid keystore record")
	ErrAddressMismatch = errors.New("keystore address does not match decrypted key")
)
