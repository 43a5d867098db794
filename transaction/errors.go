package transaction

import "errors"

var (
	ErrMissingPrivateKey = errors.New("transaction from address's private key is invalid")
	ErrNotSigned         = errors.New("transaction must be signed before this operation")
	ErrAlreadySigned     = errors.New("transaction is already signed")
	ErrSignerMismatch    = errors.New("signing key does not match transaction sender")
	ErrValueOverflow     = errors.New("value exceeds its fixed wire width")
	ErrInvalidPayload    = errors.New("invalid transaction payload")
	ErrInvalidAddress    = errors.New("invalid transaction address")
	ErrInvalidSignature  = errors.New("invalid transaction signature")
	ErrDecode            = errors.New("malformed transaction bytes")
)
