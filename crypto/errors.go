package crypto

import "errors"

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrInvalidKeyLength = errors.New("key material has the wrong length")
	ErrEncryption       = errors.New("encryption failed")
	ErrDecryption       = errors.New("decryption failed")
)
