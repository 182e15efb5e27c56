package receipt

import "errors"

var (
	ErrMalformedReceipt    = errors.New("malformed receipt")
	ErrUnsupportedVersion  = errors.New("unsupported receipt version")
	ErrPayloadHashMismatch = errors.New("payload hash does not match header")
	ErrSignatureFailed     = errors.New("signature verification failed")
	ErrInvalidSequence     = errors.New("invalid sequence number")
	ErrInvalidPrevReceipt  = errors.New("invalid prev_receipt_id")
	ErrTooManyRefs         = errors.New("refs array exceeds maximum length")
	ErrTombstoneMissingRef = errors.New("tombstone must reference a receipt in refs[0]")
	ErrInvalidKind         = errors.New("invalid receipt kind")
	ErrPayloadTooLarge     = errors.New("payload exceeds maximum size")
	ErrEncoding            = errors.New("canonical encoding failed")
)
