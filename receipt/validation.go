package receipt

import (
	"fmt"

	"github.com/chainge/go-chainge-kernel/crypto"
)

// Validate performs full structural validation: version, payload hash, refs
// bounds, kind rules, sequence rules and the signature. It needs no external
// state; stream-context checks (head consistency, fork detection) belong to
// the stream machine at ingest time.
func Validate(r *Receipt) error {
	if err := ValidateStructure(r); err != nil {
		return err
	}

	message, err := SignedMessage(&r.Header, r.Payload)
	if err != nil {
		return err
	}
	if err := r.Header.Author.Verify(message, r.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureFailed, err)
	}
	return nil
}

// ValidateStructure checks everything except the signature. Useful when the
// receipt comes from trusted storage and the signature was verified on the way
// in.
func ValidateStructure(r *Receipt) error {
	if r.Header.Version != Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, r.Header.Version)
	}

	if crypto.Sum(r.Payload) != r.Header.PayloadHash {
		return ErrPayloadHashMismatch
	}

	if len(r.Payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(r.Payload))
	}

	if len(r.Header.Refs) > MaxRefs {
		return fmt.Errorf("%w: %d refs", ErrTooManyRefs, len(r.Header.Refs))
	}

	if r.Header.Kind == KindTombstone && len(r.Header.Refs) == 0 {
		return ErrTombstoneMissingRef
	}

	if r.Header.Kind == KindStreamInit {
		if r.Header.Seq != 1 {
			return fmt.Errorf("%w: expected 1, got %d", ErrInvalidSequence, r.Header.Seq)
		}
		if r.Header.PrevReceiptID != nil {
			return fmt.Errorf("%w: stream init must not carry one", ErrInvalidPrevReceipt)
		}
	}

	if r.Header.Seq > 1 && r.Header.PrevReceiptID == nil {
		return fmt.Errorf("%w: seq %d requires prev_receipt_id", ErrInvalidPrevReceipt, r.Header.Seq)
	}

	if r.Header.Seq == 0 {
		return fmt.Errorf("%w: seq is 1-indexed", ErrInvalidSequence)
	}

	return nil
}
