package testkit

import (
	"github.com/chainge/go-chainge-kernel/crypto"
	"github.com/chainge/go-chainge-kernel/receipt"
)

// GoldenVector is one entry of the cross-implementation conformance set:
// identical inputs must produce identical canonical bytes and receipt ids on
// every conforming implementation.
type GoldenVector struct {
	Name       string
	Seed       byte
	StreamName string
	Seq        uint64
	Kind       receipt.Kind
	Payload    []byte
	Timestamp  int64

	// ExpectedReceiptID pins the id once computed by a reference build. Empty
	// means "report, don't assert" so new vectors can be added before pinning.
	ExpectedReceiptID string
}

// AllVectors enumerates the golden vectors.
func AllVectors() []GoldenVector {
	return []GoldenVector{
		{
			Name:       "stream init with hello payload",
			Seed:       0x42,
			StreamName: "test-stream",
			Seq:        1,
			Kind:       receipt.KindStreamInit,
			Payload:    []byte("hello"),
			Timestamp:  FixedTimestamp,
		},
		{
			Name:       "data receipt with world payload",
			Seed:       0x42,
			StreamName: "test-stream",
			Seq:        2,
			Kind:       receipt.KindData,
			Payload:    []byte("world"),
			Timestamp:  FixedTimestamp + 1000,
		},
		{
			Name:       "empty payload stream init",
			Seed:       0x00,
			StreamName: "empty",
			Seq:        1,
			Kind:       receipt.KindStreamInit,
			Payload:    []byte{},
			Timestamp:  0,
		},
		{
			Name:       "tombstone with single ref",
			Seed:       0x42,
			StreamName: "test-stream",
			Seq:        3,
			Kind:       receipt.KindTombstone,
			Payload:    []byte{},
			Timestamp:  FixedTimestamp + 2000,
		},
		{
			Name:       "binary payload all byte values",
			Seed:       0x07,
			StreamName: "binary",
			Seq:        1,
			Kind:       receipt.KindStreamInit,
			Payload:    allBytes(),
			Timestamp:  FixedTimestamp,
		},
	}
}

func allBytes() []byte {
	out := make([]byte, 256)
	for i := range out {
		out[i] = byte(i)
	}
	return out
}

// GenerateReceipt builds the receipt a vector describes. Vectors with seq > 1
// chain onto a fixed dummy predecessor (0xAA repeated); tombstone vectors
// reference a fixed dummy target (0xAB repeated).
func GenerateReceipt(v GoldenVector) (*receipt.Receipt, error) {
	kp := crypto.KeypairFromSeed(Seed(v.Seed))
	streamID := receipt.DeriveStreamID(kp.PublicKey(), v.StreamName)

	b := receipt.NewBuilder(kp.PublicKey(), streamID, v.Seq).
		Kind(v.Kind).
		Timestamp(v.Timestamp).
		Payload(v.Payload)

	if v.Seq > 1 {
		var prev receipt.ID
		for i := range prev {
			prev[i] = 0xAA
		}
		b.Prev(prev)
	}
	if v.Kind == receipt.KindTombstone {
		var target receipt.ID
		for i := range target {
			target[i] = 0xAB
		}
		b.AddRef(target)
	}

	return b.Sign(kp)
}

// VectorResult reports one vector's computed outputs.
type VectorResult struct {
	Name      string
	ReceiptID string
	Matches   bool
}

// VerifyAllVectors regenerates every vector and compares against pinned ids
// where present.
func VerifyAllVectors() ([]VectorResult, error) {
	vectors := AllVectors()
	out := make([]VectorResult, 0, len(vectors))
	for _, v := range vectors {
		r, err := GenerateReceipt(v)
		if err != nil {
			return nil, err
		}
		id := r.ComputeID().Hex()
		out = append(out, VectorResult{
			Name:      v.Name,
			ReceiptID: id,
			Matches:   v.ExpectedReceiptID == "" || v.ExpectedReceiptID == id,
		})
	}
	return out, nil
}
