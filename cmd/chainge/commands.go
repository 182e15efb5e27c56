package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chainge/go-chainge-kernel/crypto"
	"github.com/chainge/go-chainge-kernel/receipt"
	"github.com/chainge/go-chainge-kernel/testkit"
)

func newKeygenCmd(a *app) *cobra.Command {
	var seedHex string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 keypair, or derive one from a seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			var kp *crypto.Keypair
			if seedHex != "" {
				raw, err := hex.DecodeString(seedHex)
				if err != nil {
					return fmt.Errorf("parsing seed: %w", err)
				}
				if len(raw) != crypto.SeedSize {
					return fmt.Errorf("seed must be %d bytes, got %d", crypto.SeedSize, len(raw))
				}
				var seed [crypto.SeedSize]byte
				copy(seed[:], raw)
				kp = crypto.KeypairFromSeed(seed)
			} else {
				var err error
				kp, err = crypto.GenerateKeypair()
				if err != nil {
					return err
				}
			}

			seed := kp.Seed()
			fmt.Fprintf(cmd.OutOrStdout(), "public: %s\n", kp.PublicKey().Hex())
			fmt.Fprintf(cmd.OutOrStdout(), "seed:   %s\n", hex.EncodeToString(seed[:]))
			return nil
		},
	}
	cmd.Flags().StringVar(&seedHex, "seed", "", "32-byte hex seed (deterministic)")
	return cmd
}

func newStreamIDCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stream-id <author-pubkey-hex> <stream-name>",
		Short: "Derive a stream id from an author key and stream name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			author, err := crypto.PublicKeyFromHex(args[0])
			if err != nil {
				return fmt.Errorf("parsing author key: %w", err)
			}
			streamID := receipt.DeriveStreamID(author, args[1])
			fmt.Fprintln(cmd.OutOrStdout(), streamID.Hex())
			return nil
		},
	}
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <receipt-file>",
		Short: "Decode and validate a canonical receipt file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			r, err := receipt.DecodeReceipt(data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:        %s\n", r.ComputeID().Hex())
			fmt.Fprintf(out, "author:    %s\n", r.Author().Hex())
			fmt.Fprintf(out, "stream:    %s\n", r.StreamID().Hex())
			fmt.Fprintf(out, "seq:       %d\n", r.Seq())
			fmt.Fprintf(out, "kind:      %s (0x%04x)\n", r.Kind(), r.Kind().Uint16())
			fmt.Fprintf(out, "timestamp: %d\n", r.Header.Timestamp)
			fmt.Fprintf(out, "payload:   %d bytes\n", len(r.Payload))
			if r.Header.PrevReceiptID != nil {
				fmt.Fprintf(out, "prev:      %s\n", r.Header.PrevReceiptID.Hex())
			}
			for i, ref := range r.Header.Refs {
				fmt.Fprintf(out, "ref[%d]:    %s\n", i, ref.Hex())
			}

			if err := receipt.Validate(r); err != nil {
				fmt.Fprintf(out, "valid:     NO (%v)\n", err)
				return nil
			}
			fmt.Fprintf(out, "valid:     yes\n")
			return nil
		},
	}
}

func newVectorsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "vectors",
		Short: "Print the golden conformance vectors and their receipt ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := testkit.VerifyAllVectors()
			if err != nil {
				return err
			}
			for _, r := range results {
				status := "ok"
				if !r.Matches {
					status = "MISMATCH"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %s  %s\n", r.Name, r.ReceiptID, status)
			}
			return nil
		},
	}
}
