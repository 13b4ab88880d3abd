package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tradeTape/internal/exchange"
	"tradeTape/internal/indexer"
)

func newSignaturesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signatures",
		Short: "Print the fill-event catalog with topic hashes",
		RunE:  runSignatures,
	}

	cmd.Flags().String("topic", "", "only show variants matching this topic0 hash")

	return cmd
}

func runSignatures(cmd *cobra.Command, _ []string) error {
	topic, _ := cmd.Flags().GetString("topic")
	return writeSignatures(cmd.OutOrStdout(), topic)
}

func writeSignatures(w io.Writer, topic string) error {
	decoder, err := exchange.NewDecoder()
	if err != nil {
		return err
	}

	variants := decoder.Variants()
	if topic != "" {
		hash, err := indexer.ParseTopic(topic)
		if err != nil {
			return err
		}
		variants = decoder.Lookup(hash)
		if len(variants) == 0 {
			return fmt.Errorf("no known fill event for topic %s", hash.Hex())
		}
	}

	for _, v := range variants {
		if _, err := fmt.Fprintf(w, "%s  %-14s indexed=%d  %s\n", v.ID().Hex(), v.Key, v.IndexedCount(), v.Signature()); err != nil {
			return err
		}
	}
	return nil
}
