package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect or reset the shared counter snapshot",
}

var snapshotDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every counter in the snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		p, store, err := openPipeline(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		snap, slot, err := p.Load(ctx)
		if err != nil {
			return err
		}

		type counter struct {
			Counter   string    `yaml:"counter"`
			Hits      int64     `yaml:"hits"`
			ExpiresAt time.Time `yaml:"expiresAt"`
			Expired   bool      `yaml:"expired,omitempty"`
		}
		doc := struct {
			Key      string    `yaml:"key"`
			Version  uint64    `yaml:"version"`
			Bytes    int       `yaml:"bytes"`
			Counters []counter `yaml:"counters"`
		}{
			Key:     p.SnapshotKey(),
			Version: slot.Version,
			Bytes:   len(slot.Value),
		}

		now := time.Now()
		for _, e := range snap.Entries() {
			doc.Counters = append(doc.Counters, counter{
				Counter:   e.Counter.String(),
				Hits:      e.Hits,
				ExpiresAt: e.ExpiresAt.UTC(),
				Expired:   !e.ExpiresAt.After(now),
			})
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	},
}

var snapshotResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the snapshot, clearing every counter",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		p, store, err := openPipeline(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(ctx, p.SnapshotKey()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s deleted\n", p.SnapshotKey())
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotDumpCmd)
	snapshotCmd.AddCommand(snapshotResetCmd)
}
