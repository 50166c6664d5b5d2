package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticedb/lattice/internal/crdt"
	"github.com/latticedb/lattice/internal/entry"
)

var putCmd = &cobra.Command{
	Use:   "put <tree-id> <store> <key> <value>",
	Short: "Write a text value into a sub-store, signed by this device's key",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		inst, store, err := openInstance(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		tree, storeName, key, value := entry.ID(args[0]), args[1], args[2], args[3]

		db := inst.OpenDatabase(tree)
		t, err := db.NewTransaction(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		handle, err := t.Store(storeName)
		if err != nil {
			return fmt.Errorf("open store %q: %w", storeName, err)
		}
		handle.Set(key, crdt.NewText(value))

		id, err := t.Commit()
		if err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		if jsonOutput {
			fmt.Printf("{\"entry\":%q}\n", id)
			return nil
		}
		fmt.Println(id)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <tree-id> <store> <key>",
	Short: "Read a materialized value from a sub-store",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		inst, store, err := openInstance(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		tree, storeName, key := entry.ID(args[0]), args[1], args[2]

		db := inst.OpenDatabase(tree)
		doc, err := db.MaterializeStore(ctx, storeName)
		if err != nil {
			return fmt.Errorf("materialize store %q: %w", storeName, err)
		}
		v, ok := doc.Get(key)
		if !ok {
			return fmt.Errorf("key %q not set in store %q", key, storeName)
		}
		fmt.Println(v.TextOr(""))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
}
