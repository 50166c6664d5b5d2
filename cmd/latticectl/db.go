package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticedb/lattice/internal/entry"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage databases (trees) within this Instance",
}

var dbCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new database, granting this device Admin over it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		inst, store, err := openInstance(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		db, err := inst.CreateDatabase(ctx)
		if err != nil {
			return fmt.Errorf("create database: %w", err)
		}
		if jsonOutput {
			fmt.Printf("{\"root\":%q}\n", db.Root())
			return nil
		}
		fmt.Println(db.Root())
		return nil
	},
}

var dbTipsCmd = &cobra.Command{
	Use:   "tips <tree-id>",
	Short: "List the tree-level tips of a database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		inst, store, err := openInstance(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		db := inst.OpenDatabase(entry.ID(args[0]))
		tips, err := db.Tips(ctx)
		if err != nil {
			return fmt.Errorf("get tips: %w", err)
		}
		for _, t := range tips {
			fmt.Println(t)
		}
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbCreateCmd)
	dbCmd.AddCommand(dbTipsCmd)
	rootCmd.AddCommand(dbCmd)
}
