package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/latticedb/lattice/internal/backend/sqlitestore"
	"github.com/latticedb/lattice/internal/instance"
	"github.com/latticedb/lattice/internal/latticecfg"
	"github.com/latticedb/lattice/internal/latticelog"
)

var (
	jsonOutput bool
	dbPath     string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "latticectl",
	Short: "Inspect and drive a lattice Instance by hand",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		latticelog.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the sqlite database file (defaults to <instance-dir>/lattice.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// openInstance resolves the default database path via latticecfg and
// opens (or initializes) an Instance against it.
func openInstance(ctx context.Context) (*instance.Instance, *sqlitestore.Store, error) {
	path := dbPath
	if path == "" {
		cfg, err := latticecfg.Load()
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		path = filepath.Join(cfg.InstanceDir, "lattice.db")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create instance dir %s: %w", dir, err)
		}
	}

	store, err := sqlitestore.Open(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store at %s: %w", path, err)
	}

	inst, err := instance.Open(ctx, store)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("open instance: %w", err)
	}
	return inst, store, nil
}
