package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticedb/lattice/internal/database"
	"github.com/latticedb/lattice/internal/entry"
	"github.com/latticedb/lattice/internal/syncsvc"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Inspect this Instance's sync peer registry and pending requests",
}

var syncPeersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List registered sync peers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, store, err := openSyncService(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		peers, err := svc.ListPeers(ctx)
		if err != nil {
			return fmt.Errorf("list peers: %w", err)
		}
		for _, p := range peers {
			fmt.Printf("%s\t%s\tsynced_trees=%d\n", p.Pubkey, p.DisplayName, len(p.SyncedTrees))
		}
		return nil
	},
}

var syncPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List open bootstrap requests awaiting manual approval",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, store, err := openSyncService(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		reqs, err := svc.ListPending(ctx)
		if err != nil {
			return fmt.Errorf("list pending: %w", err)
		}
		for _, r := range reqs {
			fmt.Printf("%s\ttree=%s\trequester=%s\n", r.RequestID, r.TreeID, r.RequesterPubkey)
		}
		return nil
	},
}

var syncApproveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a pending bootstrap request, granting the requester's key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, store, err := openSyncService(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		return svc.Approve(ctx, args[0], "device")
	},
}

var syncRejectCmd = &cobra.Command{
	Use:   "reject <request-id>",
	Short: "Reject a pending bootstrap request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, store, err := openSyncService(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		return svc.Reject(ctx, args[0])
	},
}

// openSyncService wires a syncsvc.Service over this Instance's dedicated
// `_sync` database (created on first use), resolving trees through
// Instance.OpenDatabase the way a long-running daemon would.
func openSyncService(ctx context.Context) (*syncsvc.Service, interface{ Close() error }, error) {
	inst, store, err := openInstance(ctx)
	if err != nil {
		return nil, nil, err
	}

	syncRoot, ok, err := inst.Backend().GetInstanceMetadata(ctx, "latticectl.sync_root")
	if err != nil {
		return nil, nil, fmt.Errorf("load sync root: %w", err)
	}
	var syncDB *database.Database
	if ok {
		syncDB = inst.OpenDatabase(entry.ID(syncRoot))
	} else {
		syncDB, err = inst.CreateDatabase(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create sync database: %w", err)
		}
		if err := inst.Backend().SetInstanceMetadata(ctx, "latticectl.sync_root", []byte(syncDB.Root())); err != nil {
			return nil, nil, fmt.Errorf("persist sync root: %w", err)
		}
	}

	resolver := func(ctx context.Context, tree entry.ID) (*database.Database, error) {
		if _, err := inst.Backend().Get(ctx, tree); err != nil {
			return nil, err
		}
		return inst.OpenDatabase(tree), nil
	}

	svc := syncsvc.New(syncDB, resolver, "device", "latticectl", inst.DevicePubkey(), "latticectl", nil)
	return svc, store, nil
}

func init() {
	syncCmd.AddCommand(syncPeersCmd)
	syncCmd.AddCommand(syncPendingCmd)
	syncCmd.AddCommand(syncApproveCmd)
	syncCmd.AddCommand(syncRejectCmd)
	rootCmd.AddCommand(syncCmd)
}
