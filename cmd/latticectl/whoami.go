package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print this Instance's device public key",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		inst, store, err := openInstance(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if jsonOutput {
			fmt.Printf("{\"device_pubkey\":%q}\n", inst.DevicePubkey())
			return nil
		}
		fmt.Println(inst.DevicePubkey())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
