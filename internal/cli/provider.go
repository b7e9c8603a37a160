// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rivershard/launcher/internal/config"
)

func newProviderCmd(ctx context.Context, a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Inspect and select backend providers",
	}
	cmd.AddCommand(newProviderPingCmd(a))
	cmd.AddCommand(newProviderUseCmd(a))
	return cmd
}

func newProviderPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Probe every registered backend and print the fastest available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := a.registry.PingAll(cmd.Context())
			for _, r := range results {
				state := "unavailable"
				if r.Status.Available {
					state = "available"
					if r.Status.LatencyMS != nil {
						state = fmt.Sprintf("available (%dms)", *r.Status.LatencyMS)
					}
				}
				fmt.Printf("%-14s %s\n", r.ID, state)
			}

			if fastest := a.registry.FastestAvailable(); len(fastest) > 0 {
				fmt.Printf("fastest: %s\n", fastest[0].ID)
			}
			return nil
		},
	}
}

func newProviderUseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "use ID",
		Short: "Persist ID (flat or hierarchical) as the default provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.registry.SetCurrent(args[0]); err != nil {
				return fmt.Errorf("cli: %w", err)
			}
			return a.store.Mutate(func(cfg *config.AppConfig) error {
				cfg.CurrentProvider = args[0]
				return nil
			})
		},
	}
}
