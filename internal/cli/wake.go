// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

func newWakeCmd(ctx context.Context, a *app) *cobra.Command {
	var settleSeconds int

	cmd := &cobra.Command{
		Use:   "watch-wake",
		Short: "Block, restarting the launcher process after an OS sleep/wake cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := a.newWakeDetector(time.Duration(settleSeconds) * time.Second)
			return d.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&settleSeconds, "settle-seconds", 5, "Seconds to wait after a detected wake before restarting")
	return cmd
}
