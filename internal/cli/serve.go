// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// newServeCmd starts the websocket event bridge so an out-of-process UI
// can watch engine events live, without the launcher itself serving any
// page - the teacher's internal/server bundled a web UI with its
// websocket hub; here the hub stands alone and nothing else does.
func newServeCmd(ctx context.Context, a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Bridge engine events onto a local websocket for a UI to consume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stop, err := a.startWSBridge(addr)
			if err != nil {
				return fmt.Errorf("cli: serve: %w", err)
			}
			defer stop()

			fmt.Printf("event bridge listening on %s/events\n", addr)
			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8765", "Address to bind the websocket bridge")
	return cmd
}
