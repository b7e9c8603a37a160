// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newUploadCmd(ctx context.Context, a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Publish a staged release to its shard repos",
	}
	cmd.AddCommand(newUploadStartCmd(a))
	cmd.AddCommand(newUploadContinueCmd(a))
	return cmd
}

func newUploadStartCmd(a *app) *cobra.Command {
	var filesPerCommit int

	cmd := &cobra.Command{
		Use:   "start RELEASE STAGING_DIR",
		Short: "Pack and publish a fresh release from STAGING_DIR",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			unsub := a.watchProgress(cmd.Context())
			defer unsub()

			if err := a.uploadEngine.Start(cmd.Context(), args[0], args[1], filesPerCommit); err != nil {
				return fmt.Errorf("cli: upload start: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&filesPerCommit, "files-per-commit", 10, "Maximum archive files committed together per push")
	return cmd
}

func newUploadContinueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "continue",
		Short: "Resume a publish interrupted mid-push",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			unsub := a.watchProgress(cmd.Context())
			defer unsub()

			if err := a.uploadEngine.Continue(cmd.Context()); err != nil {
				return fmt.Errorf("cli: upload continue: %w", err)
			}
			return nil
		},
	}
}
