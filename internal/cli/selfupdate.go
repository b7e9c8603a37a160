// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rivershard/launcher/internal/events"
	"github.com/rivershard/launcher/internal/selfupdate"
)

func newSelfUpdateCmd(ctx context.Context, a *app, version string) *cobra.Command {
	var owner, project string

	cmd := &cobra.Command{
		Use:   "selfupdate",
		Short: "Check for and apply a newer launcher release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			updater := a.newSelfUpdater(owner, project)

			release, ok, err := updater.Check(cmd.Context(), version)
			if err != nil {
				return fmt.Errorf("cli: selfupdate check: %w", err)
			}
			if !ok {
				fmt.Println("launcher is up to date")
				return nil
			}
			a.bus.Publish(events.Event{Name: events.LauncherNewVersion, Data: events.LauncherNewVersionPayload{
				Current: version, Latest: release.Version,
			}})
			fmt.Printf("downloading launcher %s ...\n", release.Version)

			appConfigDir := filepath.Dir(a.opts.ConfigPath)
			downloaded, err := updater.Download(cmd.Context(), release, appConfigDir)
			if err != nil {
				return fmt.Errorf("cli: selfupdate download: %w", err)
			}

			if err := selfupdate.Install(downloaded); err != nil {
				return fmt.Errorf("cli: selfupdate install: %w", err)
			}

			fmt.Println("restarting ...")
			return selfupdate.Restart()
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "rivershard", "Launcher release owner/org")
	cmd.Flags().StringVar(&project, "project", "launcher", "Launcher release project name")
	return cmd
}
