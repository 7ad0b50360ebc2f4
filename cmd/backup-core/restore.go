/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/knoxite-labs/backupcore/internal/restore"
)

var (
	restoreSnapshot string
	restoreOut      string
	restorePath     string
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a snapshot, or a single file from it, to disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := dialRepo()
		if err != nil {
			return err
		}

		tempDir, err := os.MkdirTemp("", "backupcore-restore-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tempDir)

		r := restore.New(backend, repoPassword, tempDir)
		snap, err := r.Load(context.Background(), restoreSnapshot, tempDir)
		if err != nil {
			return fmt.Errorf("loading snapshot %s: %w", restoreSnapshot, err)
		}

		if restorePath != "" {
			if err := r.RestoreFile(context.Background(), snap, restorePath, restoreOut); err != nil {
				return fmt.Errorf("restoring %s: %w", restorePath, err)
			}
			fmt.Println("restored", restorePath)
			return nil
		}

		failures := r.RestoreAll(context.Background(), snap, restoreOut)
		for _, f := range failures {
			fmt.Fprintf(os.Stderr, "failed to restore %s: %v\n", f.Path, f.Err)
		}
		fmt.Printf("restored %d file(s), %d failure(s)\n", len(snap.Files)-len(failures), len(failures))
		if len(failures) > 0 {
			return fmt.Errorf("%d file(s) failed to restore", len(failures))
		}
		return nil
	},
}

func init() {
	restoreCmd.Flags().StringVar(&restoreSnapshot, "snapshot", "", "snapshot name to restore")
	restoreCmd.Flags().StringVar(&restoreOut, "out", ".", "destination directory")
	restoreCmd.Flags().StringVar(&restorePath, "path", "", "restore only this path from the snapshot (default: restore all)")
	restoreCmd.MarkFlagRequired("snapshot")
}
