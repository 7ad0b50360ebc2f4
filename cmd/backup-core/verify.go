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
	"sort"

	"github.com/spf13/cobra"

	"github.com/knoxite-labs/backupcore/internal/restore"
)

var verifySnapshot string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every file in a snapshot against its chunks without writing to the final destination",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := dialRepo()
		if err != nil {
			return err
		}

		tempDir, err := os.MkdirTemp("", "backupcore-verify-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tempDir)

		scratch, err := os.MkdirTemp("", "backupcore-verify-scratch-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(scratch)

		r := restore.New(backend, repoPassword, tempDir)
		snap, err := r.Load(context.Background(), verifySnapshot, tempDir)
		if err != nil {
			return fmt.Errorf("loading snapshot %s: %w", verifySnapshot, err)
		}

		paths := make([]string, 0, len(snap.Files))
		for path := range snap.Files {
			paths = append(paths, path)
		}
		sort.Strings(paths)

		var corrupt, failed int
		for _, path := range paths {
			status := r.VerifyFile(context.Background(), snap, path, scratch)
			if status != restore.Success {
				fmt.Printf("%s: %s\n", path, status)
			}
			switch status {
			case restore.Corrupt:
				corrupt++
			case restore.Failed:
				failed++
			}
		}

		fmt.Printf("verified %d file(s): %d corrupt, %d failed\n", len(paths), corrupt, failed)
		if corrupt > 0 || failed > 0 {
			return fmt.Errorf("verification found %d corrupt and %d failed file(s)", corrupt, failed)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifySnapshot, "snapshot", "", "snapshot name to verify")
	verifyCmd.MarkFlagRequired("snapshot")
}
