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
	compareFrom string
	compareTo   string
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare two snapshots and summarize added/changed/unchanged/deleted files",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := dialRepo()
		if err != nil {
			return err
		}

		tempDir, err := os.MkdirTemp("", "backupcore-compare-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tempDir)

		r := restore.New(backend, repoPassword, tempDir)
		a, err := r.Load(context.Background(), compareFrom, tempDir)
		if err != nil {
			return fmt.Errorf("loading %s: %w", compareFrom, err)
		}
		b, err := r.Load(context.Background(), compareTo, tempDir)
		if err != nil {
			return fmt.Errorf("loading %s: %w", compareTo, err)
		}

		result := restore.CompareBackups(a, b)
		fmt.Printf("%s -> %s: %d added, %d changed, %d unchanged, %d deleted\n",
			compareFrom, compareTo, result.Added, result.Changed, result.Unchanged, result.Deleted)
		return nil
	},
}

func init() {
	compareCmd.Flags().StringVar(&compareFrom, "from", "", "older snapshot name")
	compareCmd.Flags().StringVar(&compareTo, "to", "", "newer snapshot name")
	compareCmd.MarkFlagRequired("from")
	compareCmd.MarkFlagRequired("to")
}
