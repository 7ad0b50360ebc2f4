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
	"time"

	"github.com/muesli/gotable"
	"github.com/spf13/cobra"

	"github.com/knoxite-labs/backupcore/internal/engine"
	"github.com/knoxite-labs/backupcore/internal/metadata"
	"github.com/knoxite-labs/backupcore/internal/repository"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the snapshots stored in a repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := dialRepo()
		if err != nil {
			return err
		}

		names, err := engine.ListSnapshots(context.Background(), backend)
		if err != nil {
			return err
		}

		tempDir, err := os.MkdirTemp("", "backupcore-list-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tempDir)

		tab := gotable.NewTable(
			[]string{"Snapshot", "Type", "Timestamp", "Files", "Remarks"},
			[]int64{-20, -13, -20, 8, -30},
			"no snapshots found")

		for _, name := range names {
			snap, err := loadSnapshotForDisplay(backend, name, tempDir)
			if err != nil {
				tab.AppendRow([]interface{}{name, "?", "?", "?", fmt.Sprintf("decode error: %v", err)})
				continue
			}
			tab.AppendRow([]interface{}{
				name,
				backupTypeString(snap.Type),
				time.Unix(snap.Timestamp, 0).Format(time.RFC3339),
				len(snap.Files),
				snap.Remarks,
			})
		}
		tab.Print()
		return nil
	},
}

func loadSnapshotForDisplay(backend repository.Backend, name, tempDir string) (metadata.Snapshot, error) {
	local := tempDir + "/" + name
	if err := backend.DownloadFile(context.Background(), "backup/"+name, local); err != nil {
		return metadata.Snapshot{}, err
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return metadata.Snapshot{}, err
	}
	return metadata.Decode(data, repoPassword)
}

func backupTypeString(t metadata.Type) string {
	switch t {
	case metadata.Full:
		return "full"
	case metadata.Incremental:
		return "incremental"
	case metadata.Differential:
		return "differential"
	}
	return "unknown"
}
