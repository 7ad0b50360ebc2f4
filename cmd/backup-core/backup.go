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

	"github.com/dustin/go-humanize"
	"github.com/muesli/goprogressbar"
	"github.com/spf13/cobra"

	"github.com/knoxite-labs/backupcore/internal/engine"
	"github.com/knoxite-labs/backupcore/internal/metadata"
	"github.com/knoxite-labs/backupcore/internal/progress"
)

var (
	backupSource      string
	backupType        string
	backupRemarks     string
	backupParityParts int
	backupDataParts   int
	backupQuiet       bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Take a new snapshot of a directory tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := parseBackupType(backupType)
		if err != nil {
			return err
		}

		backend, err := dialRepo()
		if err != nil {
			return err
		}

		eng := engine.New(backend, repoPassword, engine.Options{
			ParityParts: backupParityParts,
			DataParts:   backupDataParts,
		})

		sink := progress.NewSink()
		done := make(chan struct{})
		go renderBackupProgress(sink, backupQuiet, done)

		name, summary, err := eng.Backup(context.Background(), backupSource, typ, backupRemarks, sink)
		<-done
		if err != nil {
			return err
		}

		fmt.Printf("snapshot %s: %d added, %d changed, %d unchanged, %d deleted\n",
			name, summary.Added, summary.Changed, summary.Unchanged, summary.Deleted)
		return nil
	},
}

func init() {
	backupCmd.Flags().StringVar(&backupSource, "source", "", "directory tree to back up")
	backupCmd.Flags().StringVar(&backupType, "type", "full", "full, incremental, or differential")
	backupCmd.Flags().StringVar(&backupRemarks, "remarks", "", "free-form note stored with the snapshot")
	backupCmd.Flags().IntVar(&backupParityParts, "parity", 0, "reed-solomon parity shards per chunk (0 disables)")
	backupCmd.Flags().IntVar(&backupDataParts, "data-shards", 1, "reed-solomon data shards per chunk")
	backupCmd.Flags().BoolVar(&backupQuiet, "quiet", false, "suppress the progress bar")
	backupCmd.MarkFlagRequired("source")
}

func parseBackupType(s string) (metadata.Type, error) {
	switch s {
	case "full":
		return metadata.Full, nil
	case "incremental":
		return metadata.Incremental, nil
	case "differential":
		return metadata.Differential, nil
	}
	return metadata.Full, fmt.Errorf("unknown backup type %q (want full, incremental, or differential)", s)
}

// renderBackupProgress drains sink, rendering one goprogressbar line per
// event until the engine closes it.
func renderBackupProgress(sink progress.Sink, quiet bool, done chan<- struct{}) {
	defer close(done)

	bar := &goprogressbar.ProgressBar{
		Width: 40,
	}

	for ev := range sink {
		if ev.Error != nil {
			fmt.Printf("\nerror: %s: %v\n", ev.Path, ev.Error)
			continue
		}
		if quiet {
			continue
		}

		bar.Total = int64(ev.Stats.Size + ev.Size)
		bar.Current = int64(ev.Stats.Size)
		bar.Text = fmt.Sprintf("%s (%s added, %s changed)",
			ev.Path,
			humanize.Bytes(ev.Stats.Size),
			humanize.Comma(int64(ev.Stats.FilesChanged)))
		bar.LazyPrint()
	}
	if !quiet {
		fmt.Println()
	}
}
