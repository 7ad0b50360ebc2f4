/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

// Command backup-core is the CLI entry point around the engine/restore
// packages: argument parsing, progress rendering, and tabular output live
// here so the core packages stay free of presentation concerns.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	repoAddr     string
	repoPassword string
	sshPassword  string
)

var rootCmd = &cobra.Command{
	Use:   "backup-core",
	Short: "Deduplicating, compressing, optionally-encrypted snapshot backups",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&repoAddr, "repo", "", "repository address (file://, nfs://, sftp://, webdav://)")
	rootCmd.PersistentFlags().StringVar(&repoPassword, "password", "", "repository metadata password (empty disables encryption)")
	rootCmd.PersistentFlags().StringVar(&sshPassword, "ssh-password", "", "SSH password for sftp:// repositories")
	rootCmd.MarkPersistentFlagRequired("repo")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(verifyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "backup-core:", err)
		os.Exit(1)
	}
}
