/*
 * knoxite
 *     Copyright (c) 2016-2017, Christian Muehlhaeuser <muesli@gmail.com>
 *
 *   For license see LICENSE
 */

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knoxite-labs/backupcore/internal/engine"
)

var repoName string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new, empty repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := dialRepo()
		if err != nil {
			return err
		}

		exists, err := backend.Exists(context.Background())
		if err != nil {
			return err
		}
		if exists {
			return errors.New("repository already initialized")
		}

		if err := engine.Initialize(context.Background(), backend, repoName, repoAddr, repoPassword); err != nil {
			if errors.Is(err, engine.ErrWeakPassword) {
				return fmt.Errorf("%w (pass a stronger --password)", err)
			}
			return err
		}
		fmt.Println("repository initialized:", repoAddr)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&repoName, "name", "repo", "repository name recorded in config.json")
}
