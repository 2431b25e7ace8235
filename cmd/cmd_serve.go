// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/fieldthebern/groundgame/canvass"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local canvass JSON API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.Log.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}

		resolver, err := newResolver(cmd.Context())
		if err != nil {
			return err
		}

		db, repo, err := openRepository()
		if err != nil {
			return err
		}
		defer db.Close()

		if seedFile != "" {
			seeded, n, err := canvass.SeedIfEmpty(repo, seedFile)
			if err != nil {
				return fmt.Errorf("seeding from %s: %w", filepath.Base(seedFile), err)
			}

			zap.L().Info("address store ready", zap.Bool("seeded", seeded), zap.Int("addresses", n))
		}

		submitter := canvass.NewSubmitter(resolver, newAddressService(),
			canvass.WithSubmitterLogger(zap.L().Named("submit")),
		)

		server := canvass.NewServer(resolver, submitter, repo,
			canvass.WithServerLogger(zap.L().Named("server")),
		)

		return server.Run(cfg.Server.Addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "localhost:8080", "listen address")
	serveCmd.Flags().StringVar(&seedFile, "seed", "", "JSON seed file imported when the store is empty")
	mustBindFlag(serveCmd, "server.addr", "addr")

	rootCmd.AddCommand(serveCmd)
}
