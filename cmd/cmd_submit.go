// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fieldthebern/groundgame/canvass"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var submitOptions struct {
	locationFlags
	unit, city, state string
	store             bool
}

var submitCmd = &cobra.Command{
	Use:     "submit <street>",
	Aliases: []string{"lookup"},
	Short:   "Resolve an address, look it up remotely and check it can be canvassed",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location, err := submitOptions.location()
		if err != nil {
			return err
		}

		resolver, err := newResolver(cmd.Context())
		if err != nil {
			return err
		}

		submitter := canvass.NewSubmitter(resolver, newAddressService(),
			canvass.WithSubmitterLogger(zap.L().Named("submit")),
		)

		street := strings.Join(args, " ")
		zap.L().Debug("submitting", zap.String("address", canvass.ComposeAddressLine(street, submitOptions.unit)))

		outcome, err := submitter.Submit(cmd.Context(), canvass.SubmitRequest{
			Street:           street,
			Unit:             submitOptions.unit,
			City:             submitOptions.city,
			State:            submitOptions.state,
			UserLocation:     location,
			PreviousLocation: submitOptions.previous(cmd),
		})
		if err != nil {
			return printRejection(os.Stderr, err)
		}

		if submitOptions.store {
			db, repo, err := openRepository()
			if err != nil {
				return err
			}
			defer db.Close()

			stored, err := repo.Save(outcome.Address)
			if err != nil {
				return fmt.Errorf("storing address: %w", err)
			}

			zap.L().Info("address stored", zap.String("key", stored.Key))
		}

		return printJSON(os.Stdout, outcome)
	},
}

func init() {
	submitOptions.register(submitCmd)
	submitOptions.registerPrevious(submitCmd)
	submitCmd.Flags().StringVar(&submitOptions.unit, "unit", "", "apartment or unit")
	submitCmd.Flags().StringVar(&submitOptions.city, "city", "", "city of the canvasser's position")
	submitCmd.Flags().StringVar(&submitOptions.state, "state", "", "state code of the canvasser's position")
	submitCmd.Flags().BoolVar(&submitOptions.store, "store", false, "keep the address in the local store")

	rootCmd.AddCommand(submitCmd)
}
