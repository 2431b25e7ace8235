// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fieldthebern/groundgame/canvass"
	"github.com/spf13/cobra"
)

var eligibleCmd = &cobra.Command{
	Use:   "eligible [file]",
	Short: "Check whether an address payload may be canvassed now",
	Long: `Reads an address JSON payload from file, or stdin when no file or "-" is
given, and applies the 24 hour revisit rule.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()

		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening payload: %w", err)
			}
			defer f.Close()

			in = f
		}

		payload, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("reading payload: %w", err)
		}

		addr, err := canvass.ParseAddress(nil, payload)
		if err != nil {
			return err
		}

		e := canvass.CheckEligibility(addr, time.Now())
		if !e.Allowed {
			return printRejection(cmd.ErrOrStderr(), e.Err())
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s can be canvassed (%s)\n", titleOrUnknown(addr), addr.Subtitle())

		return nil
	},
}

func titleOrUnknown(a canvass.Address) string {
	if t := a.Title(); t != "" {
		return t
	}

	return "address"
}

func init() {
	rootCmd.AddCommand(eligibleCmd)
}
