// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fieldthebern/groundgame/canvass"
	"github.com/fieldthebern/groundgame/canvass/utils"
	"github.com/fieldthebern/groundgame/spatial"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var addressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "Manage the local address store",
}

var addressesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import addresses from a JSON seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		db, repo, err := openRepository()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := canvass.ImportFromJSON(repo, args[0])
		if err != nil {
			return err
		}

		total, err := repo.Count()
		if err != nil {
			return fmt.Errorf("counting addresses: %w", err)
		}

		fmt.Printf("Imported %s addresses (%s stored)\n", utils.FormatInt(int64(n)), utils.FormatInt(int64(total)))

		return nil
	},
}

var addressesExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export every stored address to a JSON seed file",
	Long:  `Exports the stored addresses sorted by key to minimize diffs when the file is checked into version control.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		db, repo, err := openRepository()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := canvass.ExportToJSON(repo, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Exported %s addresses to %s\n", utils.FormatInt(int64(n)), args[0])

		return nil
	},
}

var listOptions struct {
	result   string
	lat, lng float64
	res      int
	limit    int
	offset   int
	asJSON   bool
}

var addressesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored addresses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		filter := canvass.AddressFilter{Limit: listOptions.limit, Offset: listOptions.offset}

		if listOptions.result != "" {
			r := canvass.ParseVisitResult(listOptions.result)
			if r.String() != listOptions.result {
				return fmt.Errorf("unknown result %q", listOptions.result)
			}

			filter.Result = &r
		}

		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
			cell, err := spatial.NewPoint(listOptions.lat, listOptions.lng).Cell(listOptions.res)
			if err != nil {
				return err
			}

			filter.Cell = cell
		}

		db, repo, err := openRepository()
		if err != nil {
			return err
		}
		defer db.Close()

		stored, err := repo.List(filter)
		if err != nil {
			return fmt.Errorf("listing addresses: %w", err)
		}

		if listOptions.asJSON {
			views := make([]canvass.AddressView, 0, len(stored))
			for _, s := range stored {
				views = append(views, canvass.NewAddressView(s))
			}

			return printJSON(os.Stdout, views)
		}

		a, b, c := strings.Repeat("─", 40), strings.Repeat("─", 16), strings.Repeat("─", 10)
		fmt.Printf("╭─%-40s─┬─%-16s─┬─%-10s─╮\n", a, b, c)
		fmt.Printf("│ %-40s │ %-16s │ %-10s │\n", "Address", "Result", "Marker")
		fmt.Printf("├─%-40s─┼─%-16s─┼─%-10s─┤\n", a, b, c)

		for _, s := range stored {
			fmt.Printf("│ %-40.40s │ %-16.16s │ %-10s │\n", s.Address.Title(), s.Address.Subtitle(), s.Address.MarkerCategory())
		}

		fmt.Printf("╰─%-40s─┴─%-16s─┴─%-10s─╯\n", a, b, c)
		fmt.Printf("%s addresses\n", utils.FormatInt(int64(len(stored))))

		return nil
	},
}

var backfillConcurrency int

var addressesBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Reverse geocode stored addresses missing city, state or zip",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		geocoder, err := newGeocoder(cmd.Context())
		if err != nil {
			return err
		}

		db, repo, err := openRepository()
		if err != nil {
			return err
		}
		defer db.Close()

		var bar *progressbar.ProgressBar

		progress := func() {}
		if isatty.IsTerminal(os.Stderr.Fd()) {
			bar = progressbar.NewOptions(-1,
				progressbar.OptionSetDescription("Backfilling placemarks"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
			progress = func() { _ = bar.Add(1) }
		}

		stats, err := canvass.BackfillPlacemarks(cmd.Context(), repo, geocoder, backfillConcurrency, progress, zap.L().Named("backfill"))

		if bar != nil {
			_ = bar.Finish()
		}

		if err != nil {
			return err
		}

		zap.L().Info("backfill complete",
			zap.Int("candidates", stats.Candidates),
			zap.Int("updated", stats.Updated),
			zap.Int("failed", stats.Failed),
			zap.Int("collisions", stats.Collisions),
			zap.Bool("quota_exceeded", stats.QuotaExceeded),
		)

		if stats.QuotaExceeded {
			fmt.Fprintln(os.Stderr, "Geocoder quota exceeded, run backfill again later to finish")
		}

		fmt.Printf("Updated %s of %s addresses (%s failed)\n",
			utils.FormatInt(int64(stats.Updated)),
			utils.FormatInt(int64(stats.Candidates)),
			utils.FormatInt(int64(stats.Failed)),
		)

		return nil
	},
}

func init() {
	lf := addressesListCmd.Flags()
	lf.StringVar(&listOptions.result, "result", "", "only addresses with this visit result")
	lf.Float64Var(&listOptions.lat, "lat", 0, "only addresses in the H3 cell of this latitude")
	lf.Float64Var(&listOptions.lng, "lng", 0, "only addresses in the H3 cell of this longitude")
	lf.IntVar(&listOptions.res, "res", 9, "H3 resolution of the cell filter (7-10)")
	lf.IntVar(&listOptions.limit, "limit", 0, "maximum number of addresses")
	lf.IntVar(&listOptions.offset, "offset", 0, "addresses to skip")
	lf.BoolVar(&listOptions.asJSON, "json", false, "print JSON instead of a table")

	addressesBackfillCmd.Flags().IntVar(&backfillConcurrency, "concurrency", canvass.DefaultBackfillConcurrency, "concurrent reverse geocodes")

	addressesCmd.AddCommand(addressesImportCmd, addressesExportCmd, addressesListCmd, addressesBackfillCmd)
	rootCmd.AddCommand(addressesCmd)
}
