// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fieldthebern/groundgame/canvass"
	"github.com/fieldthebern/groundgame/spatial"
	"github.com/spf13/cobra"
)

type locationFlags struct {
	lat, lng         float64
	prevLat, prevLng float64
}

func (f *locationFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "canvasser latitude")
	cmd.Flags().Float64Var(&f.lng, "lng", 0, "canvasser longitude")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
}

func (f *locationFlags) registerPrevious(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.prevLat, "prev-lat", 0, "previous canvasser latitude")
	cmd.Flags().Float64Var(&f.prevLng, "prev-lng", 0, "previous canvasser longitude")
}

func (f *locationFlags) location() (spatial.Point, error) {
	p := spatial.NewPoint(f.lat, f.lng)
	if !p.Valid() {
		return p, fmt.Errorf("location %s is out of range", p)
	}

	return p, nil
}

func (f *locationFlags) previous(cmd *cobra.Command) *spatial.Point {
	if !cmd.Flags().Changed("prev-lat") || !cmd.Flags().Changed("prev-lng") {
		return nil
	}

	p := spatial.NewPoint(f.prevLat, f.prevLng)

	return &p
}

var resolveOptions struct {
	locationFlags
	city, state string
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <street>",
	Short: "Resolve a street address near the canvasser",
	Long: `Geocodes the street together with the city and state and accepts the
first candidate if it lies within geocoder.filter_radius_meters of the
canvasser.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location, err := resolveOptions.location()
		if err != nil {
			return err
		}

		resolver, err := newResolver(cmd.Context())
		if err != nil {
			return err
		}

		res, err := resolver.Resolve(cmd.Context(), canvass.ResolveRequest{
			Street:           strings.Join(args, " "),
			City:             resolveOptions.city,
			State:            resolveOptions.state,
			UserLocation:     location,
			PreviousLocation: resolveOptions.previous(cmd),
		})
		if err != nil {
			return printRejection(os.Stderr, err)
		}

		return printJSON(os.Stdout, res)
	},
}

var reverseOptions locationFlags

var reverseCmd = &cobra.Command{
	Use:   "reverse",
	Short: "Show the street, city and state at the canvasser's position",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		location, err := reverseOptions.location()
		if err != nil {
			return err
		}

		resolver, err := newResolver(cmd.Context())
		if err != nil {
			return err
		}

		pm, err := resolver.ReverseResolve(cmd.Context(), location)
		if err != nil {
			return printRejection(os.Stderr, err)
		}

		if line := pm.StreetLine(); line != "" {
			fmt.Println(line)
		}

		fmt.Println(strings.TrimSpace(pm.Locality + " " + pm.AdministrativeArea + " " + pm.PostalCode))

		return nil
	},
}

func init() {
	resolveOptions.register(resolveCmd)
	resolveOptions.registerPrevious(resolveCmd)
	resolveCmd.Flags().StringVar(&resolveOptions.city, "city", "", "city of the canvasser's position")
	resolveCmd.Flags().StringVar(&resolveOptions.state, "state", "", "state code of the canvasser's position")

	reverseOptions.register(reverseCmd)

	rootCmd.AddCommand(resolveCmd, reverseCmd)
}
