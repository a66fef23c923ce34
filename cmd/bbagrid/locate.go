package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bbagrid/bbagrid/internal/poll"
)

var (
	locateLat  float64
	locateLon  float64
	locateMode string
	locateJSON bool
)

// locateOutput is the --json rendering of a lookup.
type locateOutput struct {
	Lat               float64  `json:"lat"`
	Lon               float64  `json:"lon"`
	InGrid            bool     `json:"inGrid"`
	Block             string   `json:"block,omitempty"`
	NearestBoundaryM  *float64 `json:"nearestBoundaryM,omitempty"`
	FractionX         *float64 `json:"fractionX,omitempty"`
	FractionY         *float64 `json:"fractionY,omitempty"`
	Summary           string   `json:"summary"`
	IntervalSeconds   float64  `json:"intervalSeconds"`
	MinDistanceChange float64  `json:"minDistanceChangeM"`
}

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Show the grid block for a position",
	Long:  "Prints the block containing --lat/--lon, the nearest neighbours and the recommended poll interval.",
	Example: "  bbagrid locate --lat 35.87 --lon -106.33\n" +
		"  bbagrid locate --lat 35.87 --lon -106.33 --mode BACKGROUND --json",
	RunE: func(cmd *cobra.Command, _ []string) error {
		mode, err := poll.ParseMode(locateMode)
		if err != nil {
			return err
		}

		svc, err := newLocator()
		if err != nil {
			return err
		}

		report, err := svc.Locate(cmd.Context(), locateLat, locateLon, mode)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !locateJSON {
			fmt.Fprintln(out, report.Summary)
			fmt.Fprintf(out, "\nnext fix in %s or after %.0fm\n",
				report.Advice.Interval, report.Advice.MinDistanceChange)
			return nil
		}

		res := locateOutput{
			Lat:               report.Lat,
			Lon:               report.Lon,
			InGrid:            report.InGrid,
			Summary:           report.Summary,
			IntervalSeconds:   report.Advice.Interval.Seconds(),
			MinDistanceChange: report.Advice.MinDistanceChange,
		}
		if report.InGrid {
			d := report.NearestBoundary()
			fx, fy := report.FractionX, report.FractionY
			res.Block = report.Block.ID.String()
			res.NearestBoundaryM = &d
			res.FractionX = &fx
			res.FractionY = &fy
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	locateCmd.Flags().Float64Var(&locateLat, "lat", 0, "latitude in degrees")
	locateCmd.Flags().Float64Var(&locateLon, "lon", 0, "longitude in degrees")
	locateCmd.Flags().StringVar(&locateMode, "mode", string(poll.ModeForeground), "poll mode (FOREGROUND or BACKGROUND)")
	locateCmd.Flags().BoolVar(&locateJSON, "json", false, "print JSON instead of text")
	_ = locateCmd.MarkFlagRequired("lat")
	_ = locateCmd.MarkFlagRequired("lon")
}
