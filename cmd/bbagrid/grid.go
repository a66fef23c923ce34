package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bbagrid/bbagrid/internal/grid"
)

var (
	gridGeoJSON bool
	gridYAML    bool
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Describe or export the grid table",
	Long:  "Prints the active rows of the grid table, or exports it as GeoJSON or as a YAML table file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if gridGeoJSON && gridYAML {
			return errors.New("--geojson and --yaml are mutually exclusive")
		}

		table, err := loadTable()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case gridGeoJSON:
			b, err := table.GeoJSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(b))
			return err
		case gridYAML:
			return grid.Encode(out, table)
		}

		ext := table.Extent()
		fmt.Fprintf(out, "%s: %d rows, %d blocks\n", table.Name(), table.Rows(), table.BlockCount())
		fmt.Fprintf(out, "extent N %.6f S %.6f W %.6f E %.6f\n", ext.North, ext.South, ext.West, ext.East)
		for i, span := range table.Spans() {
			row := i + 1
			first := grid.BlockID{Row: row, Col: span.Start}
			last := grid.BlockID{Row: row, Col: span.End() - 1}
			fmt.Fprintf(out, "row %2d: %d blocks, %s..%s\n", row, span.Count, first, last)
		}
		return nil
	},
}

func init() {
	gridCmd.Flags().BoolVar(&gridGeoJSON, "geojson", false, "export the grid as a GeoJSON FeatureCollection")
	gridCmd.Flags().BoolVar(&gridYAML, "yaml", false, "export the grid as a YAML table file")
}
