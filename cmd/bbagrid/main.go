// Command bbagrid locates positions in the LA-BBA grid and runs the
// device-side tracking agent.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bbagrid/bbagrid/internal/config"
	"github.com/bbagrid/bbagrid/internal/grid"
	"github.com/bbagrid/bbagrid/internal/locator"
)

// Version is set at compile time via ldflags.
var Version = "dev"

var (
	cfg        *config.Config
	logger     zerolog.Logger
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "bbagrid",
	Short: "Locate GPS positions in the LA-BBA survey grid",
	Long: "Maps GPS coordinates onto the LA-BBA grid, reports the block, the distance to its " +
		"edges and the nearest neighbour, and tracks a device against the bbagrid API.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = c

		l, err := config.NewLogger(cfg.Log, cmd.ErrOrStderr(), "bbagrid", Version)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default bbagrid.yaml in . or /etc/bbagrid)")
	rootCmd.AddCommand(locateCmd, gridCmd, trackCmd)
}

// loadTable returns the configured grid table.
func loadTable() (*grid.Table, error) {
	if cfg.Grid.File == "" {
		return grid.Default(), nil
	}
	return grid.LoadFile(cfg.Grid.File)
}

// newLocator builds a stateless locator for local lookups.
func newLocator() (*locator.Service, error) {
	table, err := loadTable()
	if err != nil {
		return nil, err
	}
	return locator.NewService(locator.ServiceConfig{
		Table:  table,
		Policy: cfg.Poll,
		Logger: logger,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
