package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/weft-labs/weft/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("weft version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine status",
	RunE: func(cmd *cobra.Command, args []string) error {
		printHeader("weft status")
		fmt.Printf("Version: %s\n", version)

		path, err := config.ConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			fmt.Println("Config:  ✓ Found (" + path + ")")
		} else {
			fmt.Println("Config:  ✗ Not found (defaults in effect)")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Printf("Home:    %s\n", cfg.Paths.Home)
		fmt.Printf("Log dir: %s\n", cfg.Paths.LogDir)
		fmt.Printf("Cache:   %s\n", cfg.Paths.CachePath)

		if id, err := config.DeviceID(cfg.Paths.Home); err == nil {
			fmt.Printf("Device:  %s\n", id)
		}
		return nil
	},
}
