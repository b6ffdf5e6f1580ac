package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/madzarm/ccsearch/internal/config"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfig,
	}
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfgMgr, err := config.NewManager()
	if err != nil {
		return err
	}
	cfg, err := cfgMgr.Load()
	if err != nil {
		return err
	}

	fmt.Printf("Config file: %s\n\n", cfgMgr.ConfigPath())
	if err := toml.NewEncoder(os.Stdout).Encode(cfg); err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	if !cfgMgr.Exists() {
		fmt.Fprintf(os.Stderr, "\nNo config file found; creating default at %s\n", cfgMgr.ConfigPath())
		if err := cfgMgr.Save(cfg); err != nil {
			return err
		}
	}
	return nil
}
