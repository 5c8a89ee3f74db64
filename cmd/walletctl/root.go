package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"IntentWallet/internal/app"
	"IntentWallet/internal/config"

	"github.com/spf13/cobra"
)

type cli struct {
	configPath string
	app        *app.App
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "walletctl",
		Short:         "Operator CLI for agent wallets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.app, err = app.Build(cmd.Context(), cfg)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", defaultConfigPath(), "path to walletd.json")

	root.AddCommand(
		c.provisionCommand(),
		c.setTokenLimitCommand(),
		c.showCommand(),
		c.exportKeyCommand(),
		c.chainsCommand(),
		c.sendCommand(),
	)
	return root
}

func defaultConfigPath() string {
	if path := os.Getenv("WALLETD_CONFIG"); path != "" {
		return path
	}
	return filepath.Join("configs", "walletd.json")
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
