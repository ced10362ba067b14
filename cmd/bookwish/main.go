// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autobrr/bookwish/internal/buildinfo"
	"github.com/autobrr/bookwish/internal/config"
)

func main() {
	config.InitDefaultLogger()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "bookwish",
		Short: "Find and download requested audiobooks through Prowlarr",
		Long: `bookwish looks up sources for requested audiobooks on Prowlarr,
ranks them and hands the best one to your download client.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		RunServeCommand(),
		RunVersionCommand(),
		RunGenerateConfigCommand(),
		RunSourcesCommand(),
		RunSetProwlarrCommand(),
	)

	return root
}

func RunVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version, commit and build date",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(buildinfo.Version)
			if buildinfo.Commit != "" {
				cmd.Printf("commit: %s\n", buildinfo.Commit)
			}
			if buildinfo.Date != "" {
				cmd.Printf("built: %s\n", buildinfo.Date)
			}
		},
	}
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Write a default config.toml without starting the server",
		Long: `Write a default config.toml with a freshly generated session secret.
An existing file is never overwritten.

Without --config-dir the OS default location is used:
  Linux/macOS: ~/.config/bookwish/config.toml
  Windows:     %APPDATA%\bookwish\config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ResolveConfigFile(configDir)

			if _, err := os.Stat(path); err == nil {
				cmd.Printf("Config already exists at %s, leaving it untouched\n", path)
				return nil
			}

			if err := config.WriteDefaultConfig(path); err != nil {
				return err
			}

			cmd.Printf("Config written to %s\n", path)
			return nil
		},
	}

	addConfigDirFlag(command, &configDir)

	return command
}

func addConfigDirFlag(command *cobra.Command, configDir *string) {
	command.Flags().StringVar(configDir, "config-dir", "", "config directory or config.toml path (defaults to the OS-specific location)")
}

func addDataDirFlag(command *cobra.Command, dataDir *string) {
	command.Flags().StringVar(dataDir, "data-dir", "", "directory holding bookwish.db (defaults to the config directory)")
}
