// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/passline/passline/internal/config"
	"github.com/passline/passline/internal/xdg"
)

// NewRootCmd creates the root command for the Passline CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passline",
		Short: "Passline - account and session service",
		Long: `Passline registers accounts, verifies email ownership, issues
access and refresh tokens, and handles password resets.

Options come from built-in defaults, an optional YAML file (--config),
environment variables (JWT_SECRET, DATABASE_URL, ...) and flags, in
increasing order of precedence. Without --config the file
$XDG_CONFIG_HOME/passline/config.yaml is read when it exists.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewWorkerCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads the configuration visible to cmd. With partial set the
// result is not validated.
func loadConfig(cmd *cobra.Command, partial bool) (*config.Config, error) {
	file, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if file == "" {
		if file, err = xdg.DefaultConfigFile(); err != nil {
			return nil, err
		}
	}
	return config.Load(config.Options{
		File:    file,
		Flags:   cmd.Flags(),
		Partial: partial,
	})
}
