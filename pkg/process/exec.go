// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

// Package process sets up command execution, configuration and logging
// shared by every soyuz binary.
package process

import (
	"flag"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Execute runs a *cobra.Command with process-wide configuration: flags
// can come from the command line, the environment with a SOYUZ_ prefix,
// or an optional config file.
func Execute(cmd *cobra.Command) {
	cfgFile := flag.String("config", "", "config file")

	// Pick up the go-flags registered by this package, the config file
	// path and the log.* flags, so every subcommand accepts them.
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	cobra.OnInitialize(func() {
		Must(viper.BindPFlags(cmd.Flags()))
		viper.SetEnvPrefix("soyuz")
		viper.AutomaticEnv()
		if *cfgFile != "" {
			viper.SetConfigFile(*cfgFile)
			Must(viper.ReadInConfig())
		}
	})

	Must(cmd.Execute())
}

// Must exits the process on error. Only configuration and framework
// errors end up here; per-item publishing failures are logged and
// counted instead.
func Must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
