package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/VanDung-dev/ArrowRow-Engine/api"
	"github.com/VanDung-dev/ArrowRow-Engine/data"
	"github.com/VanDung-dev/ArrowRow-Engine/deserializer"
	"github.com/VanDung-dev/ArrowRow-Engine/engine"
	"github.com/VanDung-dev/ArrowRow-Engine/network"
)

var logger = log.New()

func execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "arrowrow",
		Short:         "Arrow IPC to row deserialization engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("log-level") {
				return nil
			}
			level, err := log.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			setLogLevel(level)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newDecodeCmd())
	rootCmd.AddCommand(newSchemaCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func setLogLevel(level log.Level) {
	logger.SetLevel(level)
	api.SetLogLevel(level)
	data.SetLogLevel(level)
	deserializer.SetLogLevel(level)
	engine.SetLogLevel(level)
	network.SetLogLevel(level)
}
