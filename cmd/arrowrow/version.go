package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/VanDung-dev/ArrowRow-Engine/api"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the engine version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "arrowrow version %s\n", api.Version)
			return nil
		},
	}
}
