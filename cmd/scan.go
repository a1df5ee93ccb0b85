package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var scanSession string

var scanCmd = &cobra.Command{
	Use:   "scan <project-id>",
	Short: "Extract deployment claims from a project's resource inventory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAgent(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Manager.Handle(ctx, scanSession, "scan project "+args[0], nil)
		if err != nil {
			return err
		}
		printResponse(resp)
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanSession, "session", "cli", "session id")
	rootCmd.AddCommand(scanCmd)
}
