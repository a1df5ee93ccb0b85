package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saifguard/saifguard/internal/report"
)

var (
	reconcileSession string
	reconcilePublish bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a session's claims and print the discrepancy report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAgent(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		set, err := env.Manager.Discrepancies(ctx, reconcileSession)
		if err != nil {
			return err
		}
		fmt.Println(report.RenderMarkdown(set))

		if reconcilePublish {
			id, err := env.Sink.Publish(ctx, reconcileSession, set)
			if err != nil {
				return err
			}
			fmt.Printf("published as message %s\n", id)
		}
		return nil
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileSession, "session", "cli", "session id")
	reconcileCmd.Flags().BoolVar(&reconcilePublish, "publish", false, "publish the set to the configured sink")
	rootCmd.AddCommand(reconcileCmd)
}
