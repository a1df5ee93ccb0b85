package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saifguard/saifguard/internal/model"
)

var analyzeSession string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <path-or-url>",
	Short: "Extract design claims from a document or diagram",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAgent(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Manager.Handle(ctx, analyzeSession, "analyze "+args[0], nil)
		if err != nil {
			return err
		}
		printResponse(resp)
		return nil
	},
}

func printResponse(resp *model.AgentResponse) {
	fmt.Println(resp.Message)
	for _, a := range resp.Artifacts {
		if a.Error != "" {
			fmt.Printf("  %s: %s\n", a.Ref, a.Error)
			continue
		}
		fmt.Printf("  %s: %d claim(s)\n", a.Ref, a.ClaimCount)
	}
	if resp.Report != "" {
		fmt.Println()
		fmt.Println(resp.Report)
	}
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeSession, "session", "cli", "session id")
	rootCmd.AddCommand(analyzeCmd)
}
