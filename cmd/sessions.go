package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List live sessions and their states",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initAgent(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		infos := env.Manager.List()
		if len(infos) == 0 {
			fmt.Println("no live sessions")
			return nil
		}
		for _, info := range infos {
			fmt.Printf("%-24s %-20s last active %s\n", info.ID, info.State, info.LastActiveAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}
