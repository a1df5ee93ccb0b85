package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saifguard/saifguard/internal/taxonomy"
)

var controlsCmd = &cobra.Command{
	Use:   "controls",
	Short: "Print the SAIF control catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		tax, err := taxonomy.Load(cfg.Taxonomy.Path)
		if err != nil {
			return err
		}
		for _, c := range tax.Controls() {
			fmt.Printf("%-10s %-8s %s\n", c.ID, c.DefaultSeverity, c.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(controlsCmd)
}
