package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saifguard/saifguard/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP agent server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAgent(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		go env.Manager.RunJanitor(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := server.New(env.Manager, env.Taxonomy, env.Sink, server.Options{
			Port:           port,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
