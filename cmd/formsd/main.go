package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/joaodesousa/outplay-forms/config"
	"github.com/joaodesousa/outplay-forms/internal/server"
)

func main() {
	root := &cobra.Command{Use: "formsd", Short: "OUTPLAY website forms API"}
	root.AddCommand(serveCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCMD() *cobra.Command {
	var addr string
	var cfgPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			return server.Run(cfg, addr)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	serve.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")
	return serve
}
