// Package main is the e-commerce service binary: the local stack behind one
// HTTP server, or one of the Lambda functions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ecommerce-service/internal/config"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
)

var Version = "dev"

func main() {
	cfg := config.Load()
	rootCmd := &cobra.Command{
		Use:           "ecommerce",
		Short:         "Orders and products backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			obs.InitLogger(cfg.LogLevel)
		},
	}

	rootCmd.AddCommand(serveCmd(&cfg))
	rootCmd.AddCommand(lambdaCmd(&cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
