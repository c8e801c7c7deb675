// Command securekit is the operator CLI for the client security subsystem.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version = "dev"

	// Flags
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:          "securekit",
	Short:        "Client security toolkit",
	Long:         "securekit inspects device trust, migrates legacy preferences into sealed storage, and drains the local audit queue.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "securekit.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "debug logging")
}

func newLogger() *zap.Logger {
	if flagVerbose {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}

func main() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
