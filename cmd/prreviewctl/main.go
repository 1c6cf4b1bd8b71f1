package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var serverAddr string

	rootCmd := &cobra.Command{
		Use:           "prreviewctl",
		Short:         "Submit pull requests for review and poll their results",
		SilenceUsage: true,
	}

	defaultAddr := os.Getenv("PRREVIEW_SERVER")
	if defaultAddr == "" {
		defaultAddr = "http://127.0.0.1:8000"
	}
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultAddr, "review service address")

	client := func() *apiClient { return newAPIClient(serverAddr) }

	rootCmd.AddCommand(submitCmd(client))
	rootCmd.AddCommand(statusCmd(client))
	rootCmd.AddCommand(resultCmd(client))
	rootCmd.AddCommand(waitCmd(client))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
