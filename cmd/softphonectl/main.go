package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sebas/softphone/internal/client"
)

// Shared CLI flags
var (
	apiAddr string
	timeout time.Duration
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "softphonectl",
		Short:         "Control a running softphone daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultAddr := os.Getenv("SOFTPHONE_API")
	if defaultAddr == "" {
		defaultAddr = "http://127.0.0.1:8080"
	}
	root.PersistentFlags().StringVar(&apiAddr, "api", defaultAddr, "softphone control API base URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(statusCmd())
	root.AddCommand(callCmd())
	root.AddCommand(hangupCmd())
	root.AddCommand(muteCmd())
	root.AddCommand(speakerCmd())
	root.AddCommand(dtmfCmd())
	root.AddCommand(recordCmd())
	root.AddCommand(watchCmd())
	root.AddCommand(numbersCmd())
	root.AddCommand(prefsCmd())
	return root
}

func newClient() *client.Client {
	return client.NewClient(apiAddr)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
