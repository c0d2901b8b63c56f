// Ivctl is the command-line client for the interviewd daemon.
//
// It talks to the REST API to create sessions, exchange messages with
// the interviewer personas and inspect results.
//
// Usage:
//
//	ivctl create --position "Backend Engineer" --difficulty medium
//	ivctl message <session-id> "I'd shard by tenant id."
//	ivctl end <session-id>
//	ivctl status <session-id>
//	ivctl transcript <session-id>
//	ivctl personas
//	ivctl health
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	serverURL string
)

func main() {
	root := &cobra.Command{
		Use:           "ivctl",
		Short:         "Client for the interviewd interview daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("INTERVIEWD_URL", "http://localhost:9180"),
		"interviewd base URL")

	root.AddCommand(
		newCreateCmd(),
		newMessageCmd(),
		newEndCmd(),
		newStatusCmd(),
		newTranscriptCmd(),
		newPersonasCmd(),
		newHealthCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
