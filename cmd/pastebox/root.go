package main

import (
	"os"
	"time"

	"secure-pastebox/internal/client"

	"github.com/spf13/cobra"
)

const (
	defaultServer = "http://localhost:8080"
	serverEnv     = "PASTEBOX_SERVER"
)

type rootOptions struct {
	server  string
	timeout time.Duration
}

func (o *rootOptions) client() *client.Client {
	return client.New(o.server, o.timeout)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "pastebox",
		Short: "Share a secret that can be read exactly once",
		Long: `pastebox talks to a SecurePasteBox server.

A saved key is returned exactly once: the first "take" destroys it.
Keys expire after the server's default lifetime unless --expiration
or --never is given.

Examples:
  # Save a key for five minutes
  pastebox save --key "s3cr3t" --expiration 00:05:00

  # Retrieve (and destroy) it
  pastebox take Ab3dE9xZ

  # Check the server
  pastebox health`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv(serverEnv)
	if server == "" {
		server = defaultServer
	}
	cmd.PersistentFlags().StringVarP(&opts.server, "server", "s", server, "server base URL (env "+serverEnv+")")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(newSaveCmd(opts))
	cmd.AddCommand(newTakeCmd(opts))
	cmd.AddCommand(newHealthCmd(opts))

	return cmd
}
