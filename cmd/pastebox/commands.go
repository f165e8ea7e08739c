package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"secure-pastebox/internal/client"
	"secure-pastebox/internal/keys"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newSaveCmd(root *rootOptions) *cobra.Command {
	var (
		key        string
		expiration string
		never      bool
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a key and print its identifier",
		Long: `Saves a key on the server and prints the identifier needed to take it.

--expiration accepts TimeSpan text ("7.00:00:00", "00:05:00") or a Go
duration ("90s", "1h"). Without it the server default applies.

Use "-" as the key to read it from standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if never && expiration != "" {
				return errors.New("--expiration and --never cannot be combined")
			}

			if key == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read key from stdin: %w", err)
				}
				key = strings.TrimRight(string(raw), "\r\n")
			}

			exp := keys.UseDefault()
			switch {
			case never:
				exp = keys.Never()
			case expiration != "":
				parsed, err := keys.ParseExpiration(expiration)
				if err != nil {
					return err
				}
				exp = parsed
			}

			id, err := root.client().SaveKey(cmd.Context(), key, exp)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, id)
			fmt.Fprintln(cmd.ErrOrStderr(), color.GreenString("✓")+" Saved. Expires: "+color.YellowString(describe(exp)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&key, "key", "k", "", "key to save (\"-\" reads standard input)")
	cmd.Flags().StringVarP(&expiration, "expiration", "e", "", "lifetime of the key")
	cmd.Flags().BoolVar(&never, "never", false, "key never expires")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func describe(exp keys.Expiration) string {
	switch {
	case exp.IsDefault():
		return "server default"
	case exp.IsNever():
		return "never"
	default:
		return "after " + exp.String()
	}
}

func newTakeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "take ID",
		Short: "Retrieve a key and destroy it on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := root.client().TakeKey(cmd.Context(), args[0])
			switch {
			case errors.Is(err, client.ErrNotFound):
				return fmt.Errorf("key %s not found, expired or already retrieved", args[0])
			case errors.Is(err, client.ErrRateLimited):
				return errors.New("too many retrievals, wait a few seconds and retry")
			case err != nil:
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newHealthCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := root.client().Health(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓")+" "+status+" "+color.CyanString(root.server))
			return nil
		},
	}
}
