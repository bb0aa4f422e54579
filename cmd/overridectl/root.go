package main

import (
	"os"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	server string
	output string
	actor  string
	groups string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "overridectl",
		Short: "CLI for the admin override API",
		Long: `overridectl drives the admin override workflow: raising overrides,
approving, rejecting, activating and revoking them, and reading the
reports and audit history kept by the override server.

The acting user is sent as X-Remote-User. It defaults to $OVERRIDE_ACTOR.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.server, "server", envOr("OVERRIDE_SERVER", "http://localhost:8080"), "Override server URL")
	pf.StringVarP(&opts.output, "output", "o", "table", "Output format: table, json, yaml")
	pf.StringVar(&opts.actor, "actor", os.Getenv("OVERRIDE_ACTOR"), "Acting user")
	pf.StringVar(&opts.groups, "groups", "", "Comma-separated groups of the acting user")

	cmd.AddCommand(
		newListCmd(opts),
		newGetCmd(opts),
		newCreateCmd(opts),
		newDeleteCmd(opts),
		newStatsCmd(opts),
		newSearchCmd(opts),
		newHistoryCmd(opts),
		newSweepCmd(opts),
		newHealthCmd(opts),
	)
	for _, a := range workflowActions {
		cmd.AddCommand(newActionCmd(opts, a))
	}
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
