package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// healthStatus is the body of GET /healthz.
type healthStatus struct {
	Status string `json:"status"`
	Leader bool   `json:"leader"`
}

// newHealthCmd exits non-zero unless the server answers /healthz with 2xx,
// so it also serves as a container health probe.
func newHealthCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var h healthStatus
			if err := newClient(opts).getJSON("/healthz", &h); err != nil {
				return fmt.Errorf("healthcheck failed: %w", err)
			}
			out := cmd.OutOrStdout()
			if structured(opts.output) {
				return printOutput(out, opts.output, h)
			}
			role := "follower"
			if h.Leader {
				role = "leader"
			}
			fmt.Fprintf(out, "Server: %s (%s)\n", h.Status, role)
			return nil
		},
	}
}
