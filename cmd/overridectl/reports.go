package main

import (
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/audit"
	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/jobs"
	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/override"
)

func newStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show override statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var s override.Statistics
			if err := newClient(opts).getJSON(overridesPath+"/statistics", &s); err != nil {
				return fmt.Errorf("failed to get statistics: %w", err)
			}
			out := cmd.OutOrStdout()
			if structured(opts.output) {
				return printOutput(out, opts.output, s)
			}
			fmt.Fprintf(out, "Total: %d  Emergency: %d  High risk: %d\n\n", s.Total, s.Emergency, s.HighRisk)
			printCounts(out, "Status", s.ByStatus)
			fmt.Fprintln(out)
			printCounts(out, "Type", s.ByType)
			fmt.Fprintln(out)
			printCounts(out, "Risk", s.ByRiskLevel)
			return nil
		},
	}
}

func printCounts[K ~string](w io.Writer, label string, counts map[K]int) {
	keys := make([]K, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{string(k), strconv.Itoa(counts[k])})
	}
	printTable(w, []string{label, "Count"}, rows)
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var (
		pageSize  int
		pageToken string
	)
	cmd := &cobra.Command{
		Use:   "search <filter>",
		Short: "Search overrides with a filter expression",
		Example: `  overridectl search 'status = "ACTIVE" AND risk_level IN ("HIGH", "CRITICAL")'
  overridectl search 'is_emergency = true' --page-size 50`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if len(args) == 1 {
				q.Set("filter", args[0])
			}
			if pageSize > 0 {
				q.Set("pageSize", strconv.Itoa(pageSize))
			}
			if pageToken != "" {
				q.Set("pageToken", pageToken)
			}
			path := overridesPath + "/search"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var result override.OverrideList
			if err := newClient(opts).getJSON(path, &result); err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			out := cmd.OutOrStdout()
			if structured(opts.output) {
				return printOutput(out, opts.output, result)
			}
			printOverrides(out, result.Overrides)
			fmt.Fprintf(out, "Total: %d\n", result.TotalSize)
			if result.NextPageToken != "" {
				fmt.Fprintf(out, "Next page: --page-token %s\n", result.NextPageToken)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Results per page")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Token from a previous page")
	return cmd
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var pageSize int
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the audit trail of an override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("targetType", override.AuditTargetType)
			q.Set("targetId", args[0])
			if pageSize > 0 {
				q.Set("pageSize", strconv.Itoa(pageSize))
			}

			var result audit.EventList
			if err := newClient(opts).getJSON("/audit/events?"+q.Encode(), &result); err != nil {
				return fmt.Errorf("failed to get history: %w", err)
			}
			out := cmd.OutOrStdout()
			if structured(opts.output) {
				return printOutput(out, opts.output, result)
			}
			rows := make([][]string, 0, len(result.Events))
			for _, e := range result.Events {
				rows = append(rows, []string{
					e.CreatedAt,
					e.ActionType,
					e.Actor,
					metaString(e.Metadata, "from_status"),
					metaString(e.Metadata, "to_status"),
					truncate(metaString(e.Metadata, "text"), 50),
				})
			}
			printTable(out, []string{"Time", "Action", "Actor", "From", "To", "Notes"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Events per page")
	return cmd
}

func metaString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func newSweepCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overrides past their window now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var run jobs.RunStatus
			if err := newClient(opts).postJSON("/jobs/expiry/run", nil, &run); err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			out := cmd.OutOrStdout()
			if structured(opts.output) {
				return printOutput(out, opts.output, run)
			}
			fmt.Fprintf(out, "Expired %d overrides in %d batches\n", run.Expired, run.Batches)
			return nil
		},
	}
}
