package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/override"
)

// structured reports whether the output flag asks for json or yaml.
func structured(format string) bool {
	return format == "json" || format == "yaml"
}

func printOutput(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		return printJSON(w, v)
	case "yaml":
		return printYAML(w, v)
	default:
		return fmt.Errorf("unsupported output format for structured data: %s (use json or yaml)", format)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printYAML goes through JSON so keys follow the json tags.
func printYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return enc.Encode(m)
}

func printTable(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	upper := make([]string, len(headers))
	for i, h := range headers {
		upper[i] = strings.ToUpper(h)
	}
	fmt.Fprintln(tw, strings.Join(upper, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

func printOverrides(w io.Writer, items []*override.Override) {
	headers := []string{"ID", "Title", "Type", "Status", "Risk", "Priority", "Target", "Requested By", "Until"}
	rows := make([][]string, 0, len(items))
	for _, o := range items {
		rows = append(rows, []string{
			truncate(o.ID, 12),
			truncate(o.Title, 40),
			string(o.OverrideType),
			string(o.Status),
			string(o.RiskLevel),
			fmt.Sprint(o.PriorityLevel),
			o.Target.Type + "/" + o.Target.ID,
			o.RequestedBy,
			formatTime(o.EffectiveUntil),
		})
	}
	printTable(w, headers, rows)
}

func printOverride(w io.Writer, o *override.Override) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	field := func(k, v string) {
		if v != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", k, v)
		}
	}
	field("ID", o.ID)
	field("Title", o.Title)
	field("Type", string(o.OverrideType))
	field("Status", string(o.Status))
	field("Target", o.Target.Type+"/"+o.Target.ID)
	field("Risk", string(o.RiskLevel))
	field("Impact", string(o.ImpactLevel))
	field("Priority", fmt.Sprint(o.PriorityLevel))
	field("Emergency", fmt.Sprint(o.IsEmergency))
	field("Requested By", o.RequestedBy)
	field("Approved By", o.ApprovedBy)
	field("Effective From", formatTime(o.EffectiveFrom))
	field("Effective Until", formatTime(o.EffectiveUntil))
	field("Justification", o.Justification)
	field("Rejection Reason", o.RejectionReason)
	field("Revocation Reason", o.RevocationReason)
	field("Tags", strings.Join(o.Tags, ", "))
	field("Version", fmt.Sprint(o.Version))
	tw.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// truncate shortens s to max runes, appending "..." when cut.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
