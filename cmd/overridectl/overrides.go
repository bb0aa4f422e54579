package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/override"
)

const overridesPath = "/overrides"

func newListCmd(opts *globalOptions) *cobra.Command {
	var (
		status      string
		requestedBy string
		days        int
	)
	cmd := &cobra.Command{
		Use:       "list [pending|active|expiring|monitoring-overdue]",
		Short:     "List overrides",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"pending", "active", "expiring", "monitoring-overdue"},
		RunE: func(cmd *cobra.Command, args []string) error {
			view := "pending"
			if len(args) == 1 {
				view = args[0]
			}
			q := url.Values{}
			path := overridesPath + "/"
			switch view {
			case "pending":
				if status != "" {
					q.Set("status", status)
				}
				if requestedBy != "" {
					q.Set("requestedBy", requestedBy)
				}
			case "active":
				path = overridesPath + "/active"
			case "expiring":
				path = overridesPath + "/expiring"
				if days > 0 {
					q.Set("days", fmt.Sprint(days))
				}
			case "monitoring-overdue":
				path = overridesPath + "/monitoring-overdue"
			default:
				return fmt.Errorf("unknown list view %q", view)
			}
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var result override.OverrideList
			if err := newClient(opts).getJSON(path, &result); err != nil {
				return fmt.Errorf("failed to list overrides: %w", err)
			}
			out := cmd.OutOrStdout()
			if structured(opts.output) {
				return printOutput(out, opts.output, result)
			}
			printOverrides(out, result.Overrides)
			fmt.Fprintf(out, "Total: %d\n", result.TotalSize)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "List a single status instead of pending")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "Only pending overrides raised by this user")
	cmd.Flags().IntVar(&days, "days", 0, "Window for the expiring view (server default when 0)")
	return cmd
}

func newGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var o override.Override
			if err := newClient(opts).getJSON(overridesPath+"/"+url.PathEscape(args[0]), &o); err != nil {
				return fmt.Errorf("failed to get override: %w", err)
			}
			if structured(opts.output) {
				return printOutput(cmd.OutOrStdout(), opts.output, o)
			}
			printOverride(cmd.OutOrStdout(), &o)
			return nil
		},
	}
}

// createFlags maps create command flags onto request body keys.
var createFlags = map[string]string{
	"title":         "title",
	"type":          "overrideType",
	"description":   "description",
	"reason":        "reason",
	"justification": "justification",
	"risk":          "riskLevel",
	"impact":        "impactLevel",
	"priority":      "priorityLevel",
	"emergency":     "isEmergency",
	"monitoring":    "monitoringFrequency",
	"tags":          "tags",
}

func newCreateCmd(opts *globalOptions) *cobra.Command {
	var (
		file       string
		targetType string
		targetID   string
		from       string
		until      string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Raise a new override request",
		Long: `Raise a new override request. Fields come from a YAML file (-f) using the
API's camelCase keys, and flags override file values.`,
		Example: `  overridectl create --type AGE_REQUIREMENT --title "Allow 15 year old" \
    --target-type assignment --target-id as-42 --risk MEDIUM --impact LOW \
    --justification "Parent consent and guardian supervision on site" --until 72h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]any{}
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
				if err := yaml.Unmarshal(data, &body); err != nil {
					return fmt.Errorf("parse %s: %w", file, err)
				}
			}
			if err := applyCreateFlags(cmd.Flags(), body); err != nil {
				return err
			}
			if targetType != "" || targetID != "" {
				target, _ := body["target"].(map[string]any)
				if target == nil {
					target = map[string]any{}
				}
				if targetType != "" {
					target["type"] = targetType
				}
				if targetID != "" {
					target["id"] = targetID
				}
				body["target"] = target
			}
			now := time.Now().UTC()
			for key, v := range map[string]string{"effectiveFrom": from, "effectiveUntil": until} {
				if v == "" {
					continue
				}
				t, err := parseWhen(v, now)
				if err != nil {
					return fmt.Errorf("invalid %s: %w", key, err)
				}
				body[key] = t
			}

			var result override.CreateResponse
			if err := newClient(opts).postJSON(overridesPath+"/", body, &result); err != nil {
				return fmt.Errorf("failed to create override: %w", err)
			}
			out := cmd.OutOrStdout()
			if structured(opts.output) {
				return printOutput(out, opts.output, result)
			}
			fmt.Fprintf(out, "Created override %s (%s)\n", result.Override.ID, result.Override.Status)
			for _, w := range result.Warnings {
				fmt.Fprintf(out, "Warning: %s\n", w.Message)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "YAML file with the request body")
	f.String("title", "", "Short title")
	f.String("type", "", "Override type, for example AGE_REQUIREMENT")
	f.String("description", "", "Longer description")
	f.String("reason", "", "Reason code")
	f.String("justification", "", "Justification text")
	f.String("risk", "", "Risk level: LOW, MEDIUM, HIGH or CRITICAL")
	f.String("impact", "", "Impact level: MINIMAL, LOW, MEDIUM, HIGH or SEVERE")
	f.Int("priority", 0, "Priority 1 (highest) to 10")
	f.Bool("emergency", false, "Mark as an emergency override")
	f.String("monitoring", "", "Monitoring frequency; enables monitoring when set")
	f.StringSlice("tags", nil, "Tags")
	f.StringVar(&targetType, "target-type", "", "Target entity type")
	f.StringVar(&targetID, "target-id", "", "Target entity ID")
	f.StringVar(&from, "from", "", "Effective from: RFC3339 time or a duration from now")
	f.StringVar(&until, "until", "", "Effective until: RFC3339 time or a duration from now")
	return cmd
}

// applyCreateFlags copies every explicitly set create flag into body.
func applyCreateFlags(fs *pflag.FlagSet, body map[string]any) error {
	var err error
	fs.Visit(func(fl *pflag.Flag) {
		key, ok := createFlags[fl.Name]
		if !ok || err != nil {
			return
		}
		switch fl.Name {
		case "priority":
			body[key], err = fs.GetInt(fl.Name)
		case "emergency":
			body[key], err = fs.GetBool(fl.Name)
		case "tags":
			body[key], err = fs.GetStringSlice(fl.Name)
		case "monitoring":
			body[key] = fl.Value.String()
			body["requiresMonitoring"] = true
		default:
			body[key] = fl.Value.String()
		}
	})
	return err
}

// parseWhen accepts an RFC3339 timestamp or a duration relative to now.
func parseWhen(v string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return now.Add(d), nil
	}
	return time.Parse(time.RFC3339, v)
}

// workflowAction is a POST /overrides/{id}/{action} command.
type workflowAction struct {
	name      string
	short     string
	textFlag  string
	textUsage string
	required  bool
}

var workflowActions = []workflowAction{
	{name: "approve", short: "Approve a pending override", textFlag: "notes", textUsage: "Approval notes"},
	{name: "reject", short: "Reject a pending override", textFlag: "reason", textUsage: "Rejection reason", required: true},
	{name: "activate", short: "Activate an approved override", textFlag: "notes", textUsage: "Activation notes"},
	{name: "revoke", short: "Revoke an approved or active override", textFlag: "reason", textUsage: "Revocation reason", required: true},
	{name: "complete", short: "Complete an active override", textFlag: "notes", textUsage: "Completion notes"},
	{name: "monitor", short: "Record a monitoring check on an override", textFlag: "notes", textUsage: "Monitoring notes"},
}

func newActionCmd(opts *globalOptions, a workflowAction) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   a.name + " <id>",
		Short: a.short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("%s/%s/%s", overridesPath, url.PathEscape(args[0]), a.name)
			var o override.Override
			if err := newClient(opts).postJSON(path, map[string]string{a.textFlag: text}, &o); err != nil {
				return fmt.Errorf("failed to %s override: %w", a.name, err)
			}
			out := cmd.OutOrStdout()
			if structured(opts.output) {
				return printOutput(out, opts.output, o)
			}
			fmt.Fprintf(out, "Override %s is now %s (version %d)\n", o.ID, o.Status, o.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, a.textFlag, "", a.textUsage)
	if a.required {
		_ = cmd.MarkFlagRequired(a.textFlag)
	}
	return cmd
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a pending or rejected override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := overridesPath + "/" + url.PathEscape(args[0])
			if reason = strings.TrimSpace(reason); reason != "" {
				path += "?reason=" + url.QueryEscape(reason)
			}
			if err := newClient(opts).delete(path); err != nil {
				return fmt.Errorf("failed to delete override: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted override %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit log")
	return cmd
}
