package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cachepledge.org/internal/audit"
	"cachepledge.org/internal/registry"
)

var (
	auditAction     string
	auditTargetKind string
	auditActorEmail string
	auditStartDate  string
	auditEndDate    string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List admin audit log entries, newest first",
	Long: `audit lists recorded admin mutations. At most 1000 entries are returned;
narrow the date range to see older ones.

Example:
  pledgectl audit --action DELETE_SUBMISSION
  pledgectl audit --actor-email boss@ --start-date 2026-02-01 --json`,
	Annotations: map[string]string{"db": "true"},
	RunE:        runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditAction, "action", "", "UPDATE_PLEDGE, DELETE_PLEDGE, UPDATE_SUBMISSION or DELETE_SUBMISSION")
	auditCmd.Flags().StringVar(&auditTargetKind, "target-kind", "", "PLEDGE or SUBMISSION")
	auditCmd.Flags().StringVar(&auditActorEmail, "actor-email", "", "actor email substring")
	auditCmd.Flags().StringVar(&auditStartDate, "start-date", "", "on or after (YYYY-MM-DD or RFC 3339)")
	auditCmd.Flags().StringVar(&auditEndDate, "end-date", "", "on or before (YYYY-MM-DD or RFC 3339)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	f := audit.Filter{
		Action:     auditAction,
		TargetKind: auditTargetKind,
		ActorEmail: auditActorEmail,
	}
	var err error
	if f.From, err = registry.ParseQueryDate(auditStartDate); err != nil {
		return fmt.Errorf("invalid --start-date: %w", err)
	}
	if f.To, err = registry.ParseQueryDate(auditEndDate); err != nil {
		return fmt.Errorf("invalid --end-date: %w", err)
	}

	entries, err := audit.NewRecorder(store).Query(cmd.Context(), f)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(entries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tACTOR\tACTION\tTARGET")
	for _, e := range entries {
		actor := e.ActorEmail
		if actor == "" {
			actor = e.ActorID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\n", e.CreatedAt.Format(time.RFC3339), actor, e.Action, e.TargetKind, e.TargetID)
	}
	return w.Flush()
}
