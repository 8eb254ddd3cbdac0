package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/civora/approvals/internal/ui"
)

var auditCmd = &cobra.Command{
	Use:     "audit <request-id>",
	Short:   "Show the audit trail for a request",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := apiClient.GetAuditTrail(context.Background(), args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(entries)
			return nil
		}
		if len(entries) == 0 {
			fmt.Println("no audit entries")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tTOPIC\tACTOR")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.CreatedAt.Format(timeFormat), e.Topic, e.Actor)
		}
		return w.Flush()
	},
}

var escalationsCmd = &cobra.Command{
	Use:     "escalations <request-id>",
	Short:   "Show SLA escalations recorded for a request",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		escalations, err := apiClient.GetEscalations(context.Background(), args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(escalations)
			return nil
		}
		if len(escalations) == 0 {
			fmt.Println("no escalations")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tLEVEL\tDAYS OVERDUE")
		for _, e := range escalations {
			fmt.Fprintf(w, "%s\t%s -> %s\t%d\n",
				e.RaisedAt.Format(timeFormat),
				ui.RenderEscalation(e.FromLevel),
				ui.RenderEscalation(e.ToLevel),
				e.DaysOverdue,
			)
		}
		return w.Flush()
	},
}
