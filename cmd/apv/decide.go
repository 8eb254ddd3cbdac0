package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civora/approvals/internal/model"
	"github.com/civora/approvals/internal/ui"
)

var decideCmd = &cobra.Command{
	Use:     "decide <request-id> <decision>",
	Short:   "Record a gate decision and advance the workflow",
	GroupID: "requests",
	Long: `Record a decision on an open approval request. Valid decisions depend
on the gate definition; the usual set is approve, reject, conditional,
requires_changes, and withdraw. Withdraw is always available to the
original requester.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		requestID, decision := args[0], args[1]

		result, err := apiClient.Decide(context.Background(), requestID, actor, model.Decision(decision))
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(result)
			return nil
		}
		fmt.Printf("decision %s recorded on %s\n", ui.RenderDecision(result.Request.Decision), result.Request.ID)
		fmt.Println()
		printWorkflow(result.Workflow)
		return nil
	},
}
