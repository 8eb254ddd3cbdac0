package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/civora/approvals/internal/model"
)

var checkCmd = &cobra.Command{
	Use:     "check <request-id> <item-key>",
	Short:   "Tick a checklist item on a request",
	GroupID: "requests",
	Long: `Tick (or untick with --off) a checklist item on an approval request.

By default this updates the requester's self-check list; pass --reviewer
to update the reviewer checklist instead. The acting identity comes from
the global --actor flag.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		requestID, key := args[0], args[1]
		reviewer, _ := cmd.Flags().GetBool("reviewer")
		off, _ := cmd.Flags().GetBool("off")

		var req *model.ApprovalRequest
		var err error
		if reviewer {
			req, err = apiClient.SetReviewerItem(context.Background(), requestID, actor, key, !off)
		} else {
			req, err = apiClient.SetSelfCheckItem(context.Background(), requestID, actor, key, !off)
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(req)
			return nil
		}
		printRequest(req)
		return nil
	},
}

func init() {
	checkCmd.Flags().Bool("reviewer", false, "update the reviewer checklist instead of self-check")
	checkCmd.Flags().Bool("off", false, "untick the item instead of ticking it")
}
