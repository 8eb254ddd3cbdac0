package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/civora/approvals/internal/model"
)

var statusCmd = &cobra.Command{
	Use:     "status <entity-type> <entity-id>",
	Short:   "Show where an entity sits in its workflow",
	GroupID: "workflows",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := apiClient.GetStatus(context.Background(), model.EntityType(args[0]), args[1])
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(view)
			return nil
		}
		printStatusView(view)
		return nil
	},
}
