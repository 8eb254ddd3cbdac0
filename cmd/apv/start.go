package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civora/approvals/internal/model"
)

var startCmd = &cobra.Command{
	Use:     "start <entity-type> <entity-id>",
	Short:   "Open an approval workflow for an entity",
	GroupID: "workflows",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityType, entityID := args[0], args[1]

		result, err := apiClient.StartWorkflow(context.Background(), model.EntityType(entityType), entityID, actor)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(result)
			return nil
		}
		printWorkflow(result.Workflow)
		fmt.Println()
		printRequest(result.Request)
		return nil
	},
}
