package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civora/approvals/internal/model"
)

var historyCmd = &cobra.Command{
	Use:     "history <entity-type> <entity-id>",
	Short:   "Show the decided gates for an entity's workflow",
	GroupID: "workflows",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := apiClient.GetHistory(context.Background(), model.EntityType(args[0]), args[1])
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(records)
			return nil
		}
		if len(records) == 0 {
			fmt.Println("no gates decided yet")
			return nil
		}
		printHistoryTable(records)
		return nil
	},
}
