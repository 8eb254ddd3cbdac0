package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <workflow-id>",
	Short:   "Delete a workflow and all of its requests",
	GroupID: "workflows",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.DeleteWorkflow(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("workflow %s deleted\n", args[0])
		return nil
	},
}
