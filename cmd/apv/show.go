package main

import (
	"context"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:     "show <request-id>",
	Short:   "Show an approval request with checklists and evaluations",
	GroupID: "requests",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := apiClient.GetRequest(context.Background(), args[0])
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
