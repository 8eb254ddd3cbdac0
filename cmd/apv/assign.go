package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var assignCmd = &cobra.Command{
	Use:     "assign <request-id> <evaluator>...",
	Short:   "Assign the expert panel on a consensus gate",
	GroupID: "requests",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		requestID, evaluators := args[0], args[1:]

		req, err := apiClient.AssignEvaluators(context.Background(), requestID, actor, evaluators)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(req)
			return nil
		}
		fmt.Printf("evaluators assigned: %s\n", strings.Join(req.AssignedEvaluators, ", "))
		return nil
	},
}
