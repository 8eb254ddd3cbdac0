package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the approvals service",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.Health(context.Background()); err != nil {
			return fmt.Errorf("checking health: %w", err)
		}
		if jsonOutput {
			printJSON(map[string]string{"status": "ok"})
		} else {
			fmt.Println("Health: ok")
		}
		return nil
	},
}
