package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civora/approvals/internal/model"
)

var overdueCmd = &cobra.Command{
	Use:     "overdue",
	Short:   "List open requests past their SLA, most escalated first",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		minLevel, _ := cmd.Flags().GetInt("min-level")
		entityType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		requests, total, err := apiClient.ListOverdue(context.Background(), model.OverdueFilter{
			MinLevel:   minLevel,
			EntityType: model.EntityType(entityType),
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(map[string]any{"requests": requests, "total": total})
			return nil
		}
		if len(requests) == 0 {
			fmt.Println("no overdue requests")
			return nil
		}
		printRequestListTable(requests, total)
		return nil
	},
}

func init() {
	overdueCmd.Flags().Int("min-level", 0, "only requests at or above this escalation level")
	overdueCmd.Flags().String("type", "", "filter by entity type")
	overdueCmd.Flags().Int("limit", 0, "maximum number of requests to return")
	overdueCmd.Flags().Int("offset", 0, "number of requests to skip")
}
