package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/civora/approvals/internal/model"
)

var evaluateCmd = &cobra.Command{
	Use:     "evaluate <request-id>",
	Short:   "Submit an expert evaluation on a consensus gate",
	GroupID: "requests",
	Long: `Submit scores and a recommendation for an assigned consensus gate.

Scores are given as repeated --score dimension=value flags, one per
scoring dimension, each value an integer from 0 to 100. Example:

  apv evaluate ar-x1 --score innovation=80 --score feasibility=65 --recommend approve`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		requestID := args[0]
		rawScores, _ := cmd.Flags().GetStringArray("score")
		recommend, _ := cmd.Flags().GetString("recommend")

		scores, err := parseScores(rawScores)
		if err != nil {
			return err
		}

		result, err := apiClient.SubmitEvaluation(context.Background(), requestID, actor, scores, model.Recommendation(recommend))
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(result)
			return nil
		}
		fmt.Printf("evaluation recorded: %s scored %.1f (%s)\n",
			result.Evaluation.EvaluatorID, result.Evaluation.OverallScore, result.Evaluation.Recommendation)
		if result.Consensus != nil {
			printConsensus(result.Consensus)
		} else {
			fmt.Println("waiting for more evaluators")
		}
		return nil
	},
}

// parseScores turns repeated "dimension=value" pairs into a score map.
func parseScores(raw []string) (map[string]int, error) {
	scores := make(map[string]int, len(raw))
	for _, pair := range raw {
		dim, val, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid score %q (want dimension=value)", pair)
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid score %q: value must be an integer", pair)
		}
		scores[dim] = n
	}
	return scores, nil
}

func init() {
	evaluateCmd.Flags().StringArray("score", nil, "score as dimension=value (repeatable)")
	evaluateCmd.Flags().String("recommend", "", "recommendation (approve, reject, or conditional)")
	_ = evaluateCmd.MarkFlagRequired("recommend")
}
