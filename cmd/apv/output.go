package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/civora/approvals/internal/model"
	"github.com/civora/approvals/internal/ui"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

const timeFormat = "2006-01-02 15:04:05"

func printWorkflow(wf *model.WorkflowInstance) {
	fmt.Printf("Workflow:    %s\n", wf.ID)
	fmt.Printf("Entity:      %s/%s\n", wf.EntityType, wf.EntityID)
	fmt.Printf("Status:      %s\n", ui.RenderWorkflowStatus(wf.Status))
	if wf.CurrentGate != "" {
		fmt.Printf("Gate:        %s\n", wf.CurrentGate)
	}
	fmt.Printf("Requester:   %s\n", wf.RequesterID)
	fmt.Printf("Created At:  %s\n", wf.CreatedAt.Format(timeFormat))
}

func printRequest(req *model.ApprovalRequest) {
	fmt.Printf("Request:     %s\n", req.ID)
	fmt.Printf("Workflow:    %s\n", req.WorkflowID)
	fmt.Printf("Gate:        %s\n", req.GateName)
	fmt.Printf("Status:      %s\n", req.Status)
	fmt.Printf("Requester:   %s\n", req.RequesterID)
	fmt.Printf("Due At:      %s  %s\n", req.DueAt.Format(timeFormat), ui.RenderEscalation(req.EscalationLevel))
	if req.Decision != "" {
		fmt.Printf("Decision:    %s by %s\n", ui.RenderDecision(req.Decision), req.DecidedBy)
	}
	printChecklist("Self Check", req.SelfCheck)
	printChecklist("Reviewer", req.ReviewerChecklist)
	if len(req.AssignedEvaluators) > 0 {
		fmt.Printf("Evaluators:  %s\n", strings.Join(req.AssignedEvaluators, ", "))
	}
	for _, ev := range req.Evaluations {
		fmt.Printf("  %s: %.1f (%s)\n", ev.EvaluatorID, ev.OverallScore, ui.RenderDecision(model.Decision(ev.Recommendation)))
	}
	if req.Consensus != nil {
		printConsensus(req.Consensus)
	}
}

func printChecklist(label string, items map[string]bool) {
	if len(items) == 0 {
		return
	}
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("%s:\n", label)
	for _, k := range keys {
		mark := ui.RenderMuted("[ ]")
		if items[k] {
			mark = ui.RenderAccent("[x]")
		}
		fmt.Printf("  %s %s\n", mark, k)
	}
}

func printConsensus(c *model.ConsensusResult) {
	fmt.Printf("Consensus:   %s (score %.1f, agreement %.0f%%, %d evaluators)\n",
		ui.RenderDecision(model.Decision(c.Recommendation)), c.AggregateScore, c.AgreementPct, c.Evaluators)
}

func printStatusView(view *model.WorkflowStatusView) {
	fmt.Printf("Workflow:    %s\n", view.WorkflowID)
	fmt.Printf("Entity:      %s/%s\n", view.EntityType, view.EntityID)
	fmt.Printf("Status:      %s\n", ui.RenderWorkflowStatus(view.Status))
	if view.CurrentGate != "" {
		fmt.Printf("Gate:        %s\n", view.CurrentGate)
		fmt.Printf("Request:     %s\n", view.RequestID)
	}
	if view.DueAt != nil {
		fmt.Printf("Due At:      %s  %s\n", view.DueAt.Format(timeFormat), ui.RenderEscalation(view.EscalationLevel))
	}
	cp := view.Checklist
	if cp.SelfCheckRequired > 0 || cp.ReviewerRequired > 0 {
		fmt.Printf("Checklist:   self %d/%d, reviewer %d/%d\n",
			cp.SelfCheckDone, cp.SelfCheckRequired, cp.ReviewerDone, cp.ReviewerRequired)
	}
}

func printHistoryTable(records []*model.GateRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GATE\tDECISION\tBY\tCLOSED")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			rec.GateName,
			ui.RenderDecision(rec.Decision),
			rec.DecidedBy,
			rec.ClosedAt.Format(timeFormat),
		)
	}
	w.Flush()
}

func printRequestListTable(requests []*model.ApprovalRequest, total int) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENTITY\tGATE\tDUE\tLEVEL\tREQUESTER")
	for _, req := range requests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			req.ID,
			req.EntityType,
			req.GateName,
			req.DueAt.Format("2006-01-02"),
			ui.RenderEscalation(req.EscalationLevel),
			req.RequesterID,
		)
	}
	w.Flush()
	fmt.Printf("\n%d requests (%d total)\n", len(requests), total)
}
