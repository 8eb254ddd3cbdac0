package ui

import (
	"fmt"

	"github.com/civora/approvals/internal/model"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorGreen  = 114
	colorYellow = 179
	colorRed    = 167
)

func render(color int, s string) string {
	if !colorActive() {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string {
	return render(colorAccent, s)
}

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string {
	return render(colorMuted, s)
}

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string {
	return render(colorCmd, s)
}

// RenderWorkflowStatus colors a workflow status: green for completed,
// red for terminated, accent for anything in flight.
func RenderWorkflowStatus(s model.WorkflowStatus) string {
	switch s {
	case model.WorkflowCompleted:
		return render(colorGreen, string(s))
	case model.WorkflowTerminated:
		return render(colorRed, string(s))
	default:
		return render(colorAccent, string(s))
	}
}

// RenderDecision colors a gate decision.
func RenderDecision(d model.Decision) string {
	switch d {
	case model.DecisionApprove:
		return render(colorGreen, string(d))
	case model.DecisionReject, model.DecisionWithdraw:
		return render(colorRed, string(d))
	case model.DecisionConditional, model.DecisionRequiresChanges:
		return render(colorYellow, string(d))
	default:
		return render(colorMuted, string(d))
	}
}

// RenderEscalation colors an SLA escalation level: muted at zero,
// yellow for low levels, red once it reaches director attention.
func RenderEscalation(level int) string {
	s := fmt.Sprintf("L%d", level)
	switch {
	case level <= 0:
		return render(colorMuted, s)
	case level < 3:
		return render(colorYellow, s)
	default:
		return render(colorRed, s)
	}
}
