package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/scout/pkg/types"
)

var (
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	taskStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	toolStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	roleStyle  = lipgloss.NewStyle().Bold(true)
)

var answerStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("63")).
	Padding(0, 1)

// renderer prints orchestrator events and transcript messages.
type renderer struct {
	w io.Writer
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w}
}

// Event prints one event. Framing events other than the delta print nothing.
func (r *renderer) Event(ev types.OrchestratorEvent) {
	line := formatEvent(ev)
	if line != "" {
		fmt.Fprintln(r.w, line)
	}
}

func formatEvent(ev types.OrchestratorEvent) string {
	switch ev.Type {
	case types.EventTypePlanningStarted:
		return dimStyle.Render(fmt.Sprintf("● planning step %d/%d", ev.Step, ev.MaxSteps))
	case types.EventTypeDecisionMade:
		if ev.Decision == types.DecisionTask {
			return taskStyle.Render("→ TASK: ") + ev.Content
		}
		return okStyle.Render("✓ FINISH")
	case types.EventTypeDelegationStarted:
		return dimStyle.Render("  ↳ doer started")
	case types.EventTypeToolCall:
		return toolStyle.Render("    ⚙ " + ev.ToolName)
	case types.EventTypeToolResult:
		if ok, _ := ev.Metadata["success"].(bool); ok {
			return okStyle.Render("      ok")
		}
		return warnStyle.Render("      failed")
	case types.EventTypeDelegationCompleted:
		label := "  ↳ result: "
		if ev.BestEffort {
			return warnStyle.Render(label+"(best effort) ") + truncate(ev.Content, 200)
		}
		return dimStyle.Render(label) + truncate(ev.Content, 200)
	case types.EventTypeError:
		return errorStyle.Render(fmt.Sprintf("✗ %s: %s", ev.ErrorKind, ev.Error))
	case types.EventTypeTextDelta:
		return answerStyle.Render(ev.Content)
	default:
		return ""
	}
}

// Message prints one transcript message.
func (r *renderer) Message(m types.Message) {
	fmt.Fprintln(r.w, roleStyle.Render(string(m.Role))+dimStyle.Render(" "+m.CreatedAt.Format("2006-01-02 15:04:05")))
	for _, p := range m.Parts {
		switch p.Kind {
		case types.PartText:
			fmt.Fprintln(r.w, "  "+strings.ReplaceAll(p.Text, "\n", "\n  "))
		case types.PartReasoning:
			fmt.Fprintln(r.w, dimStyle.Render("  (thinking) "+truncate(p.Text, 120)))
		case types.PartToolCall:
			fmt.Fprintln(r.w, toolStyle.Render(fmt.Sprintf("  ⚙ %s [%s]", p.ToolCall.ToolName, p.ToolCall.State)))
		}
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
