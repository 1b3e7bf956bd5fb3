package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/verify"
)

// TablePrinter prints run information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintStatus prints the detailed run status.
func (t *TablePrinter) PrintStatus(status model.RunStatus) error {
	s := status.State
	if s == nil {
		fmt.Fprintln(t.writer, "No active run.")
		if cp := status.Checkpoint; cp != nil {
			fmt.Fprintf(t.writer, "Stale checkpoint: %s at iteration %d (%s)\n", cp.Status, cp.Iteration, TimeAgo(cp.Timestamp))
		}
		return nil
	}

	limit := "unbounded"
	if status.Goal.MaxIterations > 0 {
		limit = fmt.Sprintf("%d", status.Goal.MaxIterations)
	}
	promise := status.Goal.CompletionPromise
	if promise == "" {
		promise = "(none)"
	}

	fmt.Fprintf(t.writer, "Run:         %s\n", s.RunID)
	fmt.Fprintf(t.writer, "Mode:        %s\n", s.Mode)
	if s.IsBatch() {
		fmt.Fprintf(t.writer, "Task:        %d of %d: %s %s\n", s.CurrentTaskIndex+1, s.TasksTotal, status.Goal.TaskID, status.Goal.TaskTitle)
		fmt.Fprintf(t.writer, "Skipped:     %d\n", s.TasksSkipped)
	}
	fmt.Fprintf(t.writer, "Prompt:      %s\n", firstLine(status.Goal.Prompt))
	fmt.Fprintf(t.writer, "Iteration:   %d / %s\n", s.Iteration, limit)
	fmt.Fprintf(t.writer, "Promise:     %s\n", promise)
	fmt.Fprintf(t.writer, "Model:       %s (fallback: %s)\n", s.Model, s.FallbackModel)
	fmt.Fprintf(t.writer, "Failures:    %d consecutive\n", s.ConsecutiveFailures)
	if s.RejectionFeedback != "" {
		fmt.Fprintf(t.writer, "Feedback:    pending (%s)\n", firstLine(s.RejectionFeedback))
	}
	fmt.Fprintf(t.writer, "Started:     %s\n", FormatTimestamp(s.StartedAt))
	fmt.Fprintf(t.writer, "History:     %d entries\n", status.HistoryCount)
	if e := status.LastEntry; e != nil {
		fmt.Fprintf(t.writer, "Last:        #%d %s (%s)\n", e.Iteration, e.Outcome, TimeAgo(e.Timestamp))
	}
	fmt.Fprintf(t.writer, "Last output: %s\n", FormatBytes(status.LastOutputBytes))

	if cp := status.Checkpoint; cp != nil {
		fmt.Fprintf(t.writer, "Checkpoint:  %s at iteration %d (%s)\n", cp.Status, cp.Iteration, TimeAgo(cp.Timestamp))
		if cp.Detail != "" {
			fmt.Fprintf(t.writer, "Detail:      %s\n", cp.Detail)
		}
	}

	return nil
}

// PrintHistory prints the audit log in a table format.
func (t *TablePrinter) PrintHistory(entries []model.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ITERATION\tTASK\tOUTCOME\tNOTES\tWHEN")
	for _, e := range entries {
		task := e.TaskID
		if task == "" {
			task = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.Iteration, task, e.Outcome, firstLine(e.Notes), TimeAgo(e.Timestamp))
	}

	return nil
}

// PrintTasks prints a batch task list in a table format.
func (t *TablePrinter) PrintTasks(tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tTITLE\tMAX ITERATIONS\tPROMISE")
	for _, task := range tasks {
		maxIt, promise := "-", "-"
		if task.MaxIterations != nil {
			maxIt = fmt.Sprintf("%d", *task.MaxIterations)
		}
		if task.CompletionPromise != nil {
			promise = *task.CompletionPromise
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", task.ID, task.Title, maxIt, promise)
	}

	return nil
}

// PrintMemories prints memory bank entries in a table format.
func (t *TablePrinter) PrintMemories(memories []model.Memory) error {
	if len(memories) == 0 {
		fmt.Fprintln(t.writer, "No memories found.")
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ITERATION\tTASK\tKIND\tCONTENT\tWHEN")
	for _, m := range memories {
		task := m.TaskID
		if task == "" {
			task = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", m.Iteration, task, m.Kind, firstLine(m.Content), TimeAgo(m.CreatedAt))
	}

	return nil
}

// PrintChecks prints connectivity checks in a table format.
func (t *TablePrinter) PrintChecks(results []model.CheckResult) error {
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "HOST\tSTATUS\tMESSAGE")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, strings.ToUpper(string(r.Status)), r.Message)
	}

	return nil
}

// PrintVerification prints verification command results.
func (t *TablePrinter) PrintVerification(results []verify.Result) error {
	if len(results) == 0 {
		fmt.Fprintln(t.writer, "No verification commands found.")
		return nil
	}

	for _, r := range results {
		status := "PASS"
		switch {
		case r.TimedOut:
			status = "TIMEOUT"
		case !r.OK:
			status = fmt.Sprintf("FAIL (exit %d)", r.ExitCode)
		}
		fmt.Fprintf(t.writer, "[%s] %s\n", status, r.Command)
		if !r.OK && r.Output != "" {
			for _, l := range strings.Split(strings.TrimRight(r.Output, "\n"), "\n") {
				fmt.Fprintf(t.writer, "    %s\n", l)
			}
		}
	}

	return nil
}

// PrintReport prints the loop report.
func (t *TablePrinter) PrintReport(report model.LoopReport) error {
	switch report.Phase {
	case model.LoopPhaseCompleted:
		fmt.Fprintf(t.writer, "Run completed on iteration %d (%d iterations run).\n", report.Iteration, report.Iterations)
	case model.LoopPhaseHalted:
		fmt.Fprintf(t.writer, "Run halted on iteration %d: %s (%d iterations run).\n", report.Iteration, report.HaltReason, report.Iterations)
	default:
		fmt.Fprintf(t.writer, "Run at iteration %d (%d iterations run).\n", report.Iteration, report.Iterations)
	}
	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
