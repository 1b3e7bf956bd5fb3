package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/verify"
)

// JSONPrinter prints run information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// statusOutput represents the full run status output.
type statusOutput struct {
	Active              bool              `json:"active"`
	RunID               string            `json:"run_id,omitempty"`
	Mode                string            `json:"mode,omitempty"`
	Prompt              string            `json:"prompt,omitempty"`
	Iteration           int               `json:"iteration,omitempty"`
	MaxIterations       int               `json:"max_iterations,omitempty"`
	CompletionPromise   string            `json:"completion_promise,omitempty"`
	Model               string            `json:"model,omitempty"`
	Task                *taskOutput       `json:"task,omitempty"`
	TasksTotal          int               `json:"tasks_total,omitempty"`
	TasksSkipped        int               `json:"tasks_skipped,omitempty"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	PendingFeedback     bool              `json:"pending_feedback"`
	Checkpoint          *checkpointOutput `json:"checkpoint,omitempty"`
	HistoryCount        int               `json:"history_count"`
	LastOutputBytes     int64             `json:"last_output_bytes"`
	StartedAt           *time.Time        `json:"started_at,omitempty"`
}

type taskOutput struct {
	Index             int    `json:"index,omitempty"`
	ID                string `json:"id"`
	Title             string `json:"title,omitempty"`
	Prompt            string `json:"prompt,omitempty"`
	MaxIterations     int    `json:"max_iterations,omitempty"`
	CompletionPromise string `json:"completion_promise,omitempty"`
}

type checkpointOutput struct {
	Status     string    `json:"status"`
	Iteration  int       `json:"iteration"`
	TaskID     string    `json:"task_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	PID        int       `json:"pid"`
	Detail     string    `json:"detail,omitempty"`
	OutputTail string    `json:"output_tail,omitempty"`
}

type historyItem struct {
	RunID     string    `json:"run_id"`
	Iteration int       `json:"iteration"`
	TaskID    string    `json:"task_id,omitempty"`
	Outcome   string    `json:"outcome"`
	Notes     string    `json:"notes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type memoryItem struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	TaskID    string    `json:"task_id,omitempty"`
	Iteration int       `json:"iteration"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type checkItem struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type reportOutput struct {
	Phase      string `json:"phase"`
	HaltReason string `json:"halt_reason,omitempty"`
	Iteration  int    `json:"iteration"`
	Iterations int    `json:"iterations"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintStatus prints the run status in JSON format.
func (j *JSONPrinter) PrintStatus(status model.RunStatus) error {
	output := statusOutput{
		Active:          status.Active(),
		HistoryCount:    status.HistoryCount,
		LastOutputBytes: status.LastOutputBytes,
	}

	if s := status.State; s != nil {
		started := s.StartedAt.UTC()
		output.RunID = s.RunID
		output.Mode = string(s.Mode)
		output.Prompt = status.Goal.Prompt
		output.Iteration = s.Iteration
		output.MaxIterations = status.Goal.MaxIterations
		output.CompletionPromise = status.Goal.CompletionPromise
		output.Model = s.Model
		output.ConsecutiveFailures = s.ConsecutiveFailures
		output.PendingFeedback = s.RejectionFeedback != ""
		output.StartedAt = &started
		if s.IsBatch() {
			output.TasksTotal = s.TasksTotal
			output.TasksSkipped = s.TasksSkipped
			output.Task = &taskOutput{
				Index: s.CurrentTaskIndex + 1,
				ID:    status.Goal.TaskID,
				Title: status.Goal.TaskTitle,
			}
		}
	}

	if cp := status.Checkpoint; cp != nil {
		output.Checkpoint = &checkpointOutput{
			Status:     string(cp.Status),
			Iteration:  cp.Iteration,
			TaskID:     cp.TaskID,
			Timestamp:  cp.Timestamp.UTC(),
			PID:        cp.PID,
			Detail:     cp.Detail,
			OutputTail: cp.OutputTail,
		}
	}

	return j.encode(output)
}

// PrintHistory prints the audit log in JSON format.
func (j *JSONPrinter) PrintHistory(entries []model.HistoryEntry) error {
	items := make([]historyItem, len(entries))
	for i, e := range entries {
		items[i] = historyItem{
			RunID:     e.RunID,
			Iteration: e.Iteration,
			TaskID:    e.TaskID,
			Outcome:   string(e.Outcome),
			Notes:     e.Notes,
			Timestamp: e.Timestamp.UTC(),
		}
	}
	return j.encode(items)
}

// PrintTasks prints a batch task list in JSON format.
func (j *JSONPrinter) PrintTasks(tasks []model.Task) error {
	items := make([]taskOutput, len(tasks))
	for i, t := range tasks {
		items[i] = taskOutput{ID: t.ID, Title: t.Title, Prompt: t.Prompt}
		if t.MaxIterations != nil {
			items[i].MaxIterations = *t.MaxIterations
		}
		if t.CompletionPromise != nil {
			items[i].CompletionPromise = *t.CompletionPromise
		}
	}
	return j.encode(items)
}

// PrintMemories prints memory bank entries in JSON format.
func (j *JSONPrinter) PrintMemories(memories []model.Memory) error {
	items := make([]memoryItem, len(memories))
	for i, m := range memories {
		items[i] = memoryItem{
			ID:        m.ID,
			RunID:     m.RunID,
			TaskID:    m.TaskID,
			Iteration: m.Iteration,
			Kind:      string(m.Kind),
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC(),
		}
	}
	return j.encode(items)
}

// PrintChecks prints connectivity checks in JSON format.
func (j *JSONPrinter) PrintChecks(results []model.CheckResult) error {
	items := make([]checkItem, len(results))
	for i, r := range results {
		items[i] = checkItem{ID: r.ID, Status: string(r.Status), Message: r.Message}
	}
	return j.encode(items)
}

// PrintVerification prints verification command results in JSON format.
func (j *JSONPrinter) PrintVerification(results []verify.Result) error {
	if results == nil {
		results = []verify.Result{}
	}
	return j.encode(results)
}

// PrintReport prints the loop report in JSON format.
func (j *JSONPrinter) PrintReport(report model.LoopReport) error {
	return j.encode(reportOutput{
		Phase:      string(report.Phase),
		HaltReason: string(report.HaltReason),
		Iteration:  report.Iteration,
		Iterations: report.Iterations,
	})
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
