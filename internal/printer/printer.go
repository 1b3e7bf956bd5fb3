package printer

import (
	"github.com/slok/ralph/internal/model"
	"github.com/slok/ralph/internal/verify"
)

// Printer knows how to print run information in different formats.
type Printer interface {
	PrintStatus(status model.RunStatus) error
	PrintHistory(entries []model.HistoryEntry) error
	PrintTasks(tasks []model.Task) error
	PrintMemories(memories []model.Memory) error
	PrintChecks(results []model.CheckResult) error
	PrintVerification(results []verify.Result) error
	PrintReport(report model.LoopReport) error
	PrintMessage(msg string) error
}
