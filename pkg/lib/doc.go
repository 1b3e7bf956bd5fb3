// Package lib provides a Go SDK to drive ralph runs programmatically.
//
// It exposes the same operations as the ralph CLI (enable a run, iterate it,
// resume it, inspect its status and history) without shelling out to the
// binary. The run files live in the `.ralph` directory of the project, so the
// CLI and the SDK can be mixed on the same project.
//
// # Quick Start
//
//	client, err := lib.New(ctx, lib.Config{Dir: "/path/to/project"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	_, err = client.Enable(ctx, lib.EnableOpts{
//	    Prompt:            "Make the test suite pass",
//	    MaxIterations:     10,
//	    CompletionPromise: "DONE",
//	})
//
//	report, err := client.Run(ctx, nil)
//	if errors.Is(err, lib.ErrHalted) {
//	    // Inspect report.HaltReason and continue later with client.Resume.
//	}
//
// # Agents
//
// By default the agent is the command configured in the project settings
// (`.ralph/config.yaml`). Set [Config.Agent] to drive the loop with an
// in-process function instead, useful to plug custom agents or to test
// without a real coding agent.
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: Resource does not exist.
//   - [ErrNotValid]: Invalid input or operation (e.g. skipping a task on a single goal run).
//   - [ErrNoActiveRun]: The operation needs an enabled run.
//   - [ErrRunActive]: A run is already enabled.
//   - [ErrHalted]: The loop stopped without completing the run.
package lib
