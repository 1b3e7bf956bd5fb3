package model

// CheckStatus represents the status of a connectivity check.
type CheckStatus string

const (
	// CheckStatusOK indicates the check passed.
	CheckStatusOK CheckStatus = "ok"
	// CheckStatusWarning indicates the check passed with a warning.
	CheckStatusWarning CheckStatus = "warning"
	// CheckStatusError indicates the check failed.
	CheckStatusError CheckStatus = "error"
)

// CheckResult represents the result of a single connectivity check.
type CheckResult struct {
	ID      string      // Unique identifier for the check (e.g., "1.1.1.1:53").
	Message string      // Human-readable description of the result.
	Status  CheckStatus // Status of the check.
}

// HasErrors returns true if any check result has an error status.
func HasErrors(results []CheckResult) bool {
	for _, r := range results {
		if r.Status == CheckStatusError {
			return true
		}
	}
	return false
}

// AllErrors returns true when there are results and every one of them failed.
func AllErrors(results []CheckResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.Status != CheckStatusError {
			return false
		}
	}
	return true
}
