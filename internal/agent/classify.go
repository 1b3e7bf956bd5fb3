package agent

import (
	"regexp"
	"strings"
)

// Exit codes that mean the agent could not reach the network: name resolution (6),
// connection refused (7), operation timeout (28) and SSL connect errors (35).
var networkExitCodes = map[int]bool{6: true, 7: true, 28: true, 35: true}

var networkVocabulary = []string{
	"could not resolve host",
	"name or service not known",
	"temporary failure in name resolution",
	"getaddrinfo",
	"enotfound",
	"connection refused",
	"econnrefused",
	"connection reset",
	"econnreset",
	"network is unreachable",
	"enetunreach",
	"etimedout",
	"connection timed out",
	"socket hang up",
	"ssl_error",
	"tls handshake timeout",
	"ssl connect error",
}

var modelUnavailableRe = regexp.MustCompile(`(?i)` +
	`model\b[^\n]*?\b(?:is |was )?not (?:available|supported|found)` +
	`|model_not_found` +
	`|(?:unknown|invalid|unsupported) model` +
	`|model[^\n]*?\bunavailable` +
	`|(?:does not|doesn't) have access to (?:the )?model`)

// IsNetworkError returns true when a failed invocation looks like a network problem.
// Successful invocations are never network errors even if the output mentions one.
func IsNetworkError(r Result) bool {
	if r.ExitCode == 0 {
		return false
	}
	if networkExitCodes[r.ExitCode] {
		return true
	}
	return containsAny(r.Output, networkVocabulary)
}

// IsModelUnavailable returns true when a failed invocation says the requested
// model can't be used.
func IsModelUnavailable(r Result) bool {
	if r.ExitCode == 0 {
		return false
	}
	return modelUnavailableRe.MatchString(r.Output)
}

func containsAny(output string, vocabulary []string) bool {
	lower := strings.ToLower(output)
	for _, w := range vocabulary {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

var promiseRe = regexp.MustCompile(`(?s)<promise>(.*?)</promise>`)

// DetectCompletion returns true when the output has a promise tag whose trimmed
// content is exactly the trimmed completion promise. Without a promise there is
// never a completion.
func DetectCompletion(output, promise string) bool {
	promise = strings.TrimSpace(promise)
	if promise == "" {
		return false
	}

	for _, m := range promiseRe.FindAllStringSubmatch(output, -1) {
		if strings.TrimSpace(m[1]) == promise {
			return true
		}
	}
	return false
}

// PromiseTag returns the text the agent must output to claim completion.
func PromiseTag(promise string) string {
	return "<promise>" + promise + "</promise>"
}
