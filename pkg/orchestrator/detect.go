package orchestrator

import (
	"regexp"
	"strings"

	"github.com/calloway/switchboard/pkg/sessionstore"
	"github.com/calloway/switchboard/pkg/toolgw"
)

// Deterministic signals extracted from user text. Routing and forced
// tool use key off these, not off the model's own extraction, so a
// non-compliant model cannot lose credentials or intent.
var (
	accountNumberRe = regexp.MustCompile(`\b\d{8}\b`)
	sortCodeRe      = regexp.MustCompile(`\b\d{2}[- ]?\d{2}[- ]?\d{2}\b`)
	nonDigitRe      = regexp.MustCompile(`\D`)
)

// detectFacts scans user text for credentials and intent and stores
// what it finds under the canonical fact keys
func detectFacts(mem *sessionstore.SharedMemory, text string) {
	remainder := text

	if acct := accountNumberRe.FindString(remainder); acct != "" {
		mem.Set(sessionstore.KeyAccountNumber, acct)
		// Strip the account number so the sort code scan cannot match
		// inside it.
		remainder = strings.Replace(remainder, acct, "", 1)
	}

	if sort := sortCodeRe.FindString(remainder); sort != "" {
		mem.Set(sessionstore.KeySortCode, nonDigitRe.ReplaceAllString(sort, ""))
	}

	if intent := detectIntent(text); intent != "" {
		mem.Set(sessionstore.KeyUserIntent, intent)
	}
}

// detectIntent maps intent keywords to the tool that serves them
func detectIntent(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "transaction") ||
		strings.Contains(lower, "statement") ||
		strings.Contains(lower, "history"):
		return toolgw.ToolGetTransactions
	case strings.Contains(lower, "balance"):
		return toolgw.ToolCheckBalance
	default:
		return ""
	}
}

// hasCredentials reports whether both account facts are known
func hasCredentials(mem *sessionstore.SharedMemory) bool {
	return mem.GetString(sessionstore.KeyAccountNumber) != "" &&
		mem.GetString(sessionstore.KeySortCode) != ""
}
