package notify

import (
	"fmt"
	"strings"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/audit"
)

// maxListedMismatches caps the per-message object list; the full set stays
// queryable through the status API.
const maxListedMismatches = 50

// FormatSummary renders the per-tick mismatch summary as plain text.
func FormatSummary(sum audit.Summary) Message {
	subject := "Checksum audit: no unresolved mismatches"
	if n := len(sum.Unresolved); n > 0 {
		subject = fmt.Sprintf("Checksum audit: %d unresolved mismatch(es)", n)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tick: %d enqueued, %d verified, %d failed\n",
		sum.TickStats.Enqueued, sum.TickStats.Succeeded, sum.TickStats.Failed)

	if len(sum.Unresolved) == 0 {
		b.WriteString("All validated objects match their stored checksums.\n")
		return Message{Subject: subject, Body: b.String()}
	}

	b.WriteString("\nUnresolved mismatches:\n")
	for i, m := range sum.Unresolved {
		if i == maxListedMismatches {
			fmt.Fprintf(&b, "... and %d more\n", len(sum.Unresolved)-maxListedMismatches)
			break
		}
		fmt.Fprintf(&b, "- %s", m.ObjectID)
		if m.Count > 1 {
			fmt.Fprintf(&b, " (seen %dx)", m.Count)
		}
		if m.Detail != "" {
			fmt.Fprintf(&b, ": %s", m.Detail)
		}
		b.WriteString("\n")
	}
	return Message{Subject: subject, Body: b.String()}
}
