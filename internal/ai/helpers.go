package ai

import (
	"fmt"
	"strings"
)

// approvalVerdict is the JSON shape the judge prompt asks the model for.
type approvalVerdict struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// buildJudgeContent builds the user message for an approval decision.
// This is shared across all AI providers.
func buildJudgeContent(visitorName, hostName, reply string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Visitor %s wants to meet %s.\n", visitorName, hostName)
	if reply == "" {
		b.WriteString("No reply from the host yet.\n")
	} else {
		fmt.Fprintf(&b, "Reply from %s: %s\n", hostName, reply)
	}
	b.WriteString("Decide approval.")
	return b.String()
}

// buildQueryContent builds the user message for a free-form question,
// prefixed with the facility snapshot.
func buildQueryContent(question string, site *SiteContext) string {
	var b strings.Builder
	b.WriteString("Current data:\n")
	if site != nil {
		b.WriteString("Today's entries:\n")
		if len(site.TodayEntries) == 0 {
			b.WriteString("  (none)\n")
		}
		for _, entry := range site.TodayEntries {
			fmt.Fprintf(&b, "  - %s\n", entry)
		}
		fmt.Fprintf(&b, "Number of enrolled people: %d\n", site.IdentityCount)
		if len(site.IdentityNames) > 0 {
			fmt.Fprintf(&b, "Enrolled people: %s\n", strings.Join(site.IdentityNames, ", "))
		}
		b.WriteString("Recent visitors:\n")
		if len(site.RecentVisitors) == 0 {
			b.WriteString("  (none)\n")
		}
		for _, visitor := range site.RecentVisitors {
			fmt.Fprintf(&b, "  - %s\n", visitor)
		}
	}
	fmt.Fprintf(&b, "\nUser query: %s\n", question)
	return b.String()
}

// validateVisitorInfo checks that the extraction produced both fields.
func validateVisitorInfo(info *VisitorInfo) (*VisitorInfo, error) {
	info.Name = strings.TrimSpace(info.Name)
	info.Host = strings.TrimSpace(info.Host)
	if info.Name == "" || info.Host == "" {
		return nil, ErrUnparseable
	}
	return info, nil
}
