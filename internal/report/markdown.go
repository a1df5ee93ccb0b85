// Package report projects a reconciled discrepancy set into outbound
// surfaces: a markdown report for humans and an optional publish sink for
// downstream systems.
package report

import (
	"fmt"
	"strings"

	"github.com/saifguard/saifguard/internal/model"
)

var severityHeaders = []struct {
	severity model.Severity
	header   string
}{
	{model.SeverityCritical, "🔴 Critical"},
	{model.SeverityHigh, "🟠 High"},
	{model.SeverityMedium, "🟡 Medium"},
	{model.SeverityLow, "⚪ Low"},
}

// RenderMarkdown renders a discrepancy set as a markdown report, grouped by
// severity from critical down to low, with satisfied controls in a trailing
// audit-trail section that produces no remediation items.
func RenderMarkdown(set *model.DiscrepancySet) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# SAIF Discrepancy Report\n\n")
	if set.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "Session `%s` | snapshot `%s`\n\n", set.SessionID, shortHash(set.SnapshotHash))
	} else {
		fmt.Fprintf(&b, "Session `%s` | evidence as of %s | snapshot `%s`\n\n",
			set.SessionID, set.GeneratedAt.Format("2006-01-02 15:04:05 MST"), shortHash(set.SnapshotHash))
	}

	if len(set.Records) == 0 {
		b.WriteString("No claims to compare yet. Provide a design artifact and a deployment scan, then reconcile again.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%d control(s) compared, %d requiring remediation.\n", len(set.Records), set.RemediationCount())

	for _, grp := range severityHeaders {
		records := recordsBySeverity(set, grp.severity)
		if len(records) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n", grp.header)
		for _, d := range records {
			writeRecord(&b, d)
		}
	}

	writeAuditTrail(&b, set)
	return b.String()
}

func recordsBySeverity(set *model.DiscrepancySet, sev model.Severity) []model.Discrepancy {
	var out []model.Discrepancy
	for _, d := range set.Records {
		if d.Severity == sev && d.NeedsRemediation() {
			out = append(out, d)
		}
	}
	return out
}

func writeRecord(b *strings.Builder, d model.Discrepancy) {
	name := d.ControlName
	if name == "" {
		name = d.ControlID
	} else {
		name = d.ControlID + " " + name
	}
	fmt.Fprintf(b, "\n### %s\n", name)
	fmt.Fprintf(b, "- Classification: **%s**\n", d.Classification)
	fmt.Fprintf(b, "- Design says: %s%s\n", d.DesignStatus, evidenceSuffix(d.DesignEvidence))
	fmt.Fprintf(b, "- Deployment shows: %s%s\n", d.DeploymentStatus, evidenceSuffix(d.DeployEvidence))
	fmt.Fprintf(b, "- Remediation: %s\n", remediationHint(d.Classification))
}

func writeAuditTrail(b *strings.Builder, set *model.DiscrepancySet) {
	var satisfied []model.Discrepancy
	for _, d := range set.Records {
		if d.Classification == model.ClassSatisfied {
			satisfied = append(satisfied, d)
		}
	}
	if len(satisfied) == 0 {
		return
	}
	b.WriteString("\n## ✅ Satisfied (audit trail)\n\n")
	for _, d := range satisfied {
		fmt.Fprintf(b, "- %s: design and deployment agree the control is in place\n", d.ControlID)
	}
}

func evidenceSuffix(evidence string) string {
	if evidence == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", evidence)
}

func remediationHint(c model.Classification) string {
	switch c {
	case model.ClassMissingInDeployment:
		return "implement the control the design documents; the deployment shows no evidence of it"
	case model.ClassMissingInDesign:
		return "review the deployed control and document it in the design, or remove it"
	case model.ClassConflicting:
		return "investigate the disagreement between the design and the deployed state"
	default:
		return "none"
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
