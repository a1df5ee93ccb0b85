package session

import (
	"regexp"
	"strings"

	"github.com/saifguard/saifguard/internal/model"
)

// Intent is what one user turn asks the agent to do. Classified by explicit
// rules over the utterance and attachments; the language model is reserved
// for artifact extraction, never for routing.
type Intent string

const (
	IntentAnalyze       Intent = "analyze"
	IntentScan          Intent = "scan"
	IntentDiscrepancies Intent = "discrepancies"
	IntentHelp          Intent = "help"
)

var (
	scanWords        = []string{"scan", "inventory", "deployed", "deployment", "project", "cloud resources"}
	reconcileWords   = []string{"discrep", "reconcile", "compare", "gap", "report", "findings", "difference"}
	analyzeWords     = []string{"analyze", "analyse", "review", "design", "document", "architecture", "diagram"}
	projectIDPattern = regexp.MustCompile(`\b[a-z][a-z0-9-]{4,28}[a-z0-9]\b`)
	refPattern       = regexp.MustCompile(`(?:https?://|gs://|\./|/)[^\s"']+|\b[\w./-]+\.(?:md|txt|pdf|json|yaml|yml)\b`)
)

// ClassifyIntent routes a user turn. Attachments dominate: the user sent
// concrete artifacts, so the turn is an extraction regardless of phrasing.
func ClassifyIntent(utterance string, attachments []model.RawArtifact) Intent {
	if len(attachments) > 0 {
		for _, a := range attachments {
			if a.Kind == model.ArtifactInventory {
				return IntentScan
			}
		}
		return IntentAnalyze
	}

	lower := strings.ToLower(utterance)

	if containsAny(lower, reconcileWords) {
		return IntentDiscrepancies
	}
	if containsAny(lower, scanWords) {
		return IntentScan
	}
	if containsAny(lower, analyzeWords) || refPattern.MatchString(utterance) {
		return IntentAnalyze
	}
	return IntentHelp
}

// ExtractProjectID pulls a plausible cloud project ID out of an utterance,
// preferring the token after the word "project".
func ExtractProjectID(utterance string) string {
	lower := strings.ToLower(utterance)
	fields := strings.Fields(lower)
	for i, f := range fields {
		if strings.HasPrefix(f, "project") && i+1 < len(fields) {
			candidate := strings.Trim(fields[i+1], `"'.,:`)
			if projectIDPattern.MatchString(candidate) {
				return candidate
			}
		}
	}
	return ""
}

// ExtractDocRef pulls a document reference (path or URL) out of an utterance.
func ExtractDocRef(utterance string) string {
	return strings.TrimRight(refPattern.FindString(utterance), ".,;:")
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
