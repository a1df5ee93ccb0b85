package model

// ResponseType tags what an AgentResponse carries.
type ResponseType string

const (
	// ResponseClarification asks the user to restate or supply input.
	ResponseClarification ResponseType = "clarification"

	// ResponseExtractionSummary reports what an extraction ingested.
	ResponseExtractionSummary ResponseType = "extraction_summary"

	// ResponseDiscrepancyReport carries a rendered discrepancy set.
	ResponseDiscrepancyReport ResponseType = "discrepancy_report"
)

// ArtifactResult reports the outcome of extracting one artifact in a batch.
// Per-artifact failures are reported here instead of failing the batch.
type ArtifactResult struct {
	Ref        string `json:"ref"`
	Kind       string `json:"kind"`
	ClaimCount int    `json:"claim_count"`
	Error      string `json:"error,omitempty"`
}

// AgentResponse is what the conversational seam returns for one user turn:
// a clarifying question, an extraction summary, or a discrepancy report.
type AgentResponse struct {
	SessionID     string           `json:"session_id"`
	Type          ResponseType     `json:"type"`
	Message       string           `json:"message"`
	SessionState  string           `json:"session_state"`
	Artifacts     []ArtifactResult `json:"artifacts,omitempty"`
	Discrepancies *DiscrepancySet  `json:"discrepancies,omitempty"`
	Report        string           `json:"report,omitempty"`
}
