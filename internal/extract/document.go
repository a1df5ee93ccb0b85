package extract

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/saifguard/saifguard/internal/model"
	"github.com/saifguard/saifguard/internal/taxonomy"
	"github.com/saifguard/saifguard/pkg/anthropic"
)

const documentSystemPrompt = `You are an expert application security (AppSec) engineer performing a security audit. You are given a catalog of SAIF security controls and one artifact: a technical design document or an architecture diagram description.

For each control the artifact provides evidence about, emit one claim. Ground every claim strictly in the artifact text; never infer a control's state from silence. Controls the artifact says nothing about are omitted, not guessed.

Return a valid JSON array, nothing else:
[{"control_id": "<id from the catalog>", "status": "satisfied|violated|not_applicable|unknown", "evidence": "<short quote or paraphrase from the artifact>", "confidence": <0.0-1.0>}]

SAIF CONTROL CATALOG:
%s`

const documentUserPrompt = `Artifact kind: %s
Artifact reference: %s

Artifact content:
%s

Extract control claims from this artifact. Return only the JSON array.`

// maxDocumentChars caps how much artifact text goes into one prompt.
const maxDocumentChars = 60000

// DocumentConfig configures the document extraction adapter.
type DocumentConfig struct {
	Model           string
	MaxTokens       int64
	Temperature     float64
	ConfidenceFloor float64
}

// DocumentAdapter extracts claims from design documents and diagram
// descriptions via a language model.
type DocumentAdapter struct {
	client anthropic.Client
	tax    *taxonomy.Taxonomy
	cfg    DocumentConfig

	// The system prompt embeds the full control catalog and is identical
	// for every extraction, so it carries a cache breakpoint.
	systemBlocks []anthropic.SystemBlock
}

// NewDocumentAdapter creates a DocumentAdapter over the given model client.
func NewDocumentAdapter(client anthropic.Client, tax *taxonomy.Taxonomy, cfg DocumentConfig) *DocumentAdapter {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	system := fmt.Sprintf(documentSystemPrompt, tax.PromptBlock())
	return &DocumentAdapter{
		client:       client,
		tax:          tax,
		cfg:          cfg,
		systemBlocks: anthropic.BuildCachedSystemBlocks(system),
	}
}

// Extract prompts the model with the taxonomy and artifact text and parses
// the returned claims. A response that is not valid JSON is an
// ArtifactUnreadableError; individual bad claims inside a valid response are
// dropped and logged.
func (a *DocumentAdapter) Extract(ctx context.Context, artifact model.RawArtifact, source model.Source) ([]model.Claim, error) {
	if artifact.Kind != model.ArtifactDocument && artifact.Kind != model.ArtifactDiagram {
		return nil, eris.Errorf("document adapter: unsupported artifact kind %q", artifact.Kind)
	}
	if a.client == nil {
		return nil, eris.New("document adapter: no model client configured")
	}
	if len(artifact.Payload) == 0 {
		return nil, &model.ArtifactUnreadableError{Ref: artifact.Ref, Err: eris.New("empty payload")}
	}

	content := artifact.Text()
	if len(content) > maxDocumentChars {
		content = content[:maxDocumentChars]
	}

	prompt := fmt.Sprintf(documentUserPrompt, artifact.Kind, artifact.Ref, content)
	temp := a.cfg.Temperature

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		System:      a.systemBlocks,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "document adapter: create message")
	}

	raw, err := parseClaimsJSON(resp.Text())
	if err != nil {
		zap.L().Warn("document adapter: response is not valid claim JSON",
			zap.String("artifact", artifact.Ref),
			zap.Error(err),
		)
		return nil, &model.ArtifactUnreadableError{Ref: artifact.Ref, Err: err}
	}

	claims := claimsFromRaw(raw, source, a.tax, a.cfg.ConfidenceFloor, artifact.Ref)
	zap.L().Info("document adapter: extracted claims",
		zap.String("artifact", artifact.Ref),
		zap.String("source", string(source)),
		zap.Int("claims", len(claims)),
		zap.Int("dropped", len(raw)-len(claims)),
	)
	return claims, nil
}
