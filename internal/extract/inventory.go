package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/saifguard/saifguard/internal/model"
	"github.com/saifguard/saifguard/internal/taxonomy"
	"github.com/saifguard/saifguard/pkg/anthropic"
)

const inventorySystemPrompt = `You are an expert cloud security engineer reviewing a live resource inventory. You are given a catalog of SAIF security controls and a JSON snapshot of deployed cloud resources.

For each control the inventory provides evidence about, emit one claim describing the deployed reality. Ground every claim in specific resources from the snapshot; cite resource names in the evidence. Controls the snapshot says nothing about are omitted, not guessed.

Return a valid JSON array, nothing else:
[{"control_id": "<id from the catalog>", "status": "satisfied|violated|not_applicable|unknown", "evidence": "<resource names and the configuration observed>", "confidence": <0.0-1.0>}]

SAIF CONTROL CATALOG:
%s`

const inventoryUserPrompt = `Resource inventory snapshot (JSON):
%s

Only report on these controls; the rest are already settled:
%s

Extract control claims from this inventory. Return only the JSON array.`

const maxInventoryChars = 60000

// InventoryConfig configures the inventory extraction adapter.
type InventoryConfig struct {
	Model           string
	MaxTokens       int64
	Temperature     float64
	ConfidenceFloor float64
}

// InventoryAdapter extracts claims from resource-inventory snapshots. A
// deterministic rule table settles the clear-cut controls at full confidence;
// the remaining controls are inferred by a language model over the same
// snapshot. Rule verdicts always win over model verdicts.
type InventoryAdapter struct {
	client anthropic.Client
	tax    *taxonomy.Taxonomy
	cfg    InventoryConfig

	systemBlocks []anthropic.SystemBlock
}

// NewInventoryAdapter creates an InventoryAdapter. The client may be nil, in
// which case only the rule table runs.
func NewInventoryAdapter(client anthropic.Client, tax *taxonomy.Taxonomy, cfg InventoryConfig) *InventoryAdapter {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	system := fmt.Sprintf(inventorySystemPrompt, tax.PromptBlock())
	return &InventoryAdapter{
		client:       client,
		tax:          tax,
		cfg:          cfg,
		systemBlocks: anthropic.BuildCachedSystemBlocks(system),
	}
}

// inventorySnapshot accepts both the bare-array and wrapped export shapes.
type inventorySnapshot struct {
	Resources []resourceRecord `json:"resources"`
}

func parseInventory(payload []byte) ([]resourceRecord, error) {
	var resources []resourceRecord
	if err := json.Unmarshal(payload, &resources); err == nil {
		return resources, nil
	}
	var snap inventorySnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, err
	}
	if snap.Resources == nil {
		return nil, eris.New("no resources field")
	}
	return snap.Resources, nil
}

// Extract parses the snapshot, applies the rule table, and asks the model
// about the controls the rules left undecided.
func (a *InventoryAdapter) Extract(ctx context.Context, artifact model.RawArtifact, source model.Source) ([]model.Claim, error) {
	if artifact.Kind != model.ArtifactInventory {
		return nil, eris.Errorf("inventory adapter: unsupported artifact kind %q", artifact.Kind)
	}

	resources, err := parseInventory(artifact.Payload)
	if err != nil {
		return nil, &model.ArtifactUnreadableError{Ref: artifact.Ref, Err: eris.Wrap(err, "parse inventory snapshot")}
	}

	idx := indexInventory(resources)
	now := time.Now().UTC()

	claims := make([]model.Claim, 0, len(inventoryRules))
	decided := make(map[string]bool)
	for _, rule := range inventoryRules {
		if !a.tax.Resolve(rule.ControlID) {
			continue
		}
		status, evidence, ok := rule.Evaluate(idx)
		if !ok {
			continue
		}
		decided[rule.ControlID] = true
		claims = append(claims, model.Claim{
			ID:          uuid.New().String(),
			ControlID:   rule.ControlID,
			Source:      source,
			Status:      model.Status(status),
			Evidence:    evidence,
			Confidence:  1.0,
			ExtractedAt: now,
		})
	}

	zap.L().Info("inventory adapter: rule table applied",
		zap.String("artifact", artifact.Ref),
		zap.Int("resources", len(resources)),
		zap.Int("rule_claims", len(claims)),
	)

	if a.client == nil {
		return claims, nil
	}

	inferred, err := a.inferRemaining(ctx, artifact, source, decided)
	if err != nil {
		// Rule verdicts are still good; inference is best-effort on top.
		zap.L().Warn("inventory adapter: model inference failed, keeping rule claims",
			zap.String("artifact", artifact.Ref),
			zap.Error(err),
		)
		return claims, nil
	}
	for _, c := range inferred {
		if decided[c.ControlID] {
			continue
		}
		claims = append(claims, c)
	}
	return claims, nil
}

func (a *InventoryAdapter) inferRemaining(ctx context.Context, artifact model.RawArtifact, source model.Source, decided map[string]bool) ([]model.Claim, error) {
	var remaining []string
	for _, ctrl := range a.tax.Controls() {
		if !decided[ctrl.ID] {
			remaining = append(remaining, ctrl.ID)
		}
	}
	if len(remaining) == 0 {
		return nil, nil
	}

	snapshot := artifact.Text()
	if len(snapshot) > maxInventoryChars {
		snapshot = snapshot[:maxInventoryChars]
	}

	prompt := fmt.Sprintf(inventoryUserPrompt, snapshot, strings.Join(remaining, ", "))
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
		return nil, eris.Wrap(err, "inventory adapter: create message")
	}

	raw, err := parseClaimsJSON(resp.Text())
	if err != nil {
		return nil, eris.Wrap(err, "inventory adapter: parse claims")
	}
	return claimsFromRaw(raw, source, a.tax, a.cfg.ConfidenceFloor, artifact.Ref), nil
}
