// Package extract turns raw review artifacts into structured control claims.
// Two adapters share one contract: the document adapter prompts a language
// model with the taxonomy and the artifact text; the inventory adapter maps a
// resource-inventory snapshot through a deterministic rule table, with
// model-assisted inference for resources the rules do not cover.
//
// Adapters never write to the claim store. Extraction failures stay isolated
// from session state.
package extract

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saifguard/saifguard/internal/model"
	"github.com/saifguard/saifguard/internal/taxonomy"
)

// Adapter extracts control claims from one raw artifact. Implementations
// guarantee every returned claim's control resolves in the taxonomy; claims
// against unknown controls are dropped and logged, never returned.
type Adapter interface {
	Extract(ctx context.Context, artifact model.RawArtifact, source model.Source) ([]model.Claim, error)
}

// rawClaim is the JSON shape the model is asked to produce per claim.
type rawClaim struct {
	ControlID  string  `json:"control_id"`
	Status     string  `json:"status"`
	Evidence   string  `json:"evidence"`
	Confidence float64 `json:"confidence"`
}

// claimsFromRaw converts model output into domain claims, enforcing the
// adapter contract: unknown controls and malformed statuses are dropped with
// a data-quality warning (extraction is best-effort over noisy input), and
// confidence below the floor folds the status to unknown.
func claimsFromRaw(raw []rawClaim, source model.Source, tax *taxonomy.Taxonomy, confidenceFloor float64, ref string) []model.Claim {
	now := time.Now().UTC()
	claims := make([]model.Claim, 0, len(raw))

	for _, rc := range raw {
		if !tax.Resolve(rc.ControlID) {
			zap.L().Warn("extract: dropping claim against unknown control",
				zap.String("control_id", rc.ControlID),
				zap.String("artifact", ref),
			)
			continue
		}

		status := model.Status(rc.Status)
		if !status.Valid() {
			zap.L().Warn("extract: dropping claim with invalid status",
				zap.String("control_id", rc.ControlID),
				zap.String("status", rc.Status),
				zap.String("artifact", ref),
			)
			continue
		}

		conf := rc.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		// Same folding rule as Claim.EffectiveStatus: any status asserted
		// below the floor is too weak to trust, not_applicable included.
		if conf < confidenceFloor {
			status = model.StatusUnknown
		}

		claims = append(claims, model.Claim{
			ID:          uuid.New().String(),
			ControlID:   rc.ControlID,
			Source:      source,
			Status:      status,
			Evidence:    rc.Evidence,
			Confidence:  conf,
			ExtractedAt: now,
		})
	}

	return claims
}

// parseClaimsJSON parses a model response expected to be a JSON array of
// claims, tolerating code fences and surrounding prose.
func parseClaimsJSON(text string) ([]rawClaim, error) {
	cleaned := cleanJSONArray(text)
	var raw []rawClaim
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// cleanJSONArray strips markdown fences and surrounding prose, keeping the
// outermost JSON array.
func cleanJSONArray(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
