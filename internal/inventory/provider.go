// Package inventory fetches deployment resource snapshots for a project,
// either from an inventory gateway over HTTP or from a local dump file.
package inventory

import (
	"context"

	"github.com/saifguard/saifguard/internal/model"
)

// Provider fetches the resource inventory for one project as a raw artifact
// ready for extraction. Failures are *model.ProviderUnavailableError and
// never mutate session state.
type Provider interface {
	Fetch(ctx context.Context, projectID string) (model.RawArtifact, error)
}
