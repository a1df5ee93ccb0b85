package inventory

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/saifguard/saifguard/internal/model"
)

// FileProvider serves inventory snapshots from dump files on disk, one
// <project-id>.json per project. Used for fixtures and offline review.
type FileProvider struct {
	dir string
}

// NewFileProvider creates a provider over a directory of snapshot dumps.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir}
}

func (p *FileProvider) Fetch(ctx context.Context, projectID string) (model.RawArtifact, error) {
	// Project IDs come from user utterances; keep them inside the dir.
	name := filepath.Base(strings.TrimSpace(projectID))
	path := filepath.Join(p.dir, name+".json")

	payload, err := os.ReadFile(path)
	if err != nil {
		return model.RawArtifact{}, &model.ProviderUnavailableError{Provider: "inventory-file", Err: err}
	}

	return model.RawArtifact{
		Kind:    model.ArtifactInventory,
		Ref:     path,
		Payload: payload,
	}, nil
}
