// Package docs resolves design-artifact references (local paths and URLs)
// into raw artifacts ready for extraction.
package docs

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/saifguard/saifguard/internal/model"
	"github.com/saifguard/saifguard/internal/resilience"
)

const maxDocumentBytes = 8 << 20

// Provider resolves a document reference to its content. Unresolvable refs
// are *model.ArtifactUnreadableError.
type Provider struct {
	client *http.Client
	retry  resilience.RetryConfig

	// BucketGateway maps gs://bucket/object refs onto an HTTP gateway;
	// empty disables gs:// resolution.
	BucketGateway string
}

// NewProvider creates a document provider with sane HTTP defaults.
func NewProvider() *Provider {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("docs", "fetch")
	return &Provider{
		client: &http.Client{Timeout: 30 * time.Second},
		retry:  retry,
	}
}

// Fetch resolves ref to artifact bytes. Diagram kinds are inferred from the
// file extension; everything else is treated as a document.
func (p *Provider) Fetch(ctx context.Context, ref string) (model.RawArtifact, error) {
	var payload []byte
	var err error

	switch {
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		payload, err = p.fetchHTTP(ctx, ref)
	case strings.HasPrefix(ref, "gs://"):
		if p.BucketGateway == "" {
			err = eris.New("docs: no bucket gateway configured for gs:// refs")
		} else {
			gatewayURL := strings.TrimRight(p.BucketGateway, "/") + "/" + strings.TrimPrefix(ref, "gs://")
			payload, err = p.fetchHTTP(ctx, gatewayURL)
		}
	default:
		payload, err = os.ReadFile(ref)
	}
	if err != nil {
		return model.RawArtifact{}, &model.ArtifactUnreadableError{Ref: ref, Err: err}
	}

	return model.RawArtifact{
		Kind:    kindForRef(ref),
		Ref:     ref,
		Payload: payload,
	}, nil
}

func (p *Provider) fetchHTTP(ctx context.Context, u string) ([]byte, error) {
	return resilience.DoVal(ctx, p.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, eris.Wrap(err, "docs: build request")
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("docs: fetch returned %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}

		return io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	})
}

var diagramExtensions = map[string]bool{
	".mmd":     true,
	".puml":    true,
	".drawio":  true,
	".diagram": true,
}

func kindForRef(ref string) model.ArtifactKind {
	ext := strings.ToLower(filepath.Ext(strings.TrimRight(ref, "/")))
	if diagramExtensions[ext] {
		return model.ArtifactDiagram
	}
	return model.ArtifactDocument
}
