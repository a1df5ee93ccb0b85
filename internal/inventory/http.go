package inventory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/saifguard/saifguard/internal/model"
	"github.com/saifguard/saifguard/internal/resilience"
)

// maxSnapshotBytes caps how large an inventory response may be.
const maxSnapshotBytes = 16 << 20

// HTTPOptions configures the HTTP inventory provider.
type HTTPOptions struct {
	Timeout    time.Duration
	MaxRetries int
	// RequestsPerSecond throttles calls against the gateway. Zero means
	// no throttling.
	RequestsPerSecond float64
	AuthToken         string
}

// HTTPProvider fetches inventory snapshots from a gateway exposing
// GET <base>/projects/{id}/inventory.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	token   string
}

// NewHTTPProvider creates a provider against the given gateway base URL.
func NewHTTPProvider(baseURL string, opts HTTPOptions) *HTTPProvider {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = opts.MaxRetries
	retry.OnRetry = resilience.RetryLogger("inventory-gateway", "fetch")

	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: limiter,
		retry:   retry,
		token:   opts.AuthToken,
	}
}

// Fetch retrieves the project's resource snapshot. Transient gateway
// failures are retried; whatever survives the retries surfaces as a
// ProviderUnavailableError.
func (p *HTTPProvider) Fetch(ctx context.Context, projectID string) (model.RawArtifact, error) {
	if projectID == "" {
		return model.RawArtifact{}, eris.New("inventory: empty project id")
	}

	endpoint := fmt.Sprintf("%s/projects/%s/inventory", p.baseURL, url.PathEscape(projectID))

	payload, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) ([]byte, error) {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return p.get(ctx, endpoint)
	})
	if err != nil {
		return model.RawArtifact{}, &model.ProviderUnavailableError{Provider: "inventory-gateway", Err: err}
	}

	return model.RawArtifact{
		Kind:    model.ArtifactInventory,
		Ref:     endpoint,
		Payload: payload,
	}, nil
}

func (p *HTTPProvider) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "inventory: build request")
	}
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("inventory: gateway returned %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "inventory: read body"), 0)
	}
	return body, nil
}
