package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/saifguard/saifguard/internal/claimstore"
	"github.com/saifguard/saifguard/internal/docs"
	"github.com/saifguard/saifguard/internal/extract"
	"github.com/saifguard/saifguard/internal/inventory"
	"github.com/saifguard/saifguard/internal/reconcile"
	"github.com/saifguard/saifguard/internal/report"
	"github.com/saifguard/saifguard/internal/session"
	"github.com/saifguard/saifguard/internal/taxonomy"
	anthropicpkg "github.com/saifguard/saifguard/pkg/anthropic"
)

// agentEnv holds the initialized store, taxonomy, adapters, and session
// manager shared by the serve/analyze/scan/reconcile commands.
type agentEnv struct {
	Store    claimstore.Store
	Taxonomy *taxonomy.Taxonomy
	Engine   *reconcile.Engine
	Manager  *session.Manager
	Sink     report.Sink

	sinkCloser interface{ Close() error }
}

// Close releases resources held by the environment.
func (e *agentEnv) Close() {
	if e.Manager != nil {
		e.Manager.Close()
	}
	if e.sinkCloser != nil {
		_ = e.sinkCloser.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initAgent sets up the taxonomy, store, model client, adapters, providers,
// and session manager. Callers should defer env.Close().
func initAgent(ctx context.Context) (*agentEnv, error) {
	tax, err := taxonomy.Load(cfg.Taxonomy.Path)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, tax)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var client anthropicpkg.Client
	if cfg.Anthropic.Key != "" {
		client = anthropicpkg.NewClient(cfg.Anthropic.Key,
			anthropicpkg.WithRateLimit(cfg.Anthropic.RequestsPerSecond, 1))
	} else {
		zap.L().Warn("SAIFGUARD_ANTHROPIC_KEY not set, document analysis disabled and inventory scans are rule-table only")
	}

	docAdapter := extract.NewDocumentAdapter(client, tax, extract.DocumentConfig{
		Model:           cfg.Anthropic.Model,
		MaxTokens:       cfg.Anthropic.MaxTokens,
		Temperature:     cfg.Anthropic.Temperature,
		ConfidenceFloor: cfg.Extraction.ConfidenceFloor,
	})
	invAdapter := extract.NewInventoryAdapter(client, tax, extract.InventoryConfig{
		Model:           cfg.Anthropic.Model,
		MaxTokens:       cfg.Anthropic.MaxTokens,
		Temperature:     cfg.Anthropic.Temperature,
		ConfidenceFloor: cfg.Extraction.ConfidenceFloor,
	})

	docProvider := docs.NewProvider()
	docProvider.BucketGateway = cfg.Docs.BucketGateway

	var invProvider inventory.Provider
	switch cfg.Inventory.Mode {
	case "file":
		invProvider = inventory.NewFileProvider(cfg.Inventory.FixtureDir)
	default:
		if cfg.Inventory.BaseURL != "" {
			invProvider = inventory.NewHTTPProvider(cfg.Inventory.BaseURL, inventory.HTTPOptions{
				MaxRetries:        cfg.Inventory.MaxRetries,
				RequestsPerSecond: cfg.Inventory.RequestsPerSecond,
				AuthToken:         cfg.Inventory.AuthToken,
			})
		} else {
			zap.L().Warn("no inventory gateway configured, project scans need inline attachments")
		}
	}

	engine := reconcile.New(st, tax, cfg.Extraction.ConfidenceFloor)
	manager := session.NewManager(st, engine, docAdapter, invAdapter, docProvider, invProvider, session.Config{
		IdleTimeout:      cfg.Session.IdleTimeout(),
		SweepInterval:    cfg.Session.SweepInterval(),
		DefaultProjectID: cfg.Session.DefaultProjectID,
	})

	env := &agentEnv{
		Store:    st,
		Taxonomy: tax,
		Engine:   engine,
		Manager:  manager,
		Sink:     report.NoopSink{},
	}

	if cfg.Publish.Enabled {
		sink, err := report.NewPubSubSink(ctx, cfg.Publish.ProjectID, cfg.Publish.Topic)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Sink = sink
		env.sinkCloser = sink
		zap.L().Info("discrepancy publishing enabled",
			zap.String("project", cfg.Publish.ProjectID),
			zap.String("topic", cfg.Publish.Topic),
		)
	}

	return env, nil
}

// initStore picks the claim store backend from config.
func initStore(ctx context.Context, tax *taxonomy.Taxonomy) (claimstore.Store, error) {
	switch cfg.Store.Driver {
	case "", "memory":
		return claimstore.NewMemory(tax), nil
	case "sqlite":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store: sqlite driver needs SAIFGUARD_STORE_DATABASE_URL")
		}
		return claimstore.NewSQLite(cfg.Store.DatabaseURL, tax)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store: postgres driver needs SAIFGUARD_STORE_DATABASE_URL")
		}
		return claimstore.NewPostgres(ctx, cfg.Store.DatabaseURL, tax)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Store.Driver)
	}
}
