package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"topwr_rag/internal/config"
	"topwr_rag/internal/core"
	"topwr_rag/internal/graphdb"
	"topwr_rag/internal/llm"
	"topwr_rag/internal/nodes"
	"topwr_rag/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// app holds the wired pipeline and everything that must be closed with it
type app struct {
	processor      *core.Processor
	graph          *graphdb.Client
	schema         *graphdb.SchemaCache
	journal        *storage.FileJournal
	defaultSession string
	closers        []func(context.Context) error
}

// newApp connects every backend named in cfg and assembles the processor
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close(context.Background())
		}
	}()

	graph, err := graphdb.NewClient(ctx, cfg.Neo4j)
	if err != nil {
		return nil, err
	}
	a.graph = graph
	a.closers = append(a.closers, graph.Close)
	a.schema = graphdb.NewSchemaCache(graph, cfg.Neo4j.SchemaTTL)

	store, err := newSessionStore(ctx, cfg.Session)
	if err != nil {
		return nil, err
	}
	if rs, isRedis := store.(*storage.RedisSessionStore); isRedis {
		a.closers = append(a.closers, func(context.Context) error { return rs.Close() })
	}

	chatModel, err := llm.NewChatModel(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	completion := llm.NewClient(chatModel, cfg.LLM.Timeout)

	opts := []core.Option{core.WithLogger(log)}
	if cfg.Journal.Dir != "" {
		a.journal = storage.NewFileJournal(cfg.Journal.Dir)
		opts = append(opts, core.WithJournal(a.journal))
	}
	a.defaultSession = cfg.Pipeline.DefaultSessionID
	if a.defaultSession == "" {
		a.defaultSession = core.DefaultConfig().DefaultSessionID
	}
	processor := core.NewProcessor(store, cfg.Pipeline, opts...)
	if err := nodes.Register(processor, completion, a.schema, graph, cfg.Pipeline.MaxRows); err != nil {
		return nil, fmt.Errorf("failed to assemble pipeline: %w", err)
	}
	a.processor = processor

	if cfg.Metrics.Addr != "" {
		a.closers = append(a.closers, serveMetrics(cfg.Metrics.Addr, log))
	}

	log.Info().
		Str("llm_provider", cfg.LLM.Provider).
		Str("llm_model", cfg.LLM.Model).
		Str("session_backend", cfg.Session.Backend).
		Int("max_correction_attempts", cfg.Pipeline.MaxCorrectionAttempts).
		Msg("Pipeline ready")

	ok = true
	return a, nil
}

var (
	_ core.SessionResetter = (*storage.MemorySessionStore)(nil)
	_ core.SessionResetter = (*storage.RedisSessionStore)(nil)
)

func newSessionStore(ctx context.Context, cfg storage.Config) (core.SessionStore, error) {
	switch cfg.Backend {
	case storage.BackendRedis:
		client, err := storage.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return storage.NewRedisSessionStore(client, cfg.TTL, cfg.MaxHistory), nil
	case storage.BackendMemory, "":
		return storage.NewMemorySessionStore(cfg.TTL, cfg.MaxSessions, cfg.MaxHistory), nil
	}
	return nil, fmt.Errorf("unsupported session backend %q", cfg.Backend)
}

func serveMetrics(addr string, log zerolog.Logger) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	return srv.Shutdown
}

// Close releases every backend in reverse order of creation
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to close resource")
		}
	}
	a.closers = nil
}
