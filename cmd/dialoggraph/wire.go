package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dshills/dialoggraph/action"
	"github.com/dshills/dialoggraph/dialogue"
	"github.com/dshills/dialoggraph/extract"
	"github.com/dshills/dialoggraph/graph"
	"github.com/dshills/dialoggraph/graph/emit"
	"github.com/dshills/dialoggraph/graph/model"
	"github.com/dshills/dialoggraph/graph/model/anthropic"
	"github.com/dshills/dialoggraph/graph/model/google"
	"github.com/dshills/dialoggraph/graph/model/openai"
	"github.com/dshills/dialoggraph/graph/session"
	"github.com/dshills/dialoggraph/graph/store"
	"github.com/dshills/dialoggraph/internal/config"
)

// app holds the wired components and everything that must be released on
// shutdown.
type app struct {
	service  *dialogue.Service
	store    store.Store[dialogue.State]
	registry *prometheus.Registry
	closers  []func(context.Context) error
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// pinger returns the store as a health probe when it supports one.
func (a *app) pinger() store.Pinger {
	p, _ := a.store.(store.Pinger)
	return p
}

// buildApp wires the configured chat model, checkpoint store, locks,
// action handlers and observability into a dialogue service.
func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	built, err := a.wire(ctx, cfg, logger)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return built, nil
}

func (a *app) wire(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	chat, modelName, err := newChatModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	metered := model.NewMeteredModel(chat, modelName, a.registry)

	var redisClient redis.UniversalClient
	if cfg.Store.Driver == config.DriverRedis || cfg.Store.Redis.Lock {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		a.onClose(func(context.Context) error { return redisClient.Close() })
	}

	st, err := newStore(cfg.Store, redisClient, a)
	if err != nil {
		return nil, err
	}
	a.store = st

	sessionOpts := []session.Option{session.WithLogger(logger)}
	if cfg.Store.Redis.Lock {
		sessionOpts = append(sessionOpts,
			session.WithLocker(newLocker(cfg.Store.Redis, redisClient)),
			session.WithLockTTL(cfg.Store.Redis.LockTTL),
		)
	}

	actions, err := newActions(ctx, cfg.Actions, logger)
	if err != nil {
		return nil, err
	}

	emitters := []emit.Emitter{emit.NewLogEmitter(logger)}
	if cfg.Tracing.Enabled {
		tp, err := newTracerProvider(ctx, cfg.Tracing)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		a.onClose(tp.Shutdown)
		emitters = append(emitters, emit.NewOTelEmitter(tp.Tracer("github.com/dshills/dialoggraph")))
	}

	svc, err := dialogue.NewService(st,
		extract.NewLLMExtractor(metered, extract.WithLogger(logger)),
		actions,
		dialogue.WithLogger(logger),
		dialogue.WithMetrics(dialogue.NewMetrics(a.registry)),
		dialogue.WithSessionManager(session.NewManager(sessionOpts...)),
		dialogue.WithExtractTimeout(cfg.Engine.ExtractTimeout),
		dialogue.WithActionTimeout(cfg.Engine.ActionTimeout),
		dialogue.WithEngineOptions(
			graph.WithMaxSteps(cfg.Engine.MaxSteps),
			graph.WithDefaultNodeTimeout(cfg.Engine.NodeTimeout),
			graph.WithMetrics(graph.NewPrometheusMetrics(a.registry)),
			graph.WithEmitter(emit.Multi(emitters...)),
		),
	)
	if err != nil {
		return nil, err
	}
	a.service = svc
	return a, nil
}

// newChatModel returns the provider adapter and the resolved model name.
func newChatModel(cfg config.ModelConfig) (model.ChatModel, string, error) {
	if cfg.APIKey == "" {
		return nil, "", fmt.Errorf("no API key for model provider %q", cfg.Provider)
	}
	name := cfg.Name
	switch cfg.Provider {
	case config.ProviderAnthropic:
		if name == "" {
			name = anthropic.DefaultModel
		}
		return anthropic.NewChatModel(cfg.APIKey, name), name, nil
	case config.ProviderOpenAI:
		if name == "" {
			name = openai.DefaultModel
		}
		return openai.NewChatModel(cfg.APIKey, name, openai.WithJSONMode()), name, nil
	case config.ProviderGoogle:
		if name == "" {
			name = google.DefaultModel
		}
		return google.NewChatModel(cfg.APIKey, name, google.WithJSONMode()), name, nil
	}
	return nil, "", fmt.Errorf("unknown model provider %q", cfg.Provider)
}

// newLocker shares the store's key prefix; the locker adds ":lock:".
func newLocker(cfg config.RedisConfig, client redis.UniversalClient) *store.RedisLocker {
	return store.NewRedisLocker(client, cfg.Prefix)
}

func newStore(cfg config.StoreConfig, client redis.UniversalClient, a *app) (store.Store[dialogue.State], error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemStore[dialogue.State](), nil
	case config.DriverSQLite:
		st, err := store.NewSQLiteStore[dialogue.State](cfg.Path)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return st.Close() })
		return st, nil
	case config.DriverMySQL:
		st, err := store.NewMySQLStore[dialogue.State](cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return st.Close() })
		return st, nil
	case config.DriverRedis:
		return store.NewRedisStore[dialogue.State](client,
			store.WithPrefix(cfg.Redis.Prefix),
			store.WithTTL(cfg.Redis.TTL),
		), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// newActions registers a handler per action. Invoices are always generated
// and delivered to the webhook when one is configured. Email and meetings
// use Google when credentials are set and otherwise fall back to the
// webhook; with neither, those actions fail with ErrUnknownAction.
func newActions(ctx context.Context, cfg config.ActionsConfig, logger *slog.Logger) (action.Handler, error) {
	mux := action.NewMux()

	var webhook *action.WebhookHandler
	if cfg.Webhook.URL != "" {
		opts := []action.WebhookOption{action.WithHTTPClient(&http.Client{Timeout: cfg.Webhook.Timeout})}
		for k, v := range cfg.Webhook.Headers {
			opts = append(opts, action.WithHeader(k, v))
		}
		webhook = action.NewWebhookHandler(cfg.Webhook.URL, opts...)
	}

	if webhook != nil {
		mux.Handle(action.GenerateInvoice, action.NewInvoiceHandler(webhook))
	} else {
		mux.Handle(action.GenerateInvoice, action.NewInvoiceHandler(nil))
	}

	switch {
	case cfg.Google.Enabled():
		gmailSvc, calendarSvc, err := action.NewGoogleServices(ctx, action.GoogleCredentials{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RefreshToken: cfg.Google.RefreshToken,
		})
		if err != nil {
			return nil, err
		}
		mux.Handle(action.SendEmail, action.NewGmailHandler(gmailSvc, cfg.Google.Sender))
		calOpts := []action.CalendarOption{action.WithMeetingDuration(cfg.Google.MeetingDuration)}
		if cfg.Google.TimeZone != "" {
			calOpts = append(calOpts, action.WithTimeZone(cfg.Google.TimeZone))
		}
		mux.Handle(action.ScheduleMeeting, action.NewCalendarHandler(calendarSvc, calOpts...))
	case webhook != nil:
		mux.Handle(action.SendEmail, webhook)
		mux.Handle(action.ScheduleMeeting, webhook)
	default:
		logger.Warn("no google credentials or webhook configured; email and meeting actions will fail")
	}

	if cfg.Retry.MaxAttempts <= 1 {
		return mux, nil
	}
	retrying, err := action.NewRetrying(mux, action.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("actions.retry: %w", err)
	}
	return retrying, nil
}

func newTracerProvider(ctx context.Context, cfg config.TracingConfig) (*sdktrace.TracerProvider, error) {
	var opts []otlptracehttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}
