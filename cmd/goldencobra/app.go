// cmd/goldencobra/app.go
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"goldencobra/internal/audit"
	"goldencobra/internal/bot"
	"goldencobra/internal/config"
	"goldencobra/internal/events"
	"goldencobra/internal/logger"
	"goldencobra/internal/metrics"
	"goldencobra/internal/spending"
	"goldencobra/internal/store"
	"goldencobra/internal/store/memstore"
	"goldencobra/internal/telemetry"
	"goldencobra/internal/web"
)

// backend is implemented by both the Postgres store and the in-memory store.
type backend interface {
	spending.Store
	audit.Source
}

var (
	_ backend = (*store.Store)(nil)
	_ backend = (*memstore.Store)(nil)
)

type app struct {
	cfg *config.Config
	log zerolog.Logger
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format).With().Str("service", appName).Logger()
	return &app{cfg: cfg, log: log}, nil
}

func (a *app) openPostgres(ctx context.Context) (*store.Store, error) {
	if a.cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	return store.Open(ctx, a.cfg.Database.URL, store.Options{
		MaxOpenConns:    a.cfg.Database.MaxOpenConns,
		MaxIdleConns:    a.cfg.Database.MaxIdleConns,
		ConnMaxLifetime: a.cfg.Database.ConnMaxLifetime,
	})
}

// openBackend connects to Postgres and applies the schema, or falls back to
// the in-memory store when no database is configured.
func (a *app) openBackend(ctx context.Context) (backend, error) {
	if a.cfg.Database.URL == "" {
		a.log.Warn().Msg("DATABASE_URL not set, using in-memory store")
		return memstore.New(), nil
	}

	st, err := a.openPostgres(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	a.log.Info().Msg("database initialized")
	return st, nil
}

func (a *app) publisher() (spending.Publisher, func(), error) {
	if a.cfg.NATS.URL == "" {
		return events.NewLogPublisher(a.log), func() {}, nil
	}
	conn, pub, err := events.Connect(a.cfg.NATS.URL, a.cfg.NATS.SubjectPrefix, a.log)
	if err != nil {
		return nil, nil, err
	}
	a.log.Info().Str("url", conn.ConnectedUrl()).Msg("connected to nats")
	return pub, func() { drain(conn, a.log) }, nil
}

func drain(conn *nats.Conn, log zerolog.Logger) {
	if err := conn.Drain(); err != nil {
		log.Warn().Err(err).Msg("drain nats connection")
	}
}

func (a *app) serve(ctx context.Context) error {
	a.log.Info().Str("version", Version).Msg("starting Golden Cobra")

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    a.cfg.Telemetry.OTLPEndpoint,
		Insecure:    a.cfg.Telemetry.Insecure,
		ServiceName: a.cfg.Telemetry.ServiceName,
		Version:     Version,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			a.log.Warn().Err(err).Msg("flush traces")
		}
	}()

	st, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	pub, closePub, err := a.publisher()
	if err != nil {
		return err
	}
	defer closePub()

	m := metrics.New()
	svc := spending.NewService(st, a.cfg.RankTable(), a.cfg.GoalTracker(),
		spending.WithPublisher(pub),
		spending.WithRecorder(m),
		spending.WithLogger(a.log.With().Str("component", "spending").Logger()),
		spending.WithTimeout(a.cfg.Database.Timeout),
	)
	router := bot.NewRouter(svc, bot.Config{
		WebURL:          a.cfg.Server.WebURL,
		SpendPresets:    a.cfg.Bot.SpendPresets,
		LeaderboardSize: a.cfg.Bot.LeaderboardSize,
		RatePerMinute:   a.cfg.Bot.RatePerMinute,
		Burst:           a.cfg.Bot.Burst,
	}, m, a.log.With().Str("component", "bot").Logger())

	srv := web.NewServer(web.Deps{
		Service:       svc,
		Bot:           router,
		Health:        st,
		Metrics:       m.Handler(),
		Log:           a.log.With().Str("component", "web").Logger(),
		WebhookSecret: a.cfg.Bot.WebhookSecret,
	})
	if err := srv.Run(ctx, ":"+a.cfg.Server.Port, a.cfg.Server.ShutdownTimeout); err != nil {
		return err
	}
	a.log.Info().Msg("Golden Cobra stopped")
	return nil
}

func (a *app) migrate(ctx context.Context) error {
	st, err := a.openPostgres(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}
	a.log.Info().Msg("schema is up to date")
	return nil
}

func (a *app) audit(ctx context.Context, batchSize int) (*audit.Report, error) {
	st, err := a.openPostgres(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	auditor := audit.New(st, audit.WithBatchSize(batchSize), audit.WithLogger(a.log))
	auditor.RegisterDefaults()
	report, err := auditor.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("run audit: %w", err)
	}
	return report, nil
}
