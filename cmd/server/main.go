package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	authhandler "caminomanager/internal/auth/handler"
	"caminomanager/internal/auth/lockout"
	"caminomanager/internal/auth/refresher"
	authservice "caminomanager/internal/auth/service"
	sessionstore "caminomanager/internal/auth/store/session"
	userstore "caminomanager/internal/auth/store/user"
	"caminomanager/internal/entity"
	entityhandler "caminomanager/internal/entity/handler"
	entitystore "caminomanager/internal/entity/store"
	jwttoken "caminomanager/internal/jwt_token"
	"caminomanager/internal/platform/config"
	"caminomanager/internal/platform/httpserver"
	"caminomanager/internal/platform/logger"
	"caminomanager/internal/platform/metrics"
	"caminomanager/internal/platform/postgres"
	"caminomanager/internal/platform/redis"
	httptransport "caminomanager/internal/transport/http"
	"caminomanager/internal/transport/http/views"
	audit "caminomanager/pkg/platform/audit"
	"caminomanager/pkg/platform/audit/kafka"
	"caminomanager/pkg/platform/audit/publisher"
	auditmemory "caminomanager/pkg/platform/audit/store/memory"
	auditpostgres "caminomanager/pkg/platform/audit/store/postgres"
	"caminomanager/pkg/platform/tx"
)

const usage = `usage: caminomanager [--config DIR] [serve]
       caminomanager [--config DIR] seed --email EMAIL [--password PASSWORD] [--base-url URL]`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "caminomanager:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("caminomanager", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	configDir := flags.String("config", "", "directory holding config.yaml")
	flags.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		return err
	}
	log := logger.New(os.Stdout, cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := "serve", flags.Args()
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}
	switch cmd {
	case "serve":
		return serve(ctx, cfg, log)
	case "seed":
		return seed(ctx, cfg, log, rest)
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// app holds the wired services. close releases every connection it opened.
type app struct {
	auth     *authservice.Service
	entities *entity.Service
	registry *entity.Registry
	audit    *publisher.Publisher
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	checks   map[string]httptransport.HealthCheck
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{checks: map[string]httptransport.HealthCheck{}}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(reg)
	a.gatherer = reg

	var (
		users       authservice.UserStore
		auditStore  audit.Store
		entityStore entity.Store
		txManager   tx.Manager
		pool        *pgxpool.Pool
	)
	if cfg.Postgres.DSN != "" {
		var err error
		if pool, err = postgres.Open(ctx, cfg.Postgres); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			a.close()
			return nil, err
		}
		if txManager, err = tx.NewPostgres(pool); err != nil {
			a.close()
			return nil, err
		}
		users = userstore.NewPostgres(pool)
		auditStore = auditpostgres.New(pool)
		entityStore = entitystore.NewPostgres(pool)
		a.checks["postgres"] = pool.Ping
	} else {
		log.Warn("postgres not configured, using in-memory stores")
		txManager = tx.NewLocal()
		users = userstore.New()
		auditStore = auditmemory.NewInMemoryStore()
		entityStore = entitystore.NewInMemory()
	}

	var (
		sessions     authservice.SessionStore
		lockoutStore lockout.Store
	)
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		a.close()
		return nil, err
	}
	if rc != nil {
		a.closers = append(a.closers, func() { _ = rc.Close() })
		sessions = sessionstore.NewRedis(rc.Client)
		lockoutStore = lockout.NewRedisStore(rc.Client)
		a.checks["redis"] = rc.Health
	} else {
		log.Warn("redis not configured, using in-memory session store")
		sessions = sessionstore.New()
		lockoutStore = lockout.NewInMemoryStore()
	}

	auditOpts := []publisher.Option{publisher.WithLogger(log)}
	if len(cfg.Audit.KafkaBrokers) > 0 {
		sink, err := kafka.NewSink(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		if err != nil {
			a.close()
			return nil, err
		}
		auditOpts = append(auditOpts, publisher.WithSink(sink, 256))
	}
	a.audit = publisher.NewPublisher(auditStore, auditOpts...)
	a.closers = append(a.closers, a.audit.Close)

	a.auth = authservice.New(
		users,
		sessions,
		jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer),
		txManager,
		authservice.Config{
			AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
			RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
			ConfirmationTTL: cfg.Auth.ConfirmationTTL,
		},
		authservice.WithLogger(log),
		authservice.WithMetrics(a.metrics),
		authservice.WithAuditPublisher(a.audit),
		authservice.WithLockout(lockout.New(lockoutStore, lockout.Config{
			Attempts: cfg.Auth.LockoutAttempts,
			Window:   cfg.Auth.LockoutWindow,
			Duration: cfg.Auth.LockoutDuration,
		}, lockout.WithLogger(log))),
	)

	a.registry = entity.DefaultRegistry()
	a.entities = entity.NewService(a.registry, entityStore, txManager,
		entity.WithAuditPublisher(a.audit),
		entity.WithMetrics(a.metrics),
		entity.WithLogger(log),
	)
	return a, nil
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	renderer, err := views.New()
	if err != nil {
		return err
	}
	sessions := refresher.New(a.auth,
		refresher.WithLogger(log),
		refresher.WithMetrics(a.metrics),
		refresher.WithSecureCookies(cfg.Server.SecureCookies),
	)
	a.checks["sessions"] = sessions.Health
	configs := a.registry.All()

	router := httptransport.NewRouter(httptransport.Deps{
		Server:    cfg.Server,
		Logger:    log,
		Metrics:   a.metrics,
		Gatherer:  a.gatherer,
		Refresher: sessions,
		Assets:    assets(cfg.Server.WebDir),
		Handlers: []httptransport.Registrar{
			authhandler.New(a.auth, sessions, renderer, configs, log),
			entityhandler.New(a.entities, configs, renderer, log),
		},
		Checks: a.checks,
	})

	log.Info("starting caminomanager", "addr", cfg.Server.Addr, "env", cfg.Env)
	return httpserver.Run(ctx, httpserver.New(cfg.Server.Addr, router), cfg.Server.ShutdownTimeout, log)
}

// assets serves files from dir when it exists and falls back to the
// embedded stylesheet.
func assets(dir string) http.Handler {
	embedded := views.Assets()
	if dir == "" {
		return embedded
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return embedded
	}
	root := os.DirFS(dir)
	disk := http.FileServerFS(root)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path[1:]
		if !fs.ValidPath(name) {
			embedded.ServeHTTP(w, r)
			return
		}
		if _, err := fs.Stat(root, name); errors.Is(err, fs.ErrNotExist) {
			embedded.ServeHTTP(w, r)
			return
		}
		disk.ServeHTTP(w, r)
	})
}

func seed(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string) error {
	flags := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	email := flags.String("email", "", "administrator email")
	password := flags.String("password", "", "initial password (optional)")
	baseURL := flags.String("base-url", "http://localhost"+cfg.Server.Addr, "public address used in the confirmation link")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("seed: --email is required")
	}

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	token, err := a.auth.Invite(ctx, *email, *password)
	if err != nil {
		return err
	}
	link := *baseURL + "/auth/confirm?" + url.Values{"token_hash": {token}, "type": {"invite"}}.Encode()
	fmt.Println(link)
	return nil
}
