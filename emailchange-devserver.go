package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/robfig/cron/v3"

	authhttp "github.com/open-rails/emailchange/adapters/http"
	"github.com/open-rails/emailchange/core"
	"github.com/open-rails/emailchange/delivery"
	"github.com/open-rails/emailchange/riverjobs"
	memorystore "github.com/open-rails/emailchange/storage/memory"
	pgstore "github.com/open-rails/emailchange/storage/postgres"
	sqlitestore "github.com/open-rails/emailchange/storage/sqlite"
)

type config struct {
	ListenAddr     string `env:"EMAILCHANGE_LISTEN_ADDR"      envDefault:":8080"`
	DBURL          string `env:"DB_URL"`
	RedisURL       string `env:"REDIS_URL"`
	SQLitePath     string `env:"EMAILCHANGE_SQLITE_PATH"`
	MigrateOnStart bool   `env:"EMAILCHANGE_MIGRATE_ON_START" envDefault:"true"`
	ReconcileCron  string `env:"EMAILCHANGE_RECONCILE_CRON"   envDefault:"*/15 * * * *"`
	DevMode        bool   `env:"EMAILCHANGE_DEV_MODE"`
	DevMintSecret  string `env:"EMAILCHANGE_DEV_MINT_SECRET"`
	LogLevel       string `env:"EMAILCHANGE_LOG_LEVEL"        envDefault:"info"`

	Service core.Config
	Session authhttp.SessionConfig
	SMTP    delivery.SMTPConfig
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fatal(err)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	cmd := "serve"
	if len(os.Args) > 1 && strings.TrimSpace(os.Args[1]) != "" {
		cmd = strings.TrimSpace(os.Args[1])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = runServe(ctx, cfg, logger)
	case "migrate":
		err = runMigrate(ctx, cfg, logger)
	default:
		err = fmt.Errorf("unknown command %q (supported: serve, migrate)", cmd)
	}
	if err != nil {
		fatal(err)
	}
}

func loadConfig() (*config, error) {
	c := &config{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if c.DBURL == "" {
		c.DBURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if c.DevMode && c.DevMintSecret == "" {
		return nil, fmt.Errorf("EMAILCHANGE_DEV_MINT_SECRET is required when EMAILCHANGE_DEV_MODE=true")
	}
	if c.DevMode && c.Service.Production() {
		return nil, fmt.Errorf("EMAILCHANGE_DEV_MODE cannot be enabled in production")
	}
	return c, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// accounts creates principals for the dev endpoints.
type accounts interface {
	CreateAccount(ctx context.Context, principalID, email, password string) error
}

type memoryAccounts struct {
	ids      *memorystore.IdentityStore
	profiles *memorystore.ProfileStore
}

func (m memoryAccounts) CreateAccount(ctx context.Context, principalID, email, password string) error {
	if err := m.ids.AddPrincipal(principalID, email, password); err != nil {
		return err
	}
	return m.profiles.MergeProfile(ctx, principalID, core.ProfileFields{Email: &email})
}

type pgAccounts struct {
	ids      *pgstore.Identity
	profiles *pgstore.Profiles
}

func (p pgAccounts) CreateAccount(ctx context.Context, principalID, email, password string) error {
	if err := p.ids.CreateAccount(ctx, principalID, email, password); err != nil {
		return err
	}
	return p.profiles.MergeProfile(ctx, principalID, core.ProfileFields{Email: &email})
}

func runServe(ctx context.Context, cfg *config, logger *slog.Logger) error {
	coreSvc, err := core.NewFromConfig(cfg.Service)
	if err != nil {
		return err
	}
	coreSvc.WithLogger(logger)

	verifier, err := authhttp.NewSessionVerifier(cfg.Session)
	if err != nil {
		return err
	}
	httpSvc := authhttp.NewService(coreSvc, verifier)

	var accts accounts
	if cfg.DBURL != "" {
		if cfg.MigrateOnStart {
			if err := runMigrate(ctx, cfg, logger); err != nil {
				return err
			}
		}
		pool, err := pgxpool.New(ctx, cfg.DBURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		ids, profiles := pgstore.NewIdentity(pool), pgstore.NewProfiles(pool)
		coreSvc.WithIdentityProvider(ids).WithProfileStore(profiles)
		accts = pgAccounts{ids: ids, profiles: profiles}

		client, err := startRiver(ctx, pool, coreSvc, profiles, cfg.ReconcileCron)
		if err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.Stop(stopCtx); err != nil {
				logger.Error("stop river client", "error", err)
			}
		}()
	} else {
		if coreSvc.Production() {
			return errors.New("DB_URL is required in production")
		}
		ids, profiles := memorystore.NewIdentityStore(), memorystore.NewProfileStore()
		ids.RecentAuth = 15 * time.Minute
		coreSvc.WithIdentityProvider(ids).WithProfileStore(profiles)
		accts = memoryAccounts{ids: ids, profiles: profiles}
		logger.Warn("DB_URL not set; using in-memory identity and profile stores")
	}

	switch {
	case cfg.RedisURL != "":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rd := redis.NewClient(opts)
		defer rd.Close()
		if err := rd.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		httpSvc.WithRedis(rd)
	case cfg.SQLitePath != "":
		kv, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer kv.Close()
		coreSvc.WithEphemeralStore(kv, core.EphemeralSQLite)

		purge := cron.New()
		if _, err := purge.AddFunc("@every 10m", func() {
			n, err := kv.PurgeExpired(context.Background())
			if err != nil {
				logger.Warn("purge expired pending changes", "error", err)
				return
			}
			logger.Debug("purged expired pending changes", "count", n)
		}); err != nil {
			return err
		}
		purge.Start()
		defer purge.Stop()
	default:
		if coreSvc.Production() {
			return errors.New("REDIS_URL or EMAILCHANGE_SQLITE_PATH is required in production")
		}
		coreSvc.WithEphemeralStore(memorystore.NewKV(), core.EphemeralMemory)
	}

	if cfg.SMTP.Host != "" {
		coreSvc.WithDeliveryChannel(delivery.NewSMTP(cfg.SMTP))
	} else if !coreSvc.Production() {
		coreSvc.WithDeliveryChannel(delivery.NewLog(logger))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ephemeral": coreSvc.EphemeralMode()})
	})
	if cfg.DevMode {
		mux.Handle("POST /dev/principals", devPrincipalsHandler(accts, cfg.DevMintSecret))
		mux.Handle("POST /dev/mint", devMintHandler(verifier, cfg.DevMintSecret))
	}
	mux.Handle("/", httpSvc.APIHandler())

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Info("emailchange dev server listening", "addr", cfg.ListenAddr, "method", string(coreSvc.Method()), "ephemeral", string(coreSvc.EphemeralMode()))
	return server.ListenAndServe()
}

// startRiver runs the repair and reconcile workers and routes partial commit
// repairs through the queue.
func startRiver(ctx context.Context, pool *pgxpool.Pool, svc *core.Service, lister core.DivergenceLister, reconcileCron string) (*river.Client[pgx.Tx], error) {
	workers := river.NewWorkers()
	riverjobs.RegisterWorkers(workers, svc, lister)

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  map[string]river.QueueConfig{river.QueueDefault: {MaxWorkers: 10}},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	if reconcileCron != "" {
		if err := riverjobs.AddReconcilePeriodicJob(client, reconcileCron, riverjobs.ReconcileProfileEmailsArgs{}, false); err != nil {
			return nil, err
		}
	}
	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("start river client: %w", err)
	}
	svc.WithRepairScheduler(riverjobs.NewScheduler(client))
	return client, nil
}

func runMigrate(ctx context.Context, cfg *config, logger *slog.Logger) error {
	if cfg.DBURL == "" {
		return errors.New("DB_URL (or DATABASE_URL) is required to migrate")
	}
	pool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	n, err := pgstore.Migrate(ctx, pool)
	if err != nil {
		return err
	}
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("migrate river: %w", err)
	}
	logger.Info("migrations applied", "emailchange", n, "river", len(res.Versions))
	return nil
}

func devPrincipalsHandler(accts accounts, secret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !devSecretOK(r.Header.Get("X-DEV-SECRET"), secret) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		var req struct {
			ID       string `json:"id"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil || strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Email) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
			return
		}
		if err := accts.CreateAccount(r.Context(), req.ID, req.Email, req.Password); err != nil {
			writeJSON(w, authhttp.StatusForReason(core.ReasonOf(err)), map[string]any{"error": string(core.ReasonOf(err))})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": req.ID})
	})
}

type mintResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// devMintHandler signs session tokens so E2E tests can act as any principal.
func devMintHandler(v authhttp.SessionVerifier, secret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !devSecretOK(r.Header.Get("X-DEV-SECRET"), secret) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		var req struct {
			Sub              string `json:"sub"`
			Email            string `json:"email"`
			ExpiresInSeconds int64  `json:"expires_in_seconds"`
		}
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil || strings.TrimSpace(req.Sub) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
			return
		}
		ttl := time.Duration(req.ExpiresInSeconds) * time.Second
		if ttl <= 0 {
			ttl = time.Hour
		}
		token, err := v.Issue(strings.TrimSpace(req.Sub), strings.TrimSpace(req.Email), ttl)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to sign token"})
			return
		}
		writeJSON(w, http.StatusOK, mintResponse{Token: token, TokenType: "Bearer", ExpiresAt: time.Now().Add(ttl)})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func devSecretOK(got, secret string) bool {
	secret = strings.TrimSpace(secret)
	return secret != "" && strings.TrimSpace(got) == secret
}

func fatal(err error) {
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		os.Exit(0)
	}
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
