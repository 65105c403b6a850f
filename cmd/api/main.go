package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"cachepledge.org/internal/audit"
	"cachepledge.org/internal/auth"
	"cachepledge.org/internal/config"
	"cachepledge.org/internal/httpapi"
	"cachepledge.org/internal/notify"
	"cachepledge.org/internal/obs"
	"cachepledge.org/internal/registry"
	"cachepledge.org/internal/stats"
	"cachepledge.org/internal/store/pg"
	"cachepledge.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = ""
)

const outboxKey = "cachepledge:outbox"

type outbox interface {
	notify.Outbox
	Run(ctx context.Context, workers int)
}

func main() {
	cfg, err := config.Load(config.Options{})
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		store       registry.Store
		auditStore  audit.Store
		statsSource stats.Source
		verifier    auth.VerificationStore
		ready       httpapi.ReadyProbe
		pgStore     *pg.Store
	)
	if cfg.PostgresDSN != "" {
		pgStore, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store, auditStore, statsSource, verifier = pgStore, pgStore, pgStore, pgStore
		ready = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		obs.Warn("no database configured, using in-memory store", nil)
		mem := registry.NewInMemory()
		store, auditStore, statsSource = mem, audit.NewMemoryStore(), stats.StoreSource{Store: mem}
		verifier = auth.NewMemoryVerificationStore()
	}

	var sender notify.Sender = notify.LogSender{}
	if cfg.SMTP.Host != "" {
		sender = notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	}

	var (
		rdb   *redis.Client
		queue outbox
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		verifier = auth.NewRedisVerificationStore(rdb)
		queue = notify.NewRedisQueue(rdb, outboxKey, sender)
	} else {
		queue = notify.NewQueue(sender, 256)
	}

	issuer, err := auth.NewIssuer(cfg.AuthSecret,
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithEditTokenTTL(cfg.EditTokenTTL),
	)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	activity := stream.New()
	recorder := audit.NewRecorder(auditStore)
	mailer := notify.NewMailer(queue, cfg.BaseURL, cfg.EventName)
	svc := registry.NewService(store,
		registry.WithAuditor(recorder),
		registry.WithNotifier(mailer),
		registry.WithActivitySink(activity),
	)

	api := httpapi.New(httpapi.Deps{
		Registry:      svc,
		Stats:         stats.New(statsSource),
		Audit:         recorder,
		Issuer:        issuer,
		Admins:        auth.NewAdminList(cfg.AdminEmails),
		AdminPassword: auth.AdminPassword{Hash: cfg.AdminPasswordHash, Plain: cfg.AdminPassword},
		MagicLinks:    auth.NewMagicLinks(verifier, cfg.MagicLinkTTL),
		Mailer:        mailer,
		Stream:        activity,
		Ready:         ready,
	}, httpapi.Options{
		Version:       version,
		ExportPrefix:  cfg.ExportPrefix,
		CORSOrigins:   cfg.CORSOrigins,
		SecureCookies: cfg.SecureCookies,
		RateBurst:     cfg.RateLimitBurst,
		RatePerSec:    cfg.RateLimitRPS,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcServer := grpc.NewServer()
	httpapi.NewGRPCServer(ready).Register(grpcServer)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		queue.Run(workersCtx, cfg.OutboxWorkers)
	}()

	obs.Info("starting", map[string]any{
		"service":   "cachepledge-api",
		"version":   version,
		"http_addr": srv.Addr,
		"grpc_addr": cfg.GRPCAddr,
		"postgres":  pgStore != nil,
		"redis":     rdb != nil,
		"admins":    auth.NewAdminList(cfg.AdminEmails).Len(),
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	go func() {
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	obs.Info("shutting down", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	grpcServer.GracefulStop()
	stopWorkers()
	workers.Wait()
	if rdb != nil {
		_ = rdb.Close()
	}
	if pgStore != nil {
		_ = pgStore.Close()
	}
	obs.Info("stopped", nil)
}
