package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	alarmapp "shopfloor-cloud/internal/alarms/application"
	alarmrepo "shopfloor-cloud/internal/alarms/infrastructure/postgres"
	alarmhttp "shopfloor-cloud/internal/alarms/interfaces/http"
	"shopfloor-cloud/internal/analytics"
	"shopfloor-cloud/internal/audit"
	"shopfloor-cloud/internal/auth"
	"shopfloor-cloud/internal/delivery"
	"shopfloor-cloud/internal/observability/metrics"
	"shopfloor-cloud/internal/scheduler"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	st := alarmrepo.NewStore(db)
	if cfg.AutoMigrate {
		if err := st.EnsureSchema(context.Background()); err != nil {
			logger.Fatalf("schema error: %v", err)
		}
	}
	auditRepo := audit.NewRepository(db)

	orchestrator, err := alarmapp.NewOrchestrator(st, logger)
	if err != nil {
		logger.Fatalf("orchestrator error: %v", err)
	}

	workerCfg, err := delivery.LoadConfig(cfg.WorkerConfig)
	if err != nil {
		logger.Fatalf("worker config error: %v", err)
	}
	workerOpts := []delivery.WorkerOption{}
	if backoff := workerCfg.Backoff(); backoff != nil {
		workerOpts = append(workerOpts, delivery.WithBackoff(backoff, workerCfg.FailCap))
	}
	if timeout := workerCfg.Timeout(); timeout > 0 {
		workerOpts = append(workerOpts, delivery.WithTimeout(timeout))
	}

	runners := []scheduler.Runner{orchestrator}
	if workerCfg.SMTPServer != "" {
		emailChannel, err := delivery.NewEmailChannel(workerCfg)
		if err != nil {
			logger.Fatalf("email channel error: %v", err)
		}
		emailWorker, err := delivery.NewWorker(st, emailChannel, logger, workerOpts...)
		if err != nil {
			logger.Fatalf("email worker error: %v", err)
		}
		runners = append(runners, emailWorker)
	}
	pushChannel, err := delivery.NewPushChannel(st)
	if err != nil {
		logger.Fatalf("push channel error: %v", err)
	}
	pushWorker, err := delivery.NewWorker(st, pushChannel, logger, workerOpts...)
	if err != nil {
		logger.Fatalf("push worker error: %v", err)
	}
	runners = append(runners, pushWorker)
	telegramChannel, err := delivery.NewTelegramChannel(st)
	if err != nil {
		logger.Fatalf("telegram channel error: %v", err)
	}
	telegramWorker, err := delivery.NewWorker(st, telegramChannel, logger, workerOpts...)
	if err != nil {
		logger.Fatalf("telegram worker error: %v", err)
	}
	runners = append(runners, telegramWorker)

	poll, err := workerCfg.PollInterval()
	if err != nil {
		logger.Fatalf("poll interval error: %v", err)
	}
	sched, err := scheduler.New(runners, poll, logger)
	if err != nil {
		logger.Fatalf("scheduler error: %v", err)
	}

	if cfg.RunMode == "once" {
		if err := sched.RunOnce(context.Background()); err != nil {
			logger.Fatalf("one-shot run error: %v", err)
		}
		return
	}
	if poll > 0 {
		go sched.Start(context.Background())
	}

	alarmHandler, err := alarmhttp.NewHandler(st, orchestrator, auditRepo)
	if err != nil {
		logger.Fatalf("alarm handler error: %v", err)
	}
	statsHandler, err := analytics.NewStatsHandler(st)
	if err != nil {
		logger.Fatalf("stats handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/alarm/", alarmHandler)
	mux.Handle("/api/v1/stats/utilization", statsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL  string
	HTTPAddr     string
	JWTSecret    string
	WorkerConfig string
	RunMode      string
	AutoMigrate  bool
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:  getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:     getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:    getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		WorkerConfig: getenvDefault("WORKER_CONFIG", ""),
		RunMode:      getenvDefault("RUN_MODE", ""),
		AutoMigrate:  getenvDefault("AUTO_MIGRATE", "1") == "1",
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.RunMode != "once" && cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
