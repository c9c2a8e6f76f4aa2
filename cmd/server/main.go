// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/Abishekvarshan/youtube-downloader/internal/artifact"
	"github.com/Abishekvarshan/youtube-downloader/internal/config"
	"github.com/Abishekvarshan/youtube-downloader/internal/downloader"
	"github.com/Abishekvarshan/youtube-downloader/internal/notify"
	"github.com/Abishekvarshan/youtube-downloader/internal/observability"
	"github.com/Abishekvarshan/youtube-downloader/internal/repository/memory"
	"github.com/Abishekvarshan/youtube-downloader/internal/repository/postgresql"
	"github.com/Abishekvarshan/youtube-downloader/internal/service"
	httptransport "github.com/Abishekvarshan/youtube-downloader/internal/transport/http"
	"github.com/Abishekvarshan/youtube-downloader/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingOptions{
		Service:  "youtube-downloader",
		Exporter: cfg.TracingExporter,
		Endpoint: cfg.TracingEndpoint,
		Insecure: cfg.TracingInsecure,
	})
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	store, err := artifact.Open(ctx, cfg.DownloadDir)
	if err != nil {
		log.Fatalf("artifacts: %v", err)
	}
	defer store.Close()

	cookies := ""
	if cfg.CookiesAvailable() {
		cookies = cfg.CookiesFile
		log.Printf("[config] cookies file loaded path=%s", cfg.CookiesFile)
	} else {
		log.Printf("[config] WARNING cookies file not found path=%s, sign-in protected videos will fail", cfg.CookiesFile)
	}

	dl := downloader.NewYTDLP(downloader.Options{
		Format:           cfg.Format,
		CookiesFile:      cookies,
		ProgressInterval: cfg.ProgressInterval,
	})

	var observers []worker.Observer

	// Postgres (optional)
	if cfg.PostgresDSN != "" {
		pool, err := postgresql.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("pg: %v", err)
		}
		defer pool.Close()

		archive := postgresql.NewJobArchive(pool)
		if err := archive.EnsureSchema(ctx); err != nil {
			log.Fatalf("pg schema: %v", err)
		}
		observers = append(observers, archive)
	}

	// Redis (optional)
	if cfg.RedisAddr != "" {
		rdb, err := notify.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		observers = append(observers, notify.NewRedisPublisher(rdb, cfg.RedisChannel))
	}

	// DI
	registry := memory.NewJobRegistry()
	processor := worker.NewProcessor(registry, dl, store, observers...)
	pool := worker.NewPool(processor, cfg.Workers, cfg.QueueSize)
	jobSvc := service.NewJobService(registry, pool, store)
	handler := httptransport.NewHandler(jobSvc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httptransport.Routes(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("[server] config addr=%s download_dir=%s format=%s workers=%d queue=%d redis_addr=%s postgres_dsn=%s tracing=%s",
		cfg.Addr, store.Dir(), cfg.Format, cfg.Workers, cfg.QueueSize,
		cfg.RedisAddr, redactDSN(cfg.PostgresDSN), cfg.TracingExporter,
	)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server started: addr=%s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Printf("http: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Printf("worker pool shutdown: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}

	log.Println("server stopped")
}

func redactDSN(dsn string) string {
	// user:pass@ -> user:****@, DSNs without a password are left as is
	re := regexp.MustCompile(`://([^:/?#]+):([^@/]+)@`)
	return re.ReplaceAllString(dsn, `://$1:****@`)
}
