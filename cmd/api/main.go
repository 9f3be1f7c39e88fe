// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"rulegen-service/internal/cache"
	"rulegen-service/internal/corpus"
	"rulegen-service/internal/repository/postgresql"
	"rulegen-service/internal/service"
	httptransport "rulegen-service/internal/transport/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgDSN := mustEnv("POSTGRES_DSN")
	redisAddr := mustEnv("REDIS_ADDR")

	addr := envOr("HTTP_ADDR", ":8080")
	queueKey := envOr("REDIS_QUEUE_KEY", "jobs:queue")
	processingKey := envOr("REDIS_PROCESSING_KEY", "jobs:processing")
	uploadDir := envOr("UPLOAD_DIR", "./uploads")
	maxUploadMB := envIntOr("MAX_UPLOAD_SIZE_MB", 10)
	rulesetDir := envOr("RULESET_DIR", "/var/ossec/ruleset/rules")
	customDir := envOr("CUSTOM_RULES_DIR", "/var/ossec/etc/rules")

	// Postgres
	pool, err := postgresql.NewPool(ctx, pgDSN)
	if err != nil {
		log.Fatalf("pg: %v", err)
	}
	defer pool.Close()

	// Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	// DI
	jobRepo := postgresql.NewJobRepository(pool)
	ruleRepo := postgresql.NewRuleRepository(pool)
	logFileRepo := postgresql.NewLogFileRepository(pool)
	corpusRepo := postgresql.NewCorpusRepository(pool)
	countCache := cache.NewRedisCache(rdb)
	queue := service.NewRedisQueue(rdb, queueKey, processingKey)

	jobSvc := service.NewJobService(jobRepo, logFileRepo, queue)
	uploadSvc := service.NewUploadService(logFileRepo, jobRepo, ruleRepo, uploadDir, maxUploadMB)
	ruleSvc := service.NewRuleService(ruleRepo)
	registrySvc := service.NewRegistryService(corpusRepo, countCache)
	scanSvc := service.NewScanService(corpus.NewScanner(), corpusRepo, countCache, rulesetDir, customDir)

	h := httptransport.NewHandler(jobSvc, uploadSvc, ruleSvc, registrySvc, scanSvc)

	srv := &http.Server{
		Addr:              addr,
		Handler:           httptransport.Routes(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[api] listening addr=%s upload_dir=%s ruleset_dir=%s custom_dir=%s postgres_dsn=%s",
			addr, uploadDir, rulesetDir, customDir, redactDSN(pgDSN))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("api stopped")
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("missing env: %s", key)
	}
	return v
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func redactDSN(dsn string) string {
	re := regexp.MustCompile(`://([^:/?#]+):([^@/]+)@`)
	return re.ReplaceAllString(dsn, `://$1:****@`)
}
