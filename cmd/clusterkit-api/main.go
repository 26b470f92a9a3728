// Command clusterkit-api runs the management API surface over a
// clusterkit client: a connection pool, a routing pool against the
// configured primary, one step-queue per configured name, and one lock
// manager per configured name.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clusterkit/clusterkit/internal/api"
	"github.com/clusterkit/clusterkit/internal/config"
	"github.com/clusterkit/clusterkit/internal/lock"
	"github.com/clusterkit/clusterkit/internal/logger"
	"github.com/clusterkit/clusterkit/internal/pool"
	"github.com/clusterkit/clusterkit/internal/queue"
	"github.com/clusterkit/clusterkit/internal/routing"
	"github.com/clusterkit/clusterkit/internal/tls"
)

var configPath = flag.String("config", "config.yaml", "Path to configuration file")

const backendTLSName = "clusterkit-backend"

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level)
	logger.Info("clusterkit management API starting", "config", *configPath)

	pool.MaxIdleTime = cfg.Pool.MaxIdleTime
	innerPool := pool.New()

	if cfg.TLS.Backend.Enabled {
		manager, err := tls.NewManager(&cfg.TLS.Backend)
		if err != nil {
			log.Fatalf("failed to build backend TLS config: %v", err)
		}
		if err := manager.RegisterAs(backendTLSName); err != nil {
			log.Fatalf("failed to register backend TLS config: %v", err)
		}
		innerPool.SetTLSConfigName(backendTLSName)
		logger.Info("backend TLS enabled", "registered_as", backendTLSName)
	}

	primary := routing.Aggregator{Host: cfg.Primary.Host, Port: cfg.Primary.Port}
	router := routing.New(primary, cfg.Primary.User, cfg.Primary.Password, cfg.Primary.Database, os.Getpid(), cfg.Pool.Options, innerPool)
	routers := map[string]*routing.Router{"primary": router}

	queues := make(map[string]*queue.Queue, len(cfg.Queue.Names))
	for _, name := range cfg.Queue.Names {
		q := queue.New(router, name, cfg.Queue.TTL)
		if err := q.Setup(context.Background()); err != nil {
			log.Fatalf("failed to set up queue %q: %v", name, err)
		}
		queues[name] = q
	}

	locks := make(map[string]*lock.Manager, len(cfg.Lock.Names))
	for _, name := range cfg.Lock.Names {
		m := lock.New(router, name)
		if err := m.Setup(context.Background()); err != nil {
			log.Fatalf("failed to set up lock namespace %q: %v", name, err)
		}
		locks[name] = m
	}

	var redisStore *config.RedisStore
	if cfg.Redis.Enabled {
		store, err := config.NewRedisStore(&cfg.Redis)
		if err != nil {
			logger.Warn("Redis connection failed, config distribution disabled", "error", err)
		} else {
			redisStore = store
			if err := redisStore.SaveConfig(context.Background(), cfg); err != nil {
				logger.Warn("failed to seed config into Redis", "error", err)
			}
		}
	}

	server := api.NewServer(&cfg.API, redisStore, innerPool, routers, queues, locks)

	go func() {
		logger.Info("starting API server", "host", cfg.API.Host, "port", cfg.API.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("error during API shutdown", "error", err)
	}
	if err := innerPool.Close(); err != nil {
		logger.Error("error closing connection pool", "error", err)
	}
	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			logger.Error("error closing Redis store", "error", err)
		}
	}

	logger.Info("server stopped cleanly")
}
